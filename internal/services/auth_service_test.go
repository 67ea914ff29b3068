package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"library_pos_backend/pkg/utils"
)

func newTestAuth(t *testing.T) (AuthService, *utils.TokenManager) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.MinCost)
	require.NoError(t, err)
	tokens, err := utils.NewTokenManager("test-secret", "library-pos", time.Hour)
	require.NoError(t, err)
	return NewAuthService(OperatorAccount{Username: "admin", PasswordHash: string(hash), Role: "Admin"}, tokens), tokens
}

func TestLoginIssuesToken(t *testing.T) {
	auth, tokens := newTestAuth(t)

	resp, err := auth.Login(LoginRequest{Username: "admin", Password: "admin123"})
	require.NoError(t, err)
	assert.Equal(t, "admin", resp.Operator.Username)
	assert.True(t, resp.ExpiresAt.After(time.Now()))

	claims, err := tokens.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "Admin", claims.Role)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	auth, _ := newTestAuth(t)

	_, err := auth.Login(LoginRequest{Username: "admin", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = auth.Login(LoginRequest{Username: "root", Password: "admin123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
