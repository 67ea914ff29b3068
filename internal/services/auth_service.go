package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"library_pos_backend/pkg/utils"

	"golang.org/x/crypto/bcrypt"
)

// --- Custom Service Errors ---
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrTokenGeneration    = errors.New("failed to generate token")
)

// --- Data Transfer Objects (DTOs) ---

// LoginRequest DTO
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Operator is the signed-in user as shown to the client.
type Operator struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// AuthResponse DTO
type AuthResponse struct {
	Operator    Operator  `json:"operator"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// OperatorAccount is the single configured operator login.
type OperatorAccount struct {
	Username     string
	PasswordHash string
	Role         string
}

// --- AuthService Interface ---
type AuthService interface {
	Login(req LoginRequest) (*AuthResponse, error)
	Me(username, role string) Operator
}

// --- authService Implementation ---
type authService struct {
	account OperatorAccount
	tokens  *utils.TokenManager
}

// NewAuthService creates a new instance of AuthService.
func NewAuthService(account OperatorAccount, tokens *utils.TokenManager) AuthService {
	return &authService{account: account, tokens: tokens}
}

// Login checks the credentials against the configured operator and issues an
// access token.
func (s *authService) Login(req LoginRequest) (*AuthResponse, error) {
	username := strings.TrimSpace(req.Username)
	if username != s.account.Username {
		// same bcrypt cost for unknown usernames
		_ = bcrypt.CompareHashAndPassword([]byte(s.account.PasswordHash), []byte(req.Password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.account.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateAccessToken(username, s.account.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}
	utils.LogInfo("Operator logged in", map[string]interface{}{"username": username})
	return &AuthResponse{
		Operator:    Operator{Username: username, Role: s.account.Role},
		AccessToken: token,
		ExpiresAt:   time.Now().UTC().Add(s.tokens.TTL()),
	}, nil
}

func (s *authService) Me(username, role string) Operator {
	return Operator{Username: username, Role: role}
}
