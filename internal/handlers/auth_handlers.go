package handlers

import (
	"errors"
	"net/http"

	"library_pos_backend/internal/services"
	"library_pos_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// AuthHandler holds the authentication service.
type AuthHandler struct {
	authService services.AuthService
	scanService services.ScanService
}

// NewAuthHandler creates a new AuthHandler. Logging out stops the operator's
// scanners through scanService.
func NewAuthHandler(as services.AuthService, ss services.ScanService) *AuthHandler {
	return &AuthHandler{authService: as, scanService: ss}
}

// currentOperator returns the username set by AuthMiddleware, answering 401
// when it is missing.
func currentOperator(c *gin.Context) (string, bool) {
	raw, exists := c.Get("username")
	username, ok := raw.(string)
	if !exists || !ok || username == "" {
		utils.LogError(errors.New("username not found in context"), "currentOperator: username not in context")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "User not authenticated.", "Missing username in context"))
		return "", false
	}
	return username, true
}

// LoginUser handles operator login.
func (h *AuthHandler) LoginUser(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "LoginUser")
		return
	}

	authResp, err := h.authService.Login(req)
	if err != nil {
		utils.LogError(err, "LoginUser: Error from authService.Login", map[string]interface{}{"username": req.Username})
		if errors.Is(err, services.ErrInvalidCredentials) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "Invalid username or password.", err.Error()))
		} else {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Failed to login.", "Internal error"))
		}
		return
	}
	c.JSON(http.StatusOK, authResp)
}

// GetCurrentUser returns the operator behind the token.
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	username, ok := currentOperator(c)
	if !ok {
		return
	}
	role, _ := c.Get("userRole")
	roleStr, _ := role.(string)
	c.JSON(http.StatusOK, h.authService.Me(username, roleStr))
}

// LogoutUser releases every camera the operator holds. The token itself is
// stateless and is discarded by the client.
func (h *AuthHandler) LogoutUser(c *gin.Context) {
	username, ok := currentOperator(c)
	if !ok {
		return
	}
	stopped := 0
	if h.scanService != nil {
		stopped = h.scanService.StopAll(username, "logout")
	}
	utils.LogInfo("Operator logged out", map[string]interface{}{"username": username, "stopped_scanners": stopped})
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully. Please discard your token.", "stopped_scanners": stopped})
}
