package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lombeo/sep490-backend-sub003/internal/otp"
	"github.com/lombeo/sep490-backend-sub003/internal/services"
	"github.com/lombeo/sep490-backend-sub003/pkg/response"
)

// AuthHandler exposes sign-in and the one-time code flows.
type AuthHandler struct {
	auth *services.AuthService
}

func NewAuthHandler(auth *services.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required,max=255"`
	Password   string `json:"password" validate:"required"`
}

type loginResponse struct {
	AccessToken      string    `json:"access_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int       `json:"expires_in"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	UserID           uint      `json:"user_id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	Role             string    `json:"role"`
	IsVerify         bool      `json:"is_verify"`
}

func newLoginResponse(result *services.SignInResult) loginResponse {
	return loginResponse{
		AccessToken:      result.AccessToken,
		TokenType:        "Bearer",
		ExpiresIn:        int(result.ExpiresIn.Seconds()),
		RefreshToken:     result.RefreshToken,
		RefreshExpiresAt: result.RefreshExpiresAt,
		UserID:           result.UserID,
		Username:         result.Username,
		Email:            result.Email,
		Role:             result.Role,
		IsVerify:         result.IsVerify,
	}
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.auth.SignIn(requestContext(c), req.Identifier, req.Password)
	if err != nil {
		fail(c, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusOK, "S-AUTHEN-001", newLoginResponse(result))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required,max=128"`
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.auth.Refresh(requestContext(c), req.RefreshToken)
	if err != nil {
		fail(c, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusOK, "S-AUTHEN-006", newLoginResponse(result))
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.auth.SignOut(requestContext(c), userID); err != nil {
		fail(c, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusOK, "S-AUTHEN-007", nil)
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// POST /api/auth/forgot-password
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	userID, err := h.auth.ForgotPassword(requestContext(c), req.Email)
	if err != nil {
		fail(c, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusOK, "S-AUTHEN-002", gin.H{"user_id": userID})
}

type verifyOTPRequest struct {
	UserID uint       `json:"user_id" validate:"required"`
	Reason otp.Reason `json:"reason"`
	Code   string     `json:"code" validate:"required,numeric,max=32"`
}

// POST /api/auth/verify-otp
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.auth.VerifyOTP(requestContext(c), req.UserID, req.Reason, req.Code); err != nil {
		fail(c, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusOK, "S-AUTHEN-003", gin.H{"verified": true})
}

// POST /api/auth/request-verification
func (h *AuthHandler) RequestVerification(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.auth.RequestVerification(requestContext(c), userID); err != nil {
		fail(c, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusAccepted, "S-AUTHEN-004", gin.H{"user_id": userID})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// POST /api/auth/change-password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req changePasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.auth.ChangePassword(requestContext(c), userID, services.ChangePasswordInput{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		fail(c, err)
		return
	}

	response.SuccessWithMessage(c, http.StatusOK, "S-AUTHEN-005", nil)
}
