package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lombeo/sep490-backend-sub003/internal/locks"
	"github.com/lombeo/sep490-backend-sub003/internal/otp"
	"github.com/lombeo/sep490-backend-sub003/internal/services"
	appErrors "github.com/lombeo/sep490-backend-sub003/pkg/errors"
	"github.com/lombeo/sep490-backend-sub003/pkg/response"
)

// translateError maps domain sentinels onto API errors. Anything unknown
// becomes a 500 that keeps the cause for logging.
func translateError(err error) *appErrors.AppError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, otp.ErrNotFound), errors.Is(err, otp.ErrMismatch):
		return appErrors.ErrOTPInvalid
	case errors.Is(err, services.ErrInvalidCredentials):
		return appErrors.ErrInvalidCredentials
	case errors.Is(err, services.ErrInvalidRefreshToken):
		return appErrors.New("auth.invalid_refresh_token", "Refresh token is invalid, expired or revoked", appErrors.ErrUnauthorized.StatusCode)
	case errors.Is(err, services.ErrUserNotFound):
		return appErrors.NewNotFound("User not found")
	case errors.Is(err, services.ErrAlreadyVerified):
		return appErrors.New("auth.already_verified", "Account is already verified", appErrors.ErrConflict.StatusCode)
	case errors.Is(err, services.ErrMissingPassword):
		return appErrors.NewBadRequest("Current, new and confirmation passwords are required")
	case errors.Is(err, services.ErrWeakPassword):
		return appErrors.NewBadRequest("Password must be at least 6 characters with upper and lower case letters, a digit and a special character")
	case errors.Is(err, services.ErrCurrentPassword):
		return appErrors.NewBadRequest("Current password is incorrect")
	case errors.Is(err, services.ErrPasswordConfirmation):
		return appErrors.NewBadRequest("New password and confirmation do not match")
	case errors.Is(err, services.ErrUnsupportedOTPReason), errors.Is(err, otp.ErrInvalidReason):
		return appErrors.NewBadRequest("Unsupported verification reason")
	case errors.Is(err, services.ErrUsernameTaken):
		return appErrors.New("users.username_taken", "Username already exists", appErrors.ErrConflict.StatusCode)
	case errors.Is(err, services.ErrEmailTaken):
		return appErrors.New("users.email_taken", "Email already exists", appErrors.ErrConflict.StatusCode)
	case errors.Is(err, services.ErrAccountExists):
		return appErrors.New("users.account_exists", "Username or email already exists", appErrors.ErrConflict.StatusCode)
	case errors.Is(err, services.ErrInvalidUsername):
		return appErrors.NewBadRequest("Username must not be empty or contain spaces")
	case errors.Is(err, services.ErrInvalidRole):
		return appErrors.NewBadRequest("Unknown role")
	case errors.Is(err, services.ErrUserProtected):
		return appErrors.New("users.protected", "Administrators and your own account cannot be modified", appErrors.ErrForbidden.StatusCode)
	case errors.Is(err, locks.ErrPlanNotFound):
		return appErrors.NewNotFound("Construction plan not found")
	case errors.Is(err, locks.ErrLockNotFound):
		return appErrors.NewNotFound("No active edit lock for this plan")
	case errors.Is(err, locks.ErrPlanLocked):
		return appErrors.ErrPlanLocked
	case errors.Is(err, locks.ErrLockNotOwned):
		return appErrors.ErrLockNotOwned
	}

	var appErr *appErrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.ErrInternalServer.WithInternal(err)
}

// fail writes the translated error. Server-side failures are attached to the
// gin context so the access log records the cause.
func fail(c *gin.Context, err error) {
	appErr := translateError(err)
	if appErr.StatusCode >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	response.Error(c, appErr)
}
