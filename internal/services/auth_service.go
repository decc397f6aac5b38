package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	iauth "github.com/lombeo/sep490-backend-sub003/internal/auth"
	"github.com/lombeo/sep490-backend-sub003/internal/models"
	"github.com/lombeo/sep490-backend-sub003/internal/otp"
	"github.com/lombeo/sep490-backend-sub003/pkg/crypto"
	"github.com/lombeo/sep490-backend-sub003/pkg/logger"
	"github.com/lombeo/sep490-backend-sub003/pkg/mail"
	"github.com/lombeo/sep490-backend-sub003/pkg/metrics"
)

const generatedPasswordLength = 12

var (
	ErrUserNotFound         = errors.New("auth: user not found")
	ErrInvalidCredentials   = errors.New("auth: invalid credentials")
	ErrAlreadyVerified      = errors.New("auth: account already verified")
	ErrMissingPassword      = errors.New("auth: password fields are required")
	ErrWeakPassword         = errors.New("auth: password does not meet the policy")
	ErrCurrentPassword      = errors.New("auth: current password is incorrect")
	ErrPasswordConfirmation = errors.New("auth: new password and confirmation differ")
	ErrUnsupportedOTPReason = errors.New("auth: unsupported code reason")
	ErrInvalidRefreshToken  = errors.New("auth: invalid refresh token")
	ErrOTPMismatch          = otp.ErrMismatch
	ErrOTPNotFound          = otp.ErrNotFound
)

// SignInResult is returned on successful sign-in and token refresh.
type SignInResult struct {
	AccessToken      string        `json:"access_token"`
	ExpiresIn        time.Duration `json:"-"`
	RefreshToken     string        `json:"refresh_token"`
	RefreshExpiresAt time.Time     `json:"refresh_expires_at"`
	UserID           uint          `json:"user_id"`
	Username         string        `json:"username"`
	Email            string        `json:"email"`
	Role             string        `json:"role"`
	IsVerify         bool          `json:"is_verify"`
}

// ChangePasswordInput carries a password change request.
type ChangePasswordInput struct {
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
}

// AuthService implements the account flows built on one-time codes.
type AuthService struct {
	db        *gorm.DB
	codes     *otp.Service
	directory *UserDirectory
	mailer    mail.Mailer
	jwt       *iauth.JWTService
	sessions  *iauth.SessionService
	policy    otp.Policy
	passwords func() (string, error)
	log       *zap.Logger
}

// AuthOption customises the AuthService.
type AuthOption func(*AuthService)

// WithOTPPolicy overrides code lengths and lifetime.
func WithOTPPolicy(policy otp.Policy) AuthOption {
	return func(s *AuthService) {
		if policy.Length > 0 {
			s.policy.Length = policy.Length
		}
		if policy.ResetLength > 0 {
			s.policy.ResetLength = policy.ResetLength
		}
		if policy.ValidFor > 0 {
			s.policy.ValidFor = policy.ValidFor
		}
	}
}

// WithPasswordGenerator replaces the generator of reset passwords.
func WithPasswordGenerator(gen func() (string, error)) AuthOption {
	return func(s *AuthService) {
		if gen != nil {
			s.passwords = gen
		}
	}
}

// NewAuthService wires the authentication flows. A nil mailer disables email delivery.
func NewAuthService(db *gorm.DB, codes *otp.Service, directory *UserDirectory, jwt *iauth.JWTService, sessions *iauth.SessionService, mailer mail.Mailer, opts ...AuthOption) (*AuthService, error) {
	switch {
	case db == nil:
		return nil, errors.New("auth service: db is required")
	case codes == nil:
		return nil, errors.New("auth service: otp service is required")
	case directory == nil:
		return nil, errors.New("auth service: user directory is required")
	case jwt == nil:
		return nil, errors.New("auth service: jwt service is required")
	case sessions == nil:
		return nil, errors.New("auth service: session service is required")
	}

	svc := &AuthService{
		db:        db,
		codes:     codes,
		directory: directory,
		mailer:    mailer,
		jwt:       jwt,
		sessions:  sessions,
		policy:    otp.DefaultPolicy(),
		passwords: func() (string, error) { return crypto.GenerateStrongPassword(generatedPasswordLength) },
		log:       logger.WithModule("auth"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// ForgotPassword issues a reset code to the verified user owning email and
// returns that user's id so the client can submit the code.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (uint, error) {
	user, ok := s.directory.FindVerifiedByEmail(email)
	if !ok {
		return 0, ErrUserNotFound
	}

	code, err := s.codes.Generate(ctx, s.policy.ResetLength, otp.ReasonForgetPassword, user.ID, s.policy.ValidFor)
	if err != nil {
		return 0, err
	}

	err = s.send(ctx, user.Email, "Reset password request", fmt.Sprintf(
		"Hello %s,\r\n\r\nYour password reset code is %s. It expires in %s.\r\n\r\nIf you did not request a reset, ignore this email.\r\n",
		user.Username, code, s.policy.ValidFor,
	))
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}

// RequestVerification issues a sign-up code to an unverified user.
func (s *AuthService) RequestVerification(ctx context.Context, userID uint) error {
	user, err := s.loadUser(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if user.IsVerify {
		return ErrAlreadyVerified
	}

	code, err := s.codes.Generate(ctx, s.policy.Length, otp.ReasonSignUp, user.ID, s.policy.ValidFor)
	if err != nil {
		return err
	}

	return s.send(ctx, user.Email, "Verify your account", fmt.Sprintf(
		"Hello %s,\r\n\r\nYour verification code is %s. It expires in %s.\r\n",
		user.Username, code, s.policy.ValidFor,
	))
}

// VerifyOTP checks a submitted code and applies its effect: a forgotten
// password is replaced by a generated one sent by email, and sign-up or
// email codes mark the account verified. The code is consumed on success.
func (s *AuthService) VerifyOTP(ctx context.Context, userID uint, reason otp.Reason, code string) error {
	switch reason {
	case otp.ReasonForgetPassword, otp.ReasonSignUp, otp.ReasonEmailVerify:
	default:
		return ErrUnsupportedOTPReason
	}

	if err := s.codes.Verify(ctx, userID, reason, code); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.loadUser(ctx, tx, userID)
		if err != nil {
			return err
		}

		if reason != otp.ReasonForgetPassword {
			return tx.Model(user).Updates(map[string]any{"is_verify": true, "updater": user.ID}).Error
		}

		password, err := s.passwords()
		if err != nil {
			return fmt.Errorf("auth: generate password: %w", err)
		}
		hash, err := crypto.HashPassword(password)
		if err != nil {
			return fmt.Errorf("auth: hash password: %w", err)
		}
		if err := tx.Model(user).Updates(map[string]any{"password": hash, "updater": user.ID}).Error; err != nil {
			return err
		}

		// A failed delivery rolls the new password back.
		return s.send(ctx, user.Email, "Your new password", fmt.Sprintf(
			"Hello %s,\r\n\r\nYour new password is %s. Sign in and change it as soon as possible.\r\n",
			user.Username, password,
		))
	})
	if err != nil {
		return err
	}

	if err := s.codes.Invalidate(ctx, userID, reason); err != nil {
		s.log.Warn("failed to invalidate used code", zap.Uint("user_id", userID), zap.Error(err))
	}
	if reason == otp.ReasonForgetPassword {
		if err := s.sessions.RevokeUser(ctx, userID); err != nil {
			return err
		}
	}
	return s.directory.Upsert(ctx, userID)
}

// SignIn authenticates by username or email and issues an access token
// together with a refresh token that replaces any the user held.
func (s *AuthService) SignIn(ctx context.Context, identifier, password string) (*SignInResult, error) {
	identifier = strings.TrimSpace(identifier)

	var user models.User
	err := s.db.WithContext(ctx).
		Where("deleted = ? AND (username = ? OR LOWER(email) = ?)", false, identifier, normalizeEmail(identifier)).
		Take(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.AuthAttempts.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("auth: load user: %w", err)
	}
	if err != nil || !crypto.VerifyPassword(user.Password, password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, ErrInvalidCredentials
	}

	session, err := s.sessions.Issue(ctx, user.ID)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("error").Inc()
		return nil, err
	}

	result, err := s.issue(&user, session)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return result, nil
}

// Refresh exchanges a valid refresh token for a new access token. The refresh
// token itself is returned unchanged.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*SignInResult, error) {
	session, err := s.sessions.Validate(ctx, refreshToken)
	switch {
	case errors.Is(err, iauth.ErrSessionNotFound), errors.Is(err, iauth.ErrSessionRevoked),
		errors.Is(err, iauth.ErrSessionExpired), errors.Is(err, iauth.ErrSessionInvalidToken):
		metrics.TokenRefreshes.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err)
	case err != nil:
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return nil, err
	}

	user, err := s.loadUser(ctx, s.db, session.UserID)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("rejected").Inc()
		return nil, err
	}

	result, err := s.issue(user, session)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	return result, nil
}

// SignOut revokes the refresh token of userID.
func (s *AuthService) SignOut(ctx context.Context, userID uint) error {
	return s.sessions.RevokeUser(ctx, userID)
}

func (s *AuthService) issue(user *models.User, session *models.RefreshToken) (*SignInResult, error) {
	token, err := s.jwt.GenerateAccessToken(iauth.AccessTokenInput{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		Verified: user.IsVerify,
	})
	if err != nil {
		return nil, err
	}

	return &SignInResult{
		AccessToken:      token,
		ExpiresIn:        s.jwt.TTL(),
		RefreshToken:     session.Token,
		RefreshExpiresAt: session.ExpiresAt,
		UserID:           user.ID,
		Username:         user.Username,
		Email:            user.Email,
		Role:             user.Role,
		IsVerify:         user.IsVerify,
	}, nil
}

// ChangePassword replaces the password of userID after checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, input ChangePasswordInput) error {
	if strings.TrimSpace(input.CurrentPassword) == "" ||
		strings.TrimSpace(input.NewPassword) == "" ||
		strings.TrimSpace(input.ConfirmPassword) == "" {
		return ErrMissingPassword
	}

	user, err := s.loadUser(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if !crypto.IsStrongPassword(input.NewPassword) {
		return ErrWeakPassword
	}
	if !crypto.VerifyPassword(user.Password, input.CurrentPassword) {
		return ErrCurrentPassword
	}
	if input.NewPassword != input.ConfirmPassword {
		return ErrPasswordConfirmation
	}

	hash, err := crypto.HashPassword(input.NewPassword)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(user).
		Updates(map[string]any{"password": hash, "updater": user.ID}).Error; err != nil {
		return fmt.Errorf("auth: update password: %w", err)
	}
	if err := s.sessions.RevokeUser(ctx, user.ID); err != nil {
		return err
	}

	return s.directory.Upsert(ctx, user.ID)
}

func (s *AuthService) loadUser(ctx context.Context, db *gorm.DB, userID uint) (*models.User, error) {
	var user models.User
	err := db.WithContext(ctx).Where("id = ? AND deleted = ?", userID, false).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("auth: load user: %w", err)
	}
	return &user, nil
}

// send delivers a plain-text email. A disabled mailer is logged and tolerated.
func (s *AuthService) send(ctx context.Context, to, subject, body string) error {
	return deliver(ctx, s.mailer, s.log, to, subject, body)
}

func deliver(ctx context.Context, mailer mail.Mailer, log *zap.Logger, to, subject, body string) error {
	if mailer == nil {
		log.Warn("mailer not configured; email dropped", zap.String("subject", subject))
		return nil
	}

	err := mailer.Send(ctx, mail.Message{To: []string{to}, Subject: subject, Body: body})
	if errors.Is(err, mail.ErrSMTPDisabled) {
		log.Warn("smtp disabled; email dropped", zap.String("subject", subject))
		return nil
	}
	if err != nil {
		return fmt.Errorf("send %q: %w", subject, err)
	}
	return nil
}
