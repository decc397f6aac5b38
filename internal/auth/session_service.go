package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lombeo/sep490-backend-sub003/internal/models"
	"github.com/lombeo/sep490-backend-sub003/pkg/crypto"
)

const (
	// DefaultRefreshTokenTTL is the fallback refresh token lifetime.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	defaultRefreshLength = 32
)

var (
	// ErrSessionNotFound indicates that no session matches the provided token.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionRevoked marks a session revoked by sign-out or a password change.
	ErrSessionRevoked = errors.New("session: revoked")
	// ErrSessionExpired signals that a refresh token has reached its expiry.
	ErrSessionExpired = errors.New("session: expired")
	// ErrSessionInvalidToken is returned when the supplied refresh token is empty.
	ErrSessionInvalidToken = errors.New("session: invalid token")
)

// SessionConfig describes tunable behaviour for the SessionService.
type SessionConfig struct {
	RefreshTokenTTL time.Duration
	RefreshLength   int
	Clock           func() time.Time
}

// SessionService issues, validates and revokes refresh tokens. Lookups always
// hit the database so a revocation takes effect immediately.
type SessionService struct {
	db         *gorm.DB
	refreshTTL time.Duration
	tokenLen   int
	now        func() time.Time
}

// NewSessionService constructs a session manager backed by the provided database.
func NewSessionService(db *gorm.DB, cfg SessionConfig) (*SessionService, error) {
	if db == nil {
		return nil, errors.New("session service: db is required")
	}

	ttl := cfg.RefreshTokenTTL
	if ttl <= 0 {
		ttl = DefaultRefreshTokenTTL
	}

	length := cfg.RefreshLength
	if length <= 0 {
		length = defaultRefreshLength
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &SessionService{
		db:         db,
		refreshTTL: ttl,
		tokenLen:   length,
		now:        clock,
	}, nil
}

// TTL reports the lifetime of issued refresh tokens.
func (s *SessionService) TTL() time.Duration {
	return s.refreshTTL
}

// Issue creates a refresh token for userID, replacing any token the user held.
func (s *SessionService) Issue(ctx context.Context, userID uint) (*models.RefreshToken, error) {
	if userID == 0 {
		return nil, errors.New("session service: user id is required")
	}

	token, err := crypto.GenerateToken(s.tokenLen)
	if err != nil {
		return nil, fmt.Errorf("session service: generate refresh token: %w", err)
	}

	now := s.now().UTC()
	session := &models.RefreshToken{
		UserID:     userID,
		Token:      token,
		ExpiresAt:  now.Add(s.refreshTTL),
		LastUsedAt: now,
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"token":        session.Token,
			"expires_at":   session.ExpiresAt,
			"last_used_at": now,
			"revoked_at":   nil,
			"updated_at":   now,
		}),
	}).Create(session).Error
	if err != nil {
		return nil, fmt.Errorf("session service: store refresh token: %w", err)
	}
	return session, nil
}

// Validate returns the session behind refreshToken when it is neither revoked
// nor expired, and records its use.
func (s *SessionService) Validate(ctx context.Context, refreshToken string) (*models.RefreshToken, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, ErrSessionInvalidToken
	}

	var session models.RefreshToken
	err := s.db.WithContext(ctx).Where("token = ?", refreshToken).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session service: find session: %w", err)
	}

	now := s.now().UTC()
	if session.RevokedAt != nil {
		return nil, ErrSessionRevoked
	}
	if !session.ExpiresAt.After(now) {
		return nil, ErrSessionExpired
	}

	// The revoked_at guard keeps a concurrent revocation from being overwritten.
	res := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("id = ? AND revoked_at IS NULL", session.ID).
		Update("last_used_at", now)
	if res.Error != nil {
		return nil, fmt.Errorf("session service: touch session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrSessionRevoked
	}
	session.LastUsedAt = now
	return &session, nil
}

// RevokeUser revokes the refresh token of userID. Users without an active
// token are left untouched.
func (s *SessionService) RevokeUser(ctx context.Context, userID uint) error {
	now := s.now().UTC()
	err := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Updates(map[string]any{"revoked_at": now, "updated_at": now}).Error
	if err != nil {
		return fmt.Errorf("session service: revoke session: %w", err)
	}
	return nil
}

// CleanupExpired removes expired and revoked refresh tokens.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at < ?", s.now().UTC()).
		Or("revoked_at IS NOT NULL").
		Delete(&models.RefreshToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("session service: cleanup expired sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
