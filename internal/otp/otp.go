// Package otp issues short numeric one-time codes bound to a user and a
// reason, and validates them before they expire. Codes live only in the
// cache; no relational table backs them.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/lombeo/sep490-backend-sub003/internal/cache"
	"github.com/lombeo/sep490-backend-sub003/pkg/logger"
	"github.com/lombeo/sep490-backend-sub003/pkg/metrics"
)

const (
	// MaxLength bounds the number of digits a caller may request.
	MaxLength = 32
	// DefaultMaxAttempts is the number of wrong submissions that burn a code.
	DefaultMaxAttempts = 5
)

var (
	// ErrNotFound is returned when no live code exists for the user and reason.
	ErrNotFound = errors.New("otp: not found")
	// ErrMismatch is returned when a submitted code differs from the stored one.
	ErrMismatch = errors.New("otp: code mismatch")
	// ErrAttemptsExceeded is returned by the mismatch that burns the code.
	ErrAttemptsExceeded = fmt.Errorf("%w: too many attempts", ErrMismatch)
	// ErrInvalidLength rejects lengths outside [1, MaxLength].
	ErrInvalidLength = errors.New("otp: invalid length")
	// ErrInvalidValidity rejects non-positive lifetimes.
	ErrInvalidValidity = errors.New("otp: validity must be positive")
	// ErrInvalidReason rejects undeclared reasons.
	ErrInvalidReason = errors.New("otp: invalid reason")
)

// Record is the cached representation of an issued code.
type Record struct {
	UserID     uint      `json:"user_id"`
	Code       string    `json:"code"`
	Reason     Reason    `json:"reason"`
	ExpiryTime time.Time `json:"expiry_time"`
}

// Policy groups the code shapes used by the authentication flows.
type Policy struct {
	Length      int
	ResetLength int
	ValidFor    time.Duration
}

// DefaultPolicy returns 6 digit codes, 8 digit reset codes, valid for 10 minutes.
func DefaultPolicy() Policy {
	return Policy{Length: 6, ResetLength: 8, ValidFor: 10 * time.Minute}
}

// Key returns the cache key holding the code for userID and reason.
func Key(userID uint, reason Reason) string {
	return fmt.Sprintf("OTP:%d:%s", userID, reason)
}

// AttemptsKey returns the cache key counting wrong submissions of the code
// stored under Key(userID, reason).
func AttemptsKey(userID uint, reason Reason) string {
	return fmt.Sprintf("OTP_ATTEMPTS:%d:%s", userID, reason)
}

// Service issues and looks up one-time codes.
type Service struct {
	store       cache.Store
	now         func() time.Time
	random      io.Reader
	maxAttempts int
	log         *zap.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRandom overrides the entropy source. Production code keeps crypto/rand.
func WithRandom(r io.Reader) Option {
	return func(s *Service) {
		if r != nil {
			s.random = r
		}
	}
}

// WithMaxAttempts overrides how many wrong codes are tolerated before the
// stored code is invalidated.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// NewService constructs a Service on top of the shared cache.
func NewService(store cache.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("otp: cache store is required")
	}

	svc := &Service{
		store:       store,
		now:         time.Now,
		random:      rand.Reader,
		maxAttempts: DefaultMaxAttempts,
		log:         logger.WithModule("otp"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Generate issues a code of length digits for userID and reason, replacing
// any code previously issued for the same pair. The code expires after
// validFor both in the cache and in the stored record.
func (s *Service) Generate(ctx context.Context, length int, reason Reason, userID uint, validFor time.Duration) (string, error) {
	if length < 1 || length > MaxLength {
		return "", fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}
	if validFor <= 0 {
		return "", ErrInvalidValidity
	}
	if !reason.Valid() {
		return "", fmt.Errorf("%w: %d", ErrInvalidReason, int(reason))
	}

	code, err := s.digits(length)
	if err != nil {
		return "", err
	}

	record := Record{
		UserID:     userID,
		Code:       code,
		Reason:     reason,
		ExpiryTime: s.now().UTC().Add(validFor),
	}
	if err := cache.SetJSON(ctx, s.store, Key(userID, reason), record, validFor); err != nil {
		return "", fmt.Errorf("otp: store code: %w", err)
	}
	if err := s.store.Delete(ctx, AttemptsKey(userID, reason)); err != nil {
		return "", fmt.Errorf("otp: reset attempts: %w", err)
	}

	metrics.OTPIssued.WithLabelValues(reason.String()).Inc()
	s.log.Debug("one-time code issued",
		zap.Uint("user_id", userID),
		zap.Stringer("reason", reason),
		zap.Time("expires_at", record.ExpiryTime),
	)
	return code, nil
}

// GetStored returns the live record for userID and reason. Absent and expired
// records both yield ErrNotFound; cache failures are returned as-is.
func (s *Service) GetStored(ctx context.Context, userID uint, reason Reason) (*Record, error) {
	record, found, err := cache.GetJSON[Record](ctx, s.store, Key(userID, reason))
	if err != nil {
		return nil, fmt.Errorf("otp: load code: %w", err)
	}
	if !found || record.ExpiryTime.Before(s.now()) {
		return nil, ErrNotFound
	}
	return &record, nil
}

// Verify checks code against the stored record in constant time. Every
// mismatch is counted; the one reaching the attempt limit invalidates the
// code and returns ErrAttemptsExceeded.
func (s *Service) Verify(ctx context.Context, userID uint, reason Reason, code string) error {
	record, err := s.GetStored(ctx, userID, reason)
	switch {
	case errors.Is(err, ErrNotFound):
		metrics.OTPVerifications.WithLabelValues(reason.String(), "expired").Inc()
		return err
	case err != nil:
		metrics.OTPVerifications.WithLabelValues(reason.String(), "error").Inc()
		return err
	}

	if subtle.ConstantTimeCompare([]byte(record.Code), []byte(code)) != 1 {
		metrics.OTPVerifications.WithLabelValues(reason.String(), "mismatch").Inc()
		return s.countMismatch(ctx, record)
	}

	metrics.OTPVerifications.WithLabelValues(reason.String(), "success").Inc()
	return nil
}

// Invalidate drops the code for userID and reason, typically after a
// successful verification.
func (s *Service) Invalidate(ctx context.Context, userID uint, reason Reason) error {
	if err := s.store.Delete(ctx, Key(userID, reason), AttemptsKey(userID, reason)); err != nil {
		return fmt.Errorf("otp: invalidate code: %w", err)
	}
	return nil
}

func (s *Service) countMismatch(ctx context.Context, record *Record) error {
	window := record.ExpiryTime.Sub(s.now())
	if window <= 0 {
		window = time.Minute
	}

	attempts, _, err := s.store.IncrementWithTTL(ctx, AttemptsKey(record.UserID, record.Reason), window)
	if err != nil {
		return fmt.Errorf("otp: count attempt: %w", err)
	}
	if attempts < int64(s.maxAttempts) {
		return ErrMismatch
	}

	if err := s.Invalidate(ctx, record.UserID, record.Reason); err != nil {
		return err
	}
	s.log.Warn("one-time code invalidated after repeated mismatches",
		zap.Uint("user_id", record.UserID),
		zap.Stringer("reason", record.Reason),
		zap.Int64("attempts", attempts),
	)
	return ErrAttemptsExceeded
}

// digits maps each random byte to byte%10. 256 is not a multiple of 10, so
// digits 0-5 appear with probability 26/256 and 6-9 with 25/256.
func (s *Service) digits(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", fmt.Errorf("otp: read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = '0' + b%10
	}
	return string(buf), nil
}
