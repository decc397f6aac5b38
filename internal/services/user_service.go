package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	iauth "github.com/lombeo/sep490-backend-sub003/internal/auth"
	"github.com/lombeo/sep490-backend-sub003/internal/models"
	"github.com/lombeo/sep490-backend-sub003/pkg/crypto"
	"github.com/lombeo/sep490-backend-sub003/pkg/logger"
	"github.com/lombeo/sep490-backend-sub003/pkg/mail"
)

const (
	// DefaultUserPageSize applies when a listing omits or exceeds the page size bounds.
	DefaultUserPageSize = 10
	maxUserPageSize     = 200
)

var (
	// ErrUsernameTaken indicates another active account uses the username.
	ErrUsernameTaken = errors.New("user service: username already exists")
	// ErrEmailTaken indicates another active account uses the email.
	ErrEmailTaken = errors.New("user service: email already exists")
	// ErrAccountExists reports a clash with any stored account, including deleted ones.
	ErrAccountExists = errors.New("user service: username or email already exists")
	// ErrInvalidUsername rejects usernames that are empty or contain whitespace.
	ErrInvalidUsername = errors.New("user service: username must not contain spaces")
	// ErrInvalidRole rejects roles outside models.Roles.
	ErrInvalidRole = errors.New("user service: unknown role")
	// ErrUserProtected guards administrators and the caller's own account.
	ErrUserProtected = errors.New("user service: administrators and your own account cannot be modified")
)

// CreateUserInput describes an account provisioned by an administrator.
type CreateUserInput struct {
	Username string
	Email    string
	FullName string
	Role     string
}

// UpdateUserInput enumerates mutable user attributes. Nil fields are left unchanged.
type UpdateUserInput struct {
	Username *string
	Email    *string
	FullName *string
	Role     *string
	IsVerify *bool
}

// UserFilters captures listing filters.
type UserFilters struct {
	Query string
	Role  string
}

// ListUsersOptions controls pagination for user listing.
type ListUsersOptions struct {
	Page     int
	PageSize int
	Filters  UserFilters
}

// UserService implements administrator account management.
type UserService struct {
	db        *gorm.DB
	directory *UserDirectory
	sessions  *iauth.SessionService
	mailer    mail.Mailer
	passwords func() (string, error)
	log       *zap.Logger
}

// UserOption customises the UserService.
type UserOption func(*UserService)

// WithUserPasswordGenerator replaces the generator of initial passwords.
func WithUserPasswordGenerator(gen func() (string, error)) UserOption {
	return func(s *UserService) {
		if gen != nil {
			s.passwords = gen
		}
	}
}

// NewUserService constructs a UserService. A nil mailer disables email delivery.
func NewUserService(db *gorm.DB, directory *UserDirectory, sessions *iauth.SessionService, mailer mail.Mailer, opts ...UserOption) (*UserService, error) {
	switch {
	case db == nil:
		return nil, errors.New("user service: db is required")
	case directory == nil:
		return nil, errors.New("user service: user directory is required")
	case sessions == nil:
		return nil, errors.New("user service: session service is required")
	}

	svc := &UserService{
		db:        db,
		directory: directory,
		sessions:  sessions,
		mailer:    mailer,
		passwords: func() (string, error) { return crypto.GenerateStrongPassword(generatedPasswordLength) },
		log:       logger.WithModule("users"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create provisions a verified account with a generated password that is
// emailed to the new user. A failed delivery rolls the account back.
func (s *UserService) Create(ctx context.Context, actorID uint, input CreateUserInput) (*models.User, error) {
	username := strings.TrimSpace(input.Username)
	email := normalizeEmail(input.Email)
	if username == "" || strings.ContainsAny(username, " \t\r\n") {
		return nil, ErrInvalidUsername
	}
	if !models.ValidRole(input.Role) {
		return nil, ErrInvalidRole
	}

	user := &models.User{
		BaseModel: models.BaseModel{Creator: actorID, Updater: actorID},
		Username:  username,
		Email:     email,
		FullName:  strings.TrimSpace(input.FullName),
		Role:      input.Role,
		IsVerify:  true,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkAvailable(tx, 0, username, email); err != nil {
			return err
		}

		password, err := s.passwords()
		if err != nil {
			return fmt.Errorf("user service: generate password: %w", err)
		}
		if user.Password, err = crypto.HashPassword(password); err != nil {
			return fmt.Errorf("user service: hash password: %w", err)
		}
		if err := tx.Create(user).Error; err != nil {
			return err
		}

		return deliver(ctx, s.mailer, s.log, user.Email, "Your new password", fmt.Sprintf(
			"Hello %s,\r\n\r\nAn account has been created for you. Your password is %s. Sign in and change it as soon as possible.\r\n",
			user.Username, password,
		))
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("%w: %w", ErrAccountExists, err)
		}
		if errors.Is(err, ErrUsernameTaken) || errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}

	s.log.Info("user created",
		zap.Uint("user_id", user.ID),
		zap.Uint("actor_id", actorID),
		zap.String("role", user.Role),
	)
	return user, s.directory.Upsert(ctx, user.ID)
}

// GetByID loads an active user.
func (s *UserService) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ? AND deleted = ?", id, false).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get user: %w", err)
	}
	return &user, nil
}

// List retrieves active users matching the supplied filters, newest first.
func (s *UserService) List(ctx context.Context, opts ListUsersOptions) ([]models.User, int64, error) {
	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > maxUserPageSize {
		perPage = DefaultUserPageSize
	}

	query := s.db.WithContext(ctx).Model(&models.User{}).Where("deleted = ?", false)
	if role := strings.TrimSpace(opts.Filters.Role); role != "" {
		query = query.Where("role = ?", role)
	}
	if q := strings.TrimSpace(opts.Filters.Query); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ? OR LOWER(full_name) LIKE ?", pattern, pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: count users: %w", err)
	}

	var users []models.User
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: list users: %w", err)
	}

	return users, total, nil
}

// Update persists mutable attributes of a non-administrator account other
// than the caller's.
func (s *UserService) Update(ctx context.Context, actorID, id uint, input UpdateUserInput) (*models.User, error) {
	user, err := s.loadModifiable(ctx, actorID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	username, email := user.Username, user.Email
	if input.Username != nil {
		name := strings.TrimSpace(*input.Username)
		if name == "" || strings.ContainsAny(name, " \t\r\n") {
			return nil, ErrInvalidUsername
		}
		if name != user.Username {
			updates["username"], username = name, name
		}
	}
	if input.Email != nil {
		if normalized := normalizeEmail(*input.Email); normalized != "" && normalized != normalizeEmail(user.Email) {
			updates["email"], email = normalized, normalized
		}
	}
	if input.Role != nil {
		if !models.ValidRole(*input.Role) {
			return nil, ErrInvalidRole
		}
		updates["role"] = *input.Role
	}
	if input.FullName != nil {
		updates["full_name"] = strings.TrimSpace(*input.FullName)
	}
	if input.IsVerify != nil {
		updates["is_verify"] = *input.IsVerify
	}

	if len(updates) == 0 {
		return user, nil
	}
	updates["updater"] = actorID

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkAvailable(tx, user.ID, username, email); err != nil {
			return err
		}
		return tx.Model(user).Updates(updates).Error
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("%w: %w", ErrAccountExists, err)
		}
		if errors.Is(err, ErrUsernameTaken) || errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("user service: update user: %w", err)
	}

	if err := s.directory.Upsert(ctx, user.ID); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, user.ID)
}

// Delete soft deletes a non-administrator account other than the caller's
// and revokes its refresh token.
func (s *UserService) Delete(ctx context.Context, actorID, id uint) error {
	user, err := s.loadModifiable(ctx, actorID, id)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Model(user).
		Updates(map[string]any{"deleted": true, "updater": actorID}).Error; err != nil {
		return fmt.Errorf("user service: delete user: %w", err)
	}
	if err := s.sessions.RevokeUser(ctx, user.ID); err != nil {
		return err
	}

	s.log.Info("user deleted", zap.Uint("user_id", user.ID), zap.Uint("actor_id", actorID))
	return s.directory.Upsert(ctx, user.ID)
}

func (s *UserService) loadModifiable(ctx context.Context, actorID, id uint) (*models.User, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.ID == actorID || user.Role == models.RoleAdmin {
		return nil, ErrUserProtected
	}
	return user, nil
}

// checkAvailable ensures no other active account uses username or email.
func (s *UserService) checkAvailable(tx *gorm.DB, exceptID uint, username, email string) error {
	var clashes []models.User
	err := tx.Select("id", "username", "email").
		Where("deleted = ? AND id <> ? AND (username = ? OR LOWER(email) = ?)", false, exceptID, username, email).
		Find(&clashes).Error
	if err != nil {
		return fmt.Errorf("user service: check uniqueness: %w", err)
	}
	for _, clash := range clashes {
		if clash.Username == username {
			return ErrUsernameTaken
		}
	}
	if len(clashes) > 0 {
		return ErrEmailTaken
	}
	return nil
}
