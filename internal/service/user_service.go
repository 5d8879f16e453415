// Package service implements the application core: user registration and
// authentication, SMS account verification, the password history guard, and
// the certificate request workflow.
package service

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tince250/IB-certificate-manager/internal/auth"
	"github.com/tince250/IB-certificate-manager/internal/config"
	"github.com/tince250/IB-certificate-manager/internal/database"
	"github.com/tince250/IB-certificate-manager/internal/database/models"
	"go.uber.org/zap"
)

// UserService handles user registration, authentication, and directory
// lookups.
type UserService struct {
	db     *database.Database
	cfg    *config.Config
	logger *zap.Logger
}

// NewUserService creates a new user service
func NewUserService(db *database.Database, cfg *config.Config, logger *zap.Logger) *UserService {
	return &UserService{
		db:     db,
		cfg:    cfg,
		logger: logger,
	}
}

// RegisterRequest represents a request to register a user
type RegisterRequest struct {
	Email       string
	PhoneNumber string
	Password    string
	Role        models.Role
}

// Register creates a new, unverified user. The initial password is recorded
// in the reuse history so it cannot be chosen again on the next change.
func (s *UserService) Register(req *RegisterRequest) (*models.User, error) {
	if _, err := s.db.GetUserByEmail(req.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	if err := auth.ValidatePasswordStrength(req.Password); err != nil {
		return nil, fmt.Errorf("weak password: %w", err)
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	role := req.Role
	if role == "" {
		role = models.RoleUser
	}
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role: %s", role)
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Email:        req.Email,
		PhoneNumber:  req.PhoneNumber,
		PasswordHash: passwordHash,
		Role:         role,
		Verified:     false,
		CreatedAt:    time.Now(),
	}

	if err := s.db.CreateUser(user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if err := s.db.CreateUsedPassword(user.ID, auth.HistoryDigest(req.Password), time.Now()); err != nil {
		return nil, fmt.Errorf("failed to record password history: %w", err)
	}

	s.logger.Info("User registered", zap.String("email", user.Email), zap.String("role", string(user.Role)))

	return user, nil
}

// Authenticate verifies credentials and returns a JWT token. Unverified
// accounts cannot log in.
func (s *UserService) Authenticate(email, password string) (string, error) {
	user, err := s.db.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("failed to get user: %w", err)
	}

	if err := auth.VerifyPassword(password, user.PasswordHash); err != nil {
		return "", ErrInvalidCredentials
	}

	if !user.Verified {
		return "", ErrInvalidCredentials
	}

	token, err := auth.GenerateToken(
		user.ID,
		user.Email,
		string(user.Role),
		s.cfg.JWT.Secret,
		s.cfg.JWT.Issuer,
		s.cfg.JWT.Expiration,
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return token, nil
}

// GetByEmail retrieves a user by email
func (s *UserService) GetByEmail(email string) (*models.User, error) {
	user, err := s.db.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by id
func (s *UserService) GetByID(id string) (*models.User, error) {
	user, err := s.db.GetUserByID(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// IsRegisteredAndUnverified reports whether the email belongs to a user who
// has registered but not yet activated their account.
func (s *UserService) IsRegisteredAndUnverified(email string) (bool, error) {
	user, err := s.db.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get user: %w", err)
	}
	return !user.Verified, nil
}

// MarkVerified marks the user's account as verified
func (s *UserService) MarkVerified(user *models.User) error {
	if err := s.db.MarkUserVerified(user.ID); err != nil {
		return fmt.Errorf("failed to mark user verified: %w", err)
	}
	user.Verified = true

	s.logger.Info("User verified", zap.String("email", user.Email))
	return nil
}
