package service

import (
	"context"
	"fmt"
	"time"

	"github.com/tince250/IB-certificate-manager/internal/auth"
	"github.com/tince250/IB-certificate-manager/internal/database"
	"github.com/tince250/IB-certificate-manager/internal/database/models"
	"github.com/tince250/IB-certificate-manager/internal/locking"
	"go.uber.org/zap"
)

// PasswordService enforces the password reuse history and performs password
// changes and code-gated resets. Changes for the same owner are serialized
// so two concurrent changes cannot both pass the reuse check against a
// stale history snapshot.
type PasswordService struct {
	db           *database.Database
	users        *UserService
	verification *VerificationService
	locks        *locking.KeyedMutex
	limit        int
	logger       *zap.Logger
}

// NewPasswordService creates a new password service. limit is the number of
// past passwords retained per owner.
func NewPasswordService(db *database.Database, users *UserService, verification *VerificationService, limit int, logger *zap.Logger) *PasswordService {
	return &PasswordService{
		db:           db,
		users:        users,
		verification: verification,
		locks:        locking.NewKeyedMutex(),
		limit:        limit,
		logger:       logger,
	}
}

// CheckNotReused fails with ErrPasswordReused if the candidate password
// matches any entry in the owner's retained history. It has no side effects.
func (s *PasswordService) CheckNotReused(ownerID, candidate string) error {
	history, err := s.db.GetUsedPasswordsByOwner(ownerID)
	if err != nil {
		return fmt.Errorf("failed to load password history: %w", err)
	}

	digest := auth.HistoryDigest(candidate)
	for _, used := range history {
		if used.PasswordDigest == digest {
			return ErrPasswordReused
		}
	}
	return nil
}

// RecordNewPassword stores the password the owner just set as a history
// entry, then prunes oldest-first until at most the configured limit
// remain. It must run after the credential write, never before the reuse
// check.
func (s *PasswordService) RecordNewPassword(owner *models.User, password string) error {
	if err := s.db.CreateUsedPassword(owner.ID, auth.HistoryDigest(password), time.Now()); err != nil {
		return fmt.Errorf("failed to record password history: %w", err)
	}

	if err := s.db.PruneUsedPasswords(owner.ID, s.limit); err != nil {
		return fmt.Errorf("failed to prune password history: %w", err)
	}
	return nil
}

// ChangePassword changes the password of a logged-in user after verifying
// the current one and running the reuse guard.
func (s *PasswordService) ChangePassword(user *models.User, currentPassword, newPassword string) error {
	unlock := s.locks.Lock(user.ID)
	defer unlock()

	if err := auth.VerifyPassword(currentPassword, user.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}

	return s.setPassword(user, newPassword)
}

// ResetPassword sets a new password for the user after consuming a valid
// one-time code for the email, proving phone ownership.
func (s *PasswordService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	user, err := s.users.GetByEmail(email)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(user.ID)
	defer unlock()

	if err := s.verification.ConsumeCode(ctx, email, code); err != nil {
		return err
	}

	if err := s.setPassword(user, newPassword); err != nil {
		return err
	}

	s.logger.Info("Password reset", zap.String("email", email))
	return nil
}

func (s *PasswordService) setPassword(user *models.User, newPassword string) error {
	if err := auth.ValidatePasswordStrength(newPassword); err != nil {
		return fmt.Errorf("weak password: %w", err)
	}

	if err := s.CheckNotReused(user.ID, newPassword); err != nil {
		return err
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.db.UpdateUserPassword(user.ID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	user.PasswordHash = hash

	return s.RecordNewPassword(user, newPassword)
}
