package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/tince250/IB-certificate-manager/internal/locking"
	"github.com/tince250/IB-certificate-manager/internal/otp"
	"github.com/tince250/IB-certificate-manager/internal/sms"
	"go.uber.org/zap"
)

const smsTemplate = "Your verification code for Certivus is %d. It's valid for two minutes."

const (
	codeMin = 100000
	codeMax = 999999
)

// VerificationService orchestrates one-time code generation, SMS delivery,
// resend, and verification. Operations for the same identity are serialized
// through a keyed mutex so a verify can never race a concurrent resend;
// different identities proceed independently.
type VerificationService struct {
	users  *UserService
	store  otp.Store
	sender sms.Sender
	locks  *locking.KeyedMutex
	window time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewVerificationService creates a new verification service
func NewVerificationService(users *UserService, store otp.Store, sender sms.Sender, window time.Duration, logger *zap.Logger) *VerificationService {
	return &VerificationService{
		users:  users,
		store:  store,
		sender: sender,
		locks:  locking.NewKeyedMutex(),
		window: window,
		now:    time.Now,
		logger: logger,
	}
}

// SendCode generates a fresh code for the identity, dispatches it by SMS,
// and stores it. The code is stored only after successful dispatch, so a
// delivery failure leaves no outstanding code behind. Any previously
// outstanding code for the identity is overwritten.
func (s *VerificationService) SendCode(ctx context.Context, email string) error {
	unlock := s.locks.Lock(email)
	defer unlock()

	return s.sendCodeLocked(ctx, email)
}

// ResendCode discards the identity's outstanding code and sends a new one.
// It fails if no code is outstanding.
func (s *VerificationService) ResendCode(ctx context.Context, email string) error {
	unlock := s.locks.Lock(email)
	defer unlock()

	deleted, err := s.store.Delete(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to delete outstanding code: %w", err)
	}
	if !deleted {
		return ErrNoOutstandingCode
	}

	return s.sendCodeLocked(ctx, email)
}

// VerifyCode checks the submitted code against the identity's outstanding
// code and, on success, marks the account verified and consumes the code.
// Failures leave the stored code untouched.
func (s *VerificationService) VerifyCode(ctx context.Context, email, submitted string) error {
	unlock := s.locks.Lock(email)
	defer unlock()

	if err := s.consumeCodeLocked(ctx, email, submitted); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(email)
	if err != nil {
		return err
	}
	if err := s.users.MarkVerified(user); err != nil {
		return err
	}

	s.logger.Info("Account activated by SMS code", zap.String("email", email))
	return nil
}

// SendResetCode dispatches a code to an already-registered user ahead of a
// password reset. Unlike SendCode it does not require the account to be
// unverified.
func (s *VerificationService) SendResetCode(ctx context.Context, email string) error {
	unlock := s.locks.Lock(email)
	defer unlock()

	user, err := s.users.GetByEmail(email)
	if err != nil {
		return err
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("failed to generate code: %w", err)
	}

	text := fmt.Sprintf(smsTemplate, code)
	if err := s.sender.Send(ctx, user.PhoneNumber, text); err != nil {
		return &DeliveryError{Err: err}
	}

	if err := s.store.Put(ctx, email, otp.Code{Value: code, IssuedAt: s.now()}); err != nil {
		return fmt.Errorf("failed to store code: %w", err)
	}

	s.logger.Info("Password reset code sent", zap.String("email", email))
	return nil
}

// ConsumeCode validates and consumes the identity's outstanding code without
// touching the account's verified state. Password reset uses this to prove
// phone ownership.
func (s *VerificationService) ConsumeCode(ctx context.Context, email, submitted string) error {
	unlock := s.locks.Lock(email)
	defer unlock()

	return s.consumeCodeLocked(ctx, email, submitted)
}

func (s *VerificationService) sendCodeLocked(ctx context.Context, email string) error {
	eligible, err := s.users.IsRegisteredAndUnverified(email)
	if err != nil {
		return err
	}
	if !eligible {
		return ErrNotEligible
	}

	user, err := s.users.GetByEmail(email)
	if err != nil {
		return err
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("failed to generate code: %w", err)
	}

	text := fmt.Sprintf(smsTemplate, code)
	if err := s.sender.Send(ctx, user.PhoneNumber, text); err != nil {
		return &DeliveryError{Err: err}
	}

	if err := s.store.Put(ctx, email, otp.Code{Value: code, IssuedAt: s.now()}); err != nil {
		return fmt.Errorf("failed to store code: %w", err)
	}

	s.logger.Info("Verification code sent", zap.String("email", email))
	return nil
}

func (s *VerificationService) consumeCodeLocked(ctx context.Context, email, submitted string) error {
	code, ok, err := s.store.Get(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to read outstanding code: %w", err)
	}
	if !ok {
		return ErrNoOutstandingCode
	}

	if s.now().After(code.IssuedAt.Add(s.window)) {
		return ErrCodeExpired
	}

	value, err := strconv.Atoi(submitted)
	if err != nil {
		return ErrCodeIncorrect
	}
	if value != code.Value {
		return ErrCodeIncorrect
	}

	if _, err := s.store.Delete(ctx, email); err != nil {
		return fmt.Errorf("failed to consume code: %w", err)
	}
	return nil
}

// generateCode returns a uniformly random six digit code
func generateCode() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return 0, err
	}
	return codeMin + int(n.Int64()), nil
}
