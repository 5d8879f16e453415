package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tince250/IB-certificate-manager/internal/config"
	"github.com/tince250/IB-certificate-manager/internal/database"
	"github.com/tince250/IB-certificate-manager/internal/database/models"
	"github.com/tince250/IB-certificate-manager/internal/otp"
)

// setupTestDB creates a test database with migrations
func setupTestDB(t *testing.T) (*database.Database, *config.Config) {
	dbPath := t.TempDir() + "/test.db"

	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Type: "sqlite",
			SQLite: config.SQLiteConfig{
				Path: dbPath,
			},
		},
		JWT: config.JWTConfig{
			Secret:     "test-secret-12345",
			Expiration: 24 * time.Hour,
			Issuer:     "certivus-test",
		},
		OTP: config.OTPConfig{
			ValidityWindow: 2 * time.Minute,
			Store:          "memory",
		},
		Crypto: config.CryptoConfig{
			MasterKey:           "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff",
			DefaultValidityDays: 365,
		},
		Security: config.SecurityConfig{
			PasswordHistoryLimit: 3,
		},
	}

	db, err := database.New(cfg)
	require.NoError(t, err, "Failed to create test database")

	err = db.Migrate()
	require.NoError(t, err, "Failed to run migrations")

	t.Cleanup(func() { db.Close() })

	return db, cfg
}

// fakeSender records dispatched messages and can be told to fail.
type fakeSender struct {
	mu       sync.Mutex
	messages []string
	numbers  []string
	fail     bool
}

func (f *fakeSender) Send(_ context.Context, toPhoneNumber, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("gateway unavailable")
	}
	f.messages = append(f.messages, text)
	f.numbers = append(f.numbers, toPhoneNumber)
	return nil
}

func (f *fakeSender) sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

// storedCode reads the outstanding code for an identity straight from the
// store, the way a user would read it off their phone.
func storedCode(t *testing.T, store otp.Store, identity string) string {
	t.Helper()
	code, ok, err := store.Get(context.Background(), identity)
	require.NoError(t, err)
	require.True(t, ok, "no outstanding code for %s", identity)
	return strconv.Itoa(code.Value)
}

func registerUser(t *testing.T, users *UserService, email string, role models.Role) *models.User {
	t.Helper()
	user, err := users.Register(&RegisterRequest{
		Email:       email,
		PhoneNumber: "+15551234567",
		Password:    "password123",
		Role:        role,
	})
	require.NoError(t, err)
	return user
}

func registerVerifiedUser(t *testing.T, users *UserService, email string, role models.Role) *models.User {
	t.Helper()
	user := registerUser(t, users, email, role)
	require.NoError(t, users.MarkVerified(user))
	return user
}
