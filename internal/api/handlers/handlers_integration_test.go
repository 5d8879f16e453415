package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tince250/IB-certificate-manager/internal/api"
	"github.com/tince250/IB-certificate-manager/internal/auth"
	"github.com/tince250/IB-certificate-manager/internal/config"
	"github.com/tince250/IB-certificate-manager/internal/database"
	"github.com/tince250/IB-certificate-manager/internal/database/models"
	"github.com/tince250/IB-certificate-manager/internal/otp"
	"github.com/tince250/IB-certificate-manager/internal/service"
	"go.uber.org/zap"
)

// fakeSender records dispatched texts and can be told to fail
type fakeSender struct {
	mu       sync.Mutex
	messages []string
	fail     bool
}

func (f *fakeSender) Send(_ context.Context, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("gateway unavailable")
	}
	f.messages = append(f.messages, text)
	return nil
}

// testEnv holds the full stack wired against a temp database
type testEnv struct {
	router *gin.Engine
	db     *database.Database
	cfg    *config.Config
	store  *otp.MemoryStore
	sender *fakeSender
	users  *service.UserService
	certs  *service.CertificateService
}

func setupTestEnvironment(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Type: "sqlite",
			SQLite: config.SQLiteConfig{
				Path: t.TempDir() + "/test.db",
			},
		},
		JWT: config.JWTConfig{
			Secret:     "test-secret-key-for-testing-only-12345",
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
		Logging: config.LoggingConfig{
			Level: "info",
		},
		Security: config.SecurityConfig{
			PasswordHistoryLimit: 3,
		},
	}

	db, err := database.New(cfg)
	require.NoError(t, err, "Failed to create test database")
	require.NoError(t, db.Migrate(), "Failed to run migrations")
	t.Cleanup(func() { db.Close() })

	logger := zap.NewNop()
	store := otp.NewMemoryStore()
	sender := &fakeSender{}

	router := api.NewRouter(cfg, db, store, sender, logger)

	return &testEnv{
		router: router,
		db:     db,
		cfg:    cfg,
		store:  store,
		sender: sender,
		users:  service.NewUserService(db, cfg, logger),
		certs:  service.NewCertificateService(db, cfg, logger),
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(data)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) newVerifiedUser(t *testing.T, email string, role models.Role) (*models.User, string) {
	t.Helper()
	user, err := e.users.Register(&service.RegisterRequest{
		Email:       email,
		PhoneNumber: "+15551234567",
		Password:    "password123",
		Role:        role,
	})
	require.NoError(t, err)
	require.NoError(t, e.users.MarkVerified(user))

	token, err := auth.GenerateToken(user.ID, user.Email, string(user.Role), e.cfg.JWT.Secret, e.cfg.JWT.Issuer, e.cfg.JWT.Expiration)
	require.NoError(t, err)
	return user, token
}

func (e *testEnv) outstandingCode(t *testing.T, email string) string {
	t.Helper()
	code, ok, err := e.store.Get(context.Background(), email)
	require.NoError(t, err)
	require.True(t, ok, "no outstanding code for %s", email)
	return strconv.Itoa(code.Value)
}

func TestRegistrationAndActivationFlow(t *testing.T) {
	env := setupTestEnvironment(t)

	// Register
	w := env.do(t, http.MethodPost, "/api/v1/users", "", gin.H{
		"email":        "alice@example.com",
		"phone_number": "+15551234567",
		"password":     "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	// Login before activation is rejected
	w = env.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email":    "alice@example.com",
		"password": "password123",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Request activation code
	w = env.do(t, http.MethodPost, "/api/v1/users/activation/send", "", gin.H{
		"email": "alice@example.com",
	})
	require.Equal(t, http.StatusOK, w.Code)

	// Activate with the dispatched code
	code := env.outstandingCode(t, "alice@example.com")
	w = env.do(t, http.MethodPost, "/api/v1/users/activation", "", gin.H{
		"email": "alice@example.com",
		"code":  code,
	})
	require.Equal(t, http.StatusOK, w.Code)

	// Login now succeeds
	w = env.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email":    "alice@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var loginResp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loginResp))
	token := loginResp["token"]
	require.NotEmpty(t, token)

	// Current user reflects the token
	w = env.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alice@example.com")
}

func TestActivationErrorMapping(t *testing.T) {
	env := setupTestEnvironment(t)

	t.Run("Unregistered identity gets 400", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/users/activation/send", "", gin.H{
			"email": "nobody@example.com",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Delivery failure gets 502", func(t *testing.T) {
		_, err := env.users.Register(&service.RegisterRequest{
			Email:       "bob@example.com",
			PhoneNumber: "+15551234567",
			Password:    "password123",
		})
		require.NoError(t, err)

		env.sender.fail = true
		defer func() { env.sender.fail = false }()

		w := env.do(t, http.MethodPost, "/api/v1/users/activation/send", "", gin.H{
			"email": "bob@example.com",
		})
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Contains(t, w.Body.String(), "message delivery failed")
	})

	t.Run("Resend without outstanding code gets 400", func(t *testing.T) {
		_, err := env.users.Register(&service.RegisterRequest{
			Email:       "carol@example.com",
			PhoneNumber: "+15551234567",
			Password:    "password123",
		})
		require.NoError(t, err)

		w := env.do(t, http.MethodPost, "/api/v1/users/activation/resend", "", gin.H{
			"email": "carol@example.com",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Wrong code gets 400", func(t *testing.T) {
		_, err := env.users.Register(&service.RegisterRequest{
			Email:       "dave@example.com",
			PhoneNumber: "+15551234567",
			Password:    "password123",
		})
		require.NoError(t, err)

		w := env.do(t, http.MethodPost, "/api/v1/users/activation/send", "", gin.H{
			"email": "dave@example.com",
		})
		require.Equal(t, http.StatusOK, w.Code)

		code := env.outstandingCode(t, "dave@example.com")
		wrong := "100000"
		if wrong == code {
			wrong = "100001"
		}

		w = env.do(t, http.MethodPost, "/api/v1/users/activation", "", gin.H{
			"email": "dave@example.com",
			"code":  wrong,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCertificateRequestFlow(t *testing.T) {
	env := setupTestEnvironment(t)

	issuer, issuerToken := env.newVerifiedUser(t, "issuer@example.com", models.RoleIssuer)
	_, requesterToken := env.newVerifiedUser(t, "requester@example.com", models.RoleUser)

	root, err := env.certs.GenerateRoot(issuer, "Certivus Root")
	require.NoError(t, err)

	// Requester submits a request
	w := env.do(t, http.MethodPost, "/api/v1/requests", requesterToken, gin.H{
		"issuer_serial": root.SerialNumber,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	requestID := int64(created["id"].(float64))

	// Requester sees their own request
	w = env.do(t, http.MethodGet, "/api/v1/requests", requesterToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "PENDING")

	// A different requester cannot process it
	_, otherToken := env.newVerifiedUser(t, "other@example.com", models.RoleIssuer)
	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/requests/%d/accept", requestID), otherToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// The issuer accepts
	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/requests/%d/accept", requestID), issuerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Accepting again fails
	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/requests/%d/accept", requestID), issuerToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Denying afterwards fails too
	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/requests/%d/deny", requestID), issuerToken, gin.H{
		"rejection_reason": "too late",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown request id maps to 404
	w = env.do(t, http.MethodPut, "/api/v1/requests/9999/accept", issuerToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// The requester's certificate is listed
	w = env.do(t, http.MethodGet, "/api/v1/certificates", requesterToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "requester@example.com")
}

func TestDenyFlow(t *testing.T) {
	env := setupTestEnvironment(t)

	issuer, issuerToken := env.newVerifiedUser(t, "issuer@example.com", models.RoleIssuer)
	_, requesterToken := env.newVerifiedUser(t, "requester@example.com", models.RoleUser)

	root, err := env.certs.GenerateRoot(issuer, "Certivus Root")
	require.NoError(t, err)

	w := env.do(t, http.MethodPost, "/api/v1/requests", requesterToken, gin.H{
		"issuer_serial": root.SerialNumber,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	requestID := int64(created["id"].(float64))

	// Deny requires a reason
	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/requests/%d/deny", requestID), issuerToken, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/requests/%d/deny", requestID), issuerToken, gin.H{
		"rejection_reason": "incomplete details",
	})
	require.Equal(t, http.StatusOK, w.Code)

	// The reason is visible in the listing
	w = env.do(t, http.MethodGet, "/api/v1/requests", requesterToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "DENIED")
	assert.Contains(t, w.Body.String(), "incomplete details")
}

func TestPasswordChangeAndReset(t *testing.T) {
	env := setupTestEnvironment(t)

	t.Run("Change password enforces reuse history", func(t *testing.T) {
		_, token := env.newVerifiedUser(t, "alice@example.com", models.RoleUser)

		// Reusing the current password is rejected
		w := env.do(t, http.MethodPut, "/api/v1/users/password", token, gin.H{
			"current_password": "password123",
			"new_password":     "password123",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		// A fresh password is accepted
		w = env.do(t, http.MethodPut, "/api/v1/users/password", token, gin.H{
			"current_password": "password123",
			"new_password":     "newpassword99",
		})
		require.Equal(t, http.StatusOK, w.Code)

		// The old credential no longer logs in
		w = env.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
			"email":    "alice@example.com",
			"password": "password123",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		w = env.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
			"email":    "alice@example.com",
			"password": "newpassword99",
		})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Reset password with SMS code", func(t *testing.T) {
		env.newVerifiedUser(t, "bob@example.com", models.RoleUser)

		w := env.do(t, http.MethodPost, "/api/v1/users/password/reset/send", "", gin.H{
			"email": "bob@example.com",
		})
		require.Equal(t, http.StatusOK, w.Code)

		code := env.outstandingCode(t, "bob@example.com")
		w = env.do(t, http.MethodPost, "/api/v1/users/password/reset", "", gin.H{
			"email":        "bob@example.com",
			"code":         code,
			"new_password": "resetpass99",
		})
		require.Equal(t, http.StatusOK, w.Code)

		w = env.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
			"email":    "bob@example.com",
			"password": "resetpass99",
		})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Reset with stale code fails", func(t *testing.T) {
		env.newVerifiedUser(t, "carol@example.com", models.RoleUser)

		w := env.do(t, http.MethodPost, "/api/v1/users/password/reset", "", gin.H{
			"email":        "carol@example.com",
			"code":         "123456",
			"new_password": "resetpass99",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRootCertificateEndpoint(t *testing.T) {
	env := setupTestEnvironment(t)

	_, adminToken := env.newVerifiedUser(t, "admin@example.com", models.RoleAdmin)
	holder, holderToken := env.newVerifiedUser(t, "issuer@example.com", models.RoleIssuer)

	t.Run("Admin can generate a root certificate", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/certificates/root", adminToken, gin.H{
			"holder_email": holder.Email,
			"common_name":  "Certivus Root",
		})
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), "serial_number")
	})

	t.Run("Non-admin is forbidden", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/certificates/root", holderToken, gin.H{
			"holder_email": holder.Email,
			"common_name":  "Another Root",
		})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Unknown holder maps to 404", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/certificates/root", adminToken, gin.H{
			"holder_email": "nobody@example.com",
			"common_name":  "Orphan Root",
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Certificate details are public to authenticated users", func(t *testing.T) {
		root, err := env.certs.GenerateRoot(holder, "Lookup Root")
		require.NoError(t, err)

		w := env.do(t, http.MethodGet, "/api/v1/certificates/"+root.SerialNumber, holderToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Lookup Root")
		assert.Contains(t, w.Body.String(), holder.Email)
		// The wrapped private key never leaves the server
		assert.NotContains(t, w.Body.String(), "private_key_enc")
	})

	t.Run("Unauthenticated access is rejected", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/certificates", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
