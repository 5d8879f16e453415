package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tince250/IB-certificate-manager/internal/auth"
	"github.com/tince250/IB-certificate-manager/internal/config"
)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestAuthMiddleware(t *testing.T) {
	cfg := &config.Config{
		JWT: config.JWTConfig{
			Secret:     "test-secret-key-for-testing",
			Expiration: 24 * time.Hour,
			Issuer:     "test-issuer",
		},
	}

	t.Run("Valid token allows access", func(t *testing.T) {
		router := setupTestRouter()

		router.Use(AuthMiddleware(cfg))
		router.GET("/protected", func(c *gin.Context) {
			userID, _ := c.Get("user_id")
			email, _ := c.Get("email")
			role, _ := c.Get("role")

			c.JSON(http.StatusOK, gin.H{
				"user_id": userID,
				"email":   email,
				"role":    role,
			})
		})

		token, err := auth.GenerateToken("user123", "alice@example.com", "issuer", cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiration)
		require.NoError(t, err)

		req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "user123")
		assert.Contains(t, w.Body.String(), "alice@example.com")
		assert.Contains(t, w.Body.String(), "issuer")
	})

	t.Run("Missing Authorization header returns 401", func(t *testing.T) {
		router := setupTestRouter()
		router.Use(AuthMiddleware(cfg))
		router.GET("/protected", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "success"})
		})

		req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "authorization header required")
	})

	t.Run("Invalid Authorization header format returns 401", func(t *testing.T) {
		router := setupTestRouter()
		router.Use(AuthMiddleware(cfg))
		router.GET("/protected", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "success"})
		})

		testCases := []struct {
			name   string
			header string
		}{
			{"No Bearer prefix", "invalid-token"},
			{"Wrong prefix", "Basic invalid-token"},
			{"Only Bearer", "Bearer"},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
				req.Header.Set("Authorization", tc.header)

				w := httptest.NewRecorder()
				router.ServeHTTP(w, req)

				assert.Equal(t, http.StatusUnauthorized, w.Code)
			})
		}
	})

	t.Run("Invalid token returns 401", func(t *testing.T) {
		router := setupTestRouter()
		router.Use(AuthMiddleware(cfg))
		router.GET("/protected", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "success"})
		})

		req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "invalid or expired token")
	})

	t.Run("Expired token returns 401", func(t *testing.T) {
		router := setupTestRouter()
		router.Use(AuthMiddleware(cfg))
		router.GET("/protected", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "success"})
		})

		token, err := auth.GenerateToken("user123", "alice@example.com", "user", cfg.JWT.Secret, cfg.JWT.Issuer, -1*time.Hour)
		require.NoError(t, err)

		req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "invalid or expired token")
	})

	t.Run("Token signed with wrong secret returns 401", func(t *testing.T) {
		router := setupTestRouter()
		router.Use(AuthMiddleware(cfg))
		router.GET("/protected", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "success"})
		})

		token, err := auth.GenerateToken("user123", "alice@example.com", "user", "wrong-secret-key", cfg.JWT.Issuer, 24*time.Hour)
		require.NoError(t, err)

		req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "invalid or expired token")
	})
}

func TestRequireRole(t *testing.T) {
	cfg := &config.Config{
		JWT: config.JWTConfig{
			Secret:     "test-secret-key-for-testing",
			Expiration: 24 * time.Hour,
			Issuer:     "test-issuer",
		},
	}

	requestWithRole := func(t *testing.T, router *gin.Engine, role string) *httptest.ResponseRecorder {
		t.Helper()
		token, err := auth.GenerateToken("user123", "user@example.com", role, cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiration)
		require.NoError(t, err)

		req, _ := http.NewRequest(http.MethodGet, "/endpoint", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	newRouter := func(required string) *gin.Engine {
		router := setupTestRouter()
		router.Use(AuthMiddleware(cfg))
		router.Use(RequireRole(required))
		router.GET("/endpoint", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "access granted"})
		})
		return router
	}

	t.Run("Admin can access admin-only endpoint", func(t *testing.T) {
		w := requestWithRole(t, newRouter("admin"), "admin")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Non-admin cannot access admin-only endpoint", func(t *testing.T) {
		w := requestWithRole(t, newRouter("admin"), "user")
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "insufficient permissions")
	})

	t.Run("Admin can access issuer-level endpoint", func(t *testing.T) {
		w := requestWithRole(t, newRouter("issuer"), "admin")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Issuer can access issuer-level endpoint", func(t *testing.T) {
		w := requestWithRole(t, newRouter("issuer"), "issuer")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("User cannot access issuer-level endpoint", func(t *testing.T) {
		w := requestWithRole(t, newRouter("issuer"), "user")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Missing role in context returns 403", func(t *testing.T) {
		router := setupTestRouter()
		router.Use(RequireRole("admin"))
		router.GET("/endpoint", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "access granted"})
		})

		req, _ := http.NewRequest(http.MethodGet, "/endpoint", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "no role in context")
	})
}
