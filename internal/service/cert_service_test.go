package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tince250/IB-certificate-manager/internal/crypto"
	"github.com/tince250/IB-certificate-manager/internal/database/models"
	"go.uber.org/zap"
)

func TestCertificateService_GenerateRoot(t *testing.T) {
	db, cfg := setupTestDB(t)
	users := NewUserService(db, cfg, zap.NewNop())
	certs := NewCertificateService(db, cfg, zap.NewNop())

	issuer := registerVerifiedUser(t, users, "issuer@example.com", models.RoleIssuer)

	t.Run("Generate and persist a root certificate", func(t *testing.T) {
		cert, err := certs.GenerateRoot(issuer, "Certivus Root")
		require.NoError(t, err)
		assert.NotEmpty(t, cert.SerialNumber)
		assert.Equal(t, issuer.ID, cert.HolderID)
		assert.Equal(t, "Certivus Root", cert.CommonName)
		assert.False(t, cert.IssuerSerial.Valid)
		assert.NotEmpty(t, cert.PrivateKeyEnc)

		parsed, err := crypto.ParseCertificatePEM(cert.CertificatePEM)
		require.NoError(t, err)
		assert.True(t, parsed.IsCA)

		// Persisted and retrievable
		details, err := certs.GetBySerialNumber(cert.SerialNumber)
		require.NoError(t, err)
		assert.Equal(t, issuer.Email, details.Holder.Email)
	})

	t.Run("Missing master key fails", func(t *testing.T) {
		badCfg := *cfg
		badCfg.Crypto.MasterKey = ""
		badCerts := NewCertificateService(db, &badCfg, zap.NewNop())

		_, err := badCerts.GenerateRoot(issuer, "No Key Root")
		assert.Error(t, err)
	})
}

func TestCertificateService_GenerateForRequest(t *testing.T) {
	db, cfg := setupTestDB(t)
	users := NewUserService(db, cfg, zap.NewNop())
	certs := NewCertificateService(db, cfg, zap.NewNop())

	issuer := registerVerifiedUser(t, users, "issuer@example.com", models.RoleIssuer)
	requester := registerVerifiedUser(t, users, "requester@example.com", models.RoleUser)

	root, err := certs.GenerateRoot(issuer, "Certivus Root")
	require.NoError(t, err)

	t.Run("Issue certificate under the request's issuer", func(t *testing.T) {
		request := &models.CertificateRequest{
			RequesterID:  requester.ID,
			IssuerSerial: root.SerialNumber,
			Status:       models.StatusPending,
			CreatedAt:    time.Now(),
		}

		cert, err := certs.GenerateForRequest(request, requester)
		require.NoError(t, err)
		assert.Equal(t, requester.ID, cert.HolderID)
		assert.Equal(t, requester.Email, cert.CommonName)
		assert.True(t, cert.IssuerSerial.Valid)
		assert.Equal(t, root.SerialNumber, cert.IssuerSerial.String)

		// Chain verifies against the root
		leaf, err := crypto.ParseCertificatePEM(cert.CertificatePEM)
		require.NoError(t, err)
		rootParsed, err := crypto.ParseCertificatePEM(root.CertificatePEM)
		require.NoError(t, err)
		assert.NoError(t, leaf.CheckSignatureFrom(rootParsed))
	})

	t.Run("Unknown issuer serial fails", func(t *testing.T) {
		request := &models.CertificateRequest{
			RequesterID:  requester.ID,
			IssuerSerial: "FFFFFF",
			Status:       models.StatusPending,
			CreatedAt:    time.Now(),
		}

		_, err := certs.GenerateForRequest(request, requester)
		assert.ErrorIs(t, err, ErrCertificateNotFound)
	})
}

func TestCertificateService_GetBySerialNumber(t *testing.T) {
	db, cfg := setupTestDB(t)
	users := NewUserService(db, cfg, zap.NewNop())
	certs := NewCertificateService(db, cfg, zap.NewNop())

	t.Run("Missing serial yields ErrCertificateNotFound", func(t *testing.T) {
		_, err := certs.GetBySerialNumber("FFFFFF")
		assert.ErrorIs(t, err, ErrCertificateNotFound)
	})

	t.Run("Existing certificate returns holder details", func(t *testing.T) {
		issuer := registerVerifiedUser(t, users, "holder@example.com", models.RoleIssuer)
		cert, err := certs.GenerateRoot(issuer, "Lookup Root")
		require.NoError(t, err)

		details, err := certs.GetBySerialNumber(cert.SerialNumber)
		require.NoError(t, err)
		assert.Equal(t, "Lookup Root", details.Certificate.CommonName)
		assert.Equal(t, "holder@example.com", details.Holder.Email)
	})
}
