package service

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tince250/IB-certificate-manager/internal/config"
	"github.com/tince250/IB-certificate-manager/internal/crypto"
	"github.com/tince250/IB-certificate-manager/internal/database"
	"github.com/tince250/IB-certificate-manager/internal/database/models"
	"go.uber.org/zap"
)

// CertificateService looks up certificates by serial number and generates
// new ones: self-signed roots for issuers and requester certificates when a
// request is accepted.
type CertificateService struct {
	db     *database.Database
	cfg    *config.Config
	logger *zap.Logger
}

// NewCertificateService creates a new certificate service
func NewCertificateService(db *database.Database, cfg *config.Config, logger *zap.Logger) *CertificateService {
	return &CertificateService{
		db:     db,
		cfg:    cfg,
		logger: logger,
	}
}

// CertificateDetails are the public details of a certificate together with
// its registered holder.
type CertificateDetails struct {
	Certificate *models.Certificate
	Holder      *models.User
}

// GetBySerialNumber retrieves a certificate and its holder by serial number
func (s *CertificateService) GetBySerialNumber(serial string) (*CertificateDetails, error) {
	cert, err := s.db.GetCertificateBySerial(serial)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCertificateNotFound
		}
		return nil, fmt.Errorf("failed to get certificate: %w", err)
	}

	holder, err := s.db.GetUserByID(cert.HolderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get certificate holder: %w", err)
	}

	return &CertificateDetails{
		Certificate: cert,
		Holder:      holder,
	}, nil
}

// List retrieves all certificates
func (s *CertificateService) List() ([]*models.Certificate, error) {
	return s.db.ListCertificates()
}

// GenerateRoot creates a self-signed issuer certificate held by the given
// user. The private key is wrapped with the master key before persisting.
func (s *CertificateService) GenerateRoot(holder *models.User, commonName string) (*models.Certificate, error) {
	masterKey, err := s.cfg.MasterKeyBytes()
	if err != nil {
		return nil, fmt.Errorf("master key unavailable: %w", err)
	}

	result, err := crypto.GenerateRoot(&crypto.IssueRequest{
		CommonName:   commonName,
		ValidityDays: s.cfg.Crypto.DefaultValidityDays,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate root certificate: %w", err)
	}

	keyEnc, err := crypto.EncryptPrivateKey(result.PrivateKeyDER, masterKey, result.SerialNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt private key: %w", err)
	}

	cert := &models.Certificate{
		ID:             uuid.New().String(),
		SerialNumber:   result.SerialNumber,
		HolderID:       holder.ID,
		CommonName:     commonName,
		CertificatePEM: result.CertificatePEM,
		PrivateKeyEnc:  keyEnc,
		NotBefore:      result.Certificate.NotBefore,
		NotAfter:       result.Certificate.NotAfter,
		CreatedAt:      time.Now(),
	}

	if err := s.db.CreateCertificate(cert); err != nil {
		return nil, fmt.Errorf("failed to store certificate: %w", err)
	}

	s.logger.Info("Root certificate generated",
		zap.String("serial", cert.SerialNumber),
		zap.String("holder", holder.Email),
	)

	return cert, nil
}

// GenerateForRequest issues a certificate for the requester of an accepted
// request, signed by the issuer certificate named on the request.
func (s *CertificateService) GenerateForRequest(request *models.CertificateRequest, requester *models.User) (*models.Certificate, error) {
	masterKey, err := s.cfg.MasterKeyBytes()
	if err != nil {
		return nil, fmt.Errorf("master key unavailable: %w", err)
	}

	issuerCert, err := s.db.GetCertificateBySerial(request.IssuerSerial)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCertificateNotFound
		}
		return nil, fmt.Errorf("failed to get issuer certificate: %w", err)
	}

	parsedIssuer, err := crypto.ParseCertificatePEM(issuerCert.CertificatePEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse issuer certificate: %w", err)
	}

	issuerKeyDER, err := crypto.DecryptPrivateKey(issuerCert.PrivateKeyEnc, masterKey, issuerCert.SerialNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt issuer key: %w", err)
	}

	issuerKey, err := crypto.ParsePrivateKey(issuerKeyDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse issuer key: %w", err)
	}

	result, err := crypto.IssueCertificate(&crypto.IssueRequest{
		CommonName:   requester.Email,
		ValidityDays: s.cfg.Crypto.DefaultValidityDays,
	}, parsedIssuer, issuerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to issue certificate: %w", err)
	}

	keyEnc, err := crypto.EncryptPrivateKey(result.PrivateKeyDER, masterKey, result.SerialNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt private key: %w", err)
	}

	cert := &models.Certificate{
		ID:             uuid.New().String(),
		SerialNumber:   result.SerialNumber,
		HolderID:       requester.ID,
		CommonName:     requester.Email,
		IssuerSerial:   sql.NullString{String: issuerCert.SerialNumber, Valid: true},
		CertificatePEM: result.CertificatePEM,
		PrivateKeyEnc:  keyEnc,
		NotBefore:      result.Certificate.NotBefore,
		NotAfter:       result.Certificate.NotAfter,
		CreatedAt:      time.Now(),
	}

	if err := s.db.CreateCertificate(cert); err != nil {
		return nil, fmt.Errorf("failed to store certificate: %w", err)
	}

	s.logger.Info("Certificate issued",
		zap.String("serial", cert.SerialNumber),
		zap.String("holder", requester.Email),
		zap.String("issuer_serial", issuerCert.SerialNumber),
	)

	return cert, nil
}
