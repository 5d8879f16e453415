package service

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tince250/IB-certificate-manager/internal/database"
	"github.com/tince250/IB-certificate-manager/internal/database/models"
	"github.com/tince250/IB-certificate-manager/internal/locking"
	"go.uber.org/zap"
)

// RequestService runs the certificate request workflow. A request starts
// PENDING and is moved exactly once to ACCEPTED or DENIED, only by the
// holder of the issuer certificate it names. Transitions on the same
// request are serialized in-process by a keyed mutex and guarded in the
// database by a conditional update, so a second caller always observes
// ErrNotPendingRequest once the first transition commits.
type RequestService struct {
	db     *database.Database
	certs  *CertificateService
	users  *UserService
	locks  *locking.KeyedMutex
	logger *zap.Logger
}

// NewRequestService creates a new request service
func NewRequestService(db *database.Database, certs *CertificateService, users *UserService, logger *zap.Logger) *RequestService {
	return &RequestService{
		db:     db,
		certs:  certs,
		users:  users,
		locks:  locking.NewKeyedMutex(),
		logger: logger,
	}
}

// ReturnedRequest is a request enriched with the public details of the
// issuer certificate it references.
type ReturnedRequest struct {
	Request      *models.CertificateRequest
	IssuerSerial string
	IssuerCN     string
	IssuerEmail  string
}

// Create submits a new pending request by the actor under the issuer
// certificate with the given serial number.
func (s *RequestService) Create(actor *models.User, issuerSerial string) (*models.CertificateRequest, error) {
	if _, err := s.certs.GetBySerialNumber(issuerSerial); err != nil {
		return nil, err
	}

	req := &models.CertificateRequest{
		RequesterID:  actor.ID,
		IssuerSerial: issuerSerial,
		Status:       models.StatusPending,
		CreatedAt:    time.Now(),
	}

	id, err := s.db.CreateCertificateRequest(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.ID = id

	s.logger.Info("Certificate request submitted",
		zap.Int64("request_id", id),
		zap.String("requester", actor.Email),
		zap.String("issuer_serial", issuerSerial),
	)

	return req, nil
}

// ListForActor returns the requests visible to the actor. The base role
// sees only its own requests; elevated roles see all requests system-wide.
// Each record is enriched with the issuer certificate's details.
func (s *RequestService) ListForActor(actor *models.User) ([]*ReturnedRequest, error) {
	var requests []*models.CertificateRequest
	var err error

	if actor.Role.CanReviewRequests() {
		requests, err = s.db.ListCertificateRequests()
	} else {
		requests, err = s.db.ListCertificateRequestsByRequester(actor.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}

	result := make([]*ReturnedRequest, 0, len(requests))
	for _, req := range requests {
		issuer, err := s.certs.GetBySerialNumber(req.IssuerSerial)
		if err != nil {
			return nil, err
		}
		result = append(result, &ReturnedRequest{
			Request:      req,
			IssuerSerial: issuer.Certificate.SerialNumber,
			IssuerCN:     issuer.Certificate.CommonName,
			IssuerEmail:  issuer.Holder.Email,
		})
	}

	return result, nil
}

// Accept transitions a pending request to ACCEPTED and issues a certificate
// for its requester. Only the holder of the issuer certificate may accept.
func (s *RequestService) Accept(actor *models.User, id int64) error {
	unlock := s.locks.Lock(requestKey(id))
	defer unlock()

	request, err := s.getRequest(id)
	if err != nil {
		return err
	}

	if err := s.validateProcessing(actor, request); err != nil {
		return err
	}

	requester, err := s.users.GetByID(request.RequesterID)
	if err != nil {
		return err
	}

	if _, err := s.certs.GenerateForRequest(request, requester); err != nil {
		return fmt.Errorf("failed to generate certificate: %w", err)
	}

	affected, err := s.db.TransitionRequestIfPending(id, models.StatusAccepted, sql.NullString{})
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	if affected == 0 {
		return ErrNotPendingRequest
	}

	s.logger.Info("Certificate request accepted",
		zap.Int64("request_id", id),
		zap.String("issuer", actor.Email),
		zap.String("requester", requester.Email),
	)

	return nil
}

// Deny transitions a pending request to DENIED with the given reason. Only
// the holder of the issuer certificate may deny. No certificate is issued.
func (s *RequestService) Deny(actor *models.User, id int64, rejectionReason string) error {
	unlock := s.locks.Lock(requestKey(id))
	defer unlock()

	request, err := s.getRequest(id)
	if err != nil {
		return err
	}

	if err := s.validateProcessing(actor, request); err != nil {
		return err
	}

	affected, err := s.db.TransitionRequestIfPending(id, models.StatusDenied, sql.NullString{String: rejectionReason, Valid: true})
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	if affected == 0 {
		return ErrNotPendingRequest
	}

	s.logger.Info("Certificate request denied",
		zap.Int64("request_id", id),
		zap.String("issuer", actor.Email),
		zap.String("reason", rejectionReason),
	)

	return nil
}

func (s *RequestService) getRequest(id int64) (*models.CertificateRequest, error) {
	request, err := s.db.GetCertificateRequest(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return request, nil
}

// validateProcessing runs the shared precondition check: the actor must be
// the registered holder of the issuer certificate, and the request must
// still be pending. Both checks run before any mutation.
func (s *RequestService) validateProcessing(actor *models.User, request *models.CertificateRequest) error {
	issuer, err := s.certs.GetBySerialNumber(request.IssuerSerial)
	if err != nil {
		return err
	}

	if issuer.Holder.ID != actor.ID {
		return ErrNotTheIssuer
	}

	if request.Status != models.StatusPending {
		return ErrNotPendingRequest
	}

	return nil
}

func requestKey(id int64) string {
	return "request:" + strconv.FormatInt(id, 10)
}
