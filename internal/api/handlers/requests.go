package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tince250/IB-certificate-manager/internal/service"
	"go.uber.org/zap"
)

// RequestHandler handles certificate request workflow operations
type RequestHandler struct {
	requestService *service.RequestService
	userService    *service.UserService
	logger         *zap.Logger
}

// NewRequestHandler creates a new request handler
func NewRequestHandler(requestService *service.RequestService, userService *service.UserService, logger *zap.Logger) *RequestHandler {
	return &RequestHandler{
		requestService: requestService,
		userService:    userService,
		logger:         logger,
	}
}

// RequestResponse is a certificate request enriched with issuer details
type RequestResponse struct {
	ID              int64  `json:"id"`
	RequesterID     string `json:"requester_id"`
	Status          string `json:"status"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	IssuerSerial    string `json:"issuer_serial"`
	IssuerCN        string `json:"issuer_cn"`
	IssuerEmail     string `json:"issuer_email"`
}

// List lists the requests visible to the current actor
// @Summary List certificate requests
// @Description Base users see their own requests; issuers and admins see all
// @Produce json
// @Success 200 {array} RequestResponse
// @Router /api/v1/requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	actor, err := currentUser(c, h.userService)
	if err != nil {
		respondError(c, err)
		return
	}

	requests, err := h.requestService.ListForActor(actor)
	if err != nil {
		h.logger.Error("Failed to list requests", zap.Error(err))
		respondError(c, err)
		return
	}

	response := make([]RequestResponse, 0, len(requests))
	for _, r := range requests {
		response = append(response, RequestResponse{
			ID:              r.Request.ID,
			RequesterID:     r.Request.RequesterID,
			Status:          string(r.Request.Status),
			RejectionReason: r.Request.RejectionReason.String,
			IssuerSerial:    r.IssuerSerial,
			IssuerCN:        r.IssuerCN,
			IssuerEmail:     r.IssuerEmail,
		})
	}

	c.JSON(http.StatusOK, response)
}

// CreateRequest submits a new certificate request
type CreateRequest struct {
	IssuerSerial string `json:"issuer_serial" binding:"required"`
}

// Create submits a new pending certificate request
// @Summary Create certificate request
// @Description Submit a request for a certificate under the named issuer
// @Accept json
// @Produce json
// @Param request body CreateRequest true "Request data"
// @Success 201 {object} map[string]interface{}
// @Router /api/v1/requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor, err := currentUser(c, h.userService)
	if err != nil {
		respondError(c, err)
		return
	}

	request, err := h.requestService.Create(actor, req.IssuerSerial)
	if err != nil {
		h.logger.Warn("Failed to create request", zap.String("requester", actor.Email), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":     request.ID,
		"status": request.Status,
	})
}

// Accept accepts a pending request and issues a certificate
// @Summary Accept certificate request
// @Description Accept a pending request; only the issuer certificate's holder may accept
// @Param id path int true "Request ID"
// @Success 200 {object} map[string]string
// @Router /api/v1/requests/{id}/accept [put]
func (h *RequestHandler) Accept(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	actor, err := currentUser(c, h.userService)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.requestService.Accept(actor, id); err != nil {
		h.logger.Warn("Failed to accept request", zap.Int64("id", id), zap.String("actor", actor.Email), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "request accepted"})
}

// DenyRequest carries the rejection reason
type DenyRequest struct {
	RejectionReason string `json:"rejection_reason" binding:"required"`
}

// Deny denies a pending request with a reason
// @Summary Deny certificate request
// @Description Deny a pending request; only the issuer certificate's holder may deny
// @Accept json
// @Param id path int true "Request ID"
// @Param request body DenyRequest true "Rejection reason"
// @Success 200 {object} map[string]string
// @Router /api/v1/requests/{id}/deny [put]
func (h *RequestHandler) Deny(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	var req DenyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor, err := currentUser(c, h.userService)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.requestService.Deny(actor, id, req.RejectionReason); err != nil {
		h.logger.Warn("Failed to deny request", zap.Int64("id", id), zap.String("actor", actor.Email), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "request denied"})
}
