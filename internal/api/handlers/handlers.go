// Package handlers implements the HTTP handlers for the certificate manager
// API. Handlers bind request DTOs, call into the service layer, and map
// domain errors to response codes.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tince250/IB-certificate-manager/internal/database/models"
	"github.com/tince250/IB-certificate-manager/internal/service"
)

// respondError maps service errors to HTTP responses. Domain rule
// violations become 4xx; delivery and persistence faults become 5xx.
func respondError(c *gin.Context, err error) {
	var deliveryErr *service.DeliveryError

	switch {
	case errors.As(err, &deliveryErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "message delivery failed"})
	case errors.Is(err, service.ErrRequestNotFound),
		errors.Is(err, service.ErrCertificateNotFound),
		errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotTheIssuer):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, service.ErrPasswordReused),
		errors.Is(err, service.ErrNotEligible),
		errors.Is(err, service.ErrNoOutstandingCode),
		errors.Is(err, service.ErrCodeExpired),
		errors.Is(err, service.ErrCodeIncorrect),
		errors.Is(err, service.ErrNotPendingRequest),
		errors.Is(err, service.ErrEmailTaken):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// currentUser resolves the authenticated actor from the request context
func currentUser(c *gin.Context, users *service.UserService) (*models.User, error) {
	userID, ok := c.Get("user_id")
	if !ok {
		return nil, service.ErrUserNotFound
	}
	id, ok := userID.(string)
	if !ok {
		return nil, service.ErrUserNotFound
	}
	return users.GetByID(id)
}
