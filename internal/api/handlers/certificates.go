package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tince250/IB-certificate-manager/internal/service"
	"go.uber.org/zap"
)

// CertificateHandler handles certificate lookups and root generation
type CertificateHandler struct {
	certService *service.CertificateService
	userService *service.UserService
	logger      *zap.Logger
}

// NewCertificateHandler creates a new certificate handler
func NewCertificateHandler(certService *service.CertificateService, userService *service.UserService, logger *zap.Logger) *CertificateHandler {
	return &CertificateHandler{
		certService: certService,
		userService: userService,
		logger:      logger,
	}
}

// List lists all certificates
// @Summary List certificates
// @Description List all issued certificates
// @Produce json
// @Success 200 {array} models.Certificate
// @Router /api/v1/certificates [get]
func (h *CertificateHandler) List(c *gin.Context) {
	certificates, err := h.certService.List()
	if err != nil {
		h.logger.Error("Failed to list certificates", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list certificates"})
		return
	}

	c.JSON(http.StatusOK, certificates)
}

// GetBySerial gets a certificate's public details by serial number
// @Summary Get certificate
// @Description Get a certificate and its holder by serial number
// @Produce json
// @Param serial path string true "Serial number"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/certificates/{serial} [get]
func (h *CertificateHandler) GetBySerial(c *gin.Context) {
	serial := c.Param("serial")

	details, err := h.certService.GetBySerialNumber(serial)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"serial_number":   details.Certificate.SerialNumber,
		"common_name":     details.Certificate.CommonName,
		"holder_email":    details.Holder.Email,
		"not_before":      details.Certificate.NotBefore,
		"not_after":       details.Certificate.NotAfter,
		"certificate_pem": details.Certificate.CertificatePEM,
	})
}

// GenerateRootRequest names the issuer certificate to create
type GenerateRootRequest struct {
	HolderEmail string `json:"holder_email" binding:"required,email"`
	CommonName  string `json:"common_name" binding:"required"`
}

// GenerateRoot creates a self-signed issuer certificate (admin only)
// @Summary Generate root certificate
// @Description Generate a self-signed issuer certificate held by the given user
// @Accept json
// @Produce json
// @Param request body GenerateRootRequest true "Root certificate data"
// @Success 201 {object} models.Certificate
// @Router /api/v1/certificates/root [post]
func (h *CertificateHandler) GenerateRoot(c *gin.Context) {
	var req GenerateRootRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	holder, err := h.userService.GetByEmail(req.HolderEmail)
	if err != nil {
		respondError(c, err)
		return
	}

	cert, err := h.certService.GenerateRoot(holder, req.CommonName)
	if err != nil {
		h.logger.Error("Failed to generate root certificate", zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, cert)
}
