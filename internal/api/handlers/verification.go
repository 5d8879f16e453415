package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tince250/IB-certificate-manager/internal/service"
	"go.uber.org/zap"
)

// VerificationHandler handles SMS account activation and password changes
type VerificationHandler struct {
	verification *service.VerificationService
	passwords    *service.PasswordService
	userService  *service.UserService
	logger       *zap.Logger
}

// NewVerificationHandler creates a new verification handler
func NewVerificationHandler(verification *service.VerificationService, passwords *service.PasswordService, userService *service.UserService, logger *zap.Logger) *VerificationHandler {
	return &VerificationHandler{
		verification: verification,
		passwords:    passwords,
		userService:  userService,
		logger:       logger,
	}
}

// SendCodeRequest identifies the account to send a code to
type SendCodeRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// SendCode dispatches a verification code to an unverified account
// @Summary Send verification code
// @Description Send an SMS verification code to an unverified account
// @Accept json
// @Param request body SendCodeRequest true "Target account"
// @Success 200 {object} map[string]string
// @Router /api/v1/users/activation/send [post]
func (h *VerificationHandler) SendCode(c *gin.Context) {
	var req SendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.verification.SendCode(c.Request.Context(), req.Email); err != nil {
		h.logger.Warn("Failed to send verification code", zap.String("email", req.Email), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "verification code sent"})
}

// ResendCode discards the outstanding code and dispatches a new one
// @Summary Resend verification code
// @Description Replace the outstanding code with a freshly sent one
// @Accept json
// @Param request body SendCodeRequest true "Target account"
// @Success 200 {object} map[string]string
// @Router /api/v1/users/activation/resend [post]
func (h *VerificationHandler) ResendCode(c *gin.Context) {
	var req SendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.verification.ResendCode(c.Request.Context(), req.Email); err != nil {
		h.logger.Warn("Failed to resend verification code", zap.String("email", req.Email), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "verification code sent"})
}

// ActivateRequest carries the submitted activation code
type ActivateRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

// Activate verifies the submitted code and activates the account
// @Summary Activate account
// @Description Verify the SMS code and mark the account verified
// @Accept json
// @Param request body ActivateRequest true "Activation code"
// @Success 200 {object} map[string]string
// @Router /api/v1/users/activation [post]
func (h *VerificationHandler) Activate(c *gin.Context) {
	var req ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.verification.VerifyCode(c.Request.Context(), req.Email, req.Code); err != nil {
		h.logger.Warn("Activation failed", zap.String("email", req.Email), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "account activated"})
}

// SendResetCode dispatches a password reset code
// @Summary Send password reset code
// @Description Send an SMS code used to authorize a password reset
// @Accept json
// @Param request body SendCodeRequest true "Target account"
// @Success 200 {object} map[string]string
// @Router /api/v1/users/password/reset/send [post]
func (h *VerificationHandler) SendResetCode(c *gin.Context) {
	var req SendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.verification.SendResetCode(c.Request.Context(), req.Email); err != nil {
		h.logger.Warn("Failed to send reset code", zap.String("email", req.Email), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "reset code sent"})
}

// ResetPasswordRequest carries the reset code and new password
type ResetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Code        string `json:"code" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// ResetPassword sets a new password after verifying the reset code
// @Summary Reset password
// @Description Verify the reset code and set a new password, enforcing reuse history
// @Accept json
// @Param request body ResetPasswordRequest true "Reset data"
// @Success 200 {object} map[string]string
// @Router /api/v1/users/password/reset [post]
func (h *VerificationHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.passwords.ResetPassword(c.Request.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		h.logger.Warn("Password reset failed", zap.String("email", req.Email), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password reset"})
}

// ChangePasswordRequest carries the current and new password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// ChangePassword changes the authenticated user's password
// @Summary Change password
// @Description Change the current user's password, enforcing reuse history
// @Accept json
// @Param request body ChangePasswordRequest true "Password change"
// @Success 200 {object} map[string]string
// @Router /api/v1/users/password [put]
func (h *VerificationHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := currentUser(c, h.userService)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.passwords.ChangePassword(user, req.CurrentPassword, req.NewPassword); err != nil {
		h.logger.Warn("Password change failed", zap.String("email", user.Email), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}
