// Package sms provides outbound SMS delivery. The service core talks to the
// Sender interface; the Twilio client is the production implementation.
package sms

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tince250/IB-certificate-manager/internal/config"
	"go.uber.org/zap"
)

// Sender dispatches a text message to a phone number. Dispatch is
// synchronous; an error means the message was not delivered.
type Sender interface {
	Send(ctx context.Context, toPhoneNumber, text string) error
}

// TwilioSender sends messages through the Twilio REST API.
type TwilioSender struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewTwilioSender creates a sender from SMS configuration
func NewTwilioSender(cfg *config.Config, logger *zap.Logger) *TwilioSender {
	return &TwilioSender{
		accountSID: cfg.SMS.AccountSID,
		authToken:  cfg.SMS.AuthToken,
		fromNumber: cfg.SMS.FromNumber,
		baseURL:    cfg.SMS.APIBaseURL,
		httpClient: &http.Client{
			Timeout: cfg.SMS.HTTPTimeout,
		},
		logger: logger,
	}
}

// Send posts a message to the Twilio Messages endpoint
func (s *TwilioSender) Send(ctx context.Context, toPhoneNumber, text string) error {
	form := url.Values{}
	form.Set("To", toPhoneNumber)
	form.Set("From", s.fromNumber)
	form.Set("Body", text)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create SMS request: %w", err)
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send SMS request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Warn("SMS dispatch rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("to", toPhoneNumber),
		)
		return fmt.Errorf("SMS service returned status %d", resp.StatusCode)
	}

	s.logger.Debug("SMS dispatched", zap.String("to", toPhoneNumber))
	return nil
}
