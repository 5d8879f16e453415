package service

import (
	"errors"
	"fmt"
)

// Domain errors surfaced to callers. The HTTP layer maps these to response
// codes; anything else is treated as an internal fault.
var (
	// ErrPasswordReused means the candidate password matches an entry in
	// the owner's retained password history.
	ErrPasswordReused = errors.New("password was already used")

	// ErrNotEligible means a verification code was requested for an
	// identity that is not registered or is already verified.
	ErrNotEligible = errors.New("user is not registered or is already verified")

	// ErrNoOutstandingCode means resend or verify found no stored code for
	// the identity.
	ErrNoOutstandingCode = errors.New("no outstanding verification code")

	// ErrCodeExpired means verification was attempted after the validity
	// window.
	ErrCodeExpired = errors.New("verification code has expired")

	// ErrCodeIncorrect means the submitted code does not match the stored
	// code, or could not be parsed as a number.
	ErrCodeIncorrect = errors.New("verification code is incorrect")

	// ErrRequestNotFound means the certificate request id does not resolve.
	ErrRequestNotFound = errors.New("certificate request not found")

	// ErrNotTheIssuer means the actor attempting accept/deny is not the
	// registered holder of the issuer certificate.
	ErrNotTheIssuer = errors.New("actor is not the issuer of this request")

	// ErrNotPendingRequest means the request was already accepted or denied.
	ErrNotPendingRequest = errors.New("request is not pending")

	// ErrCertificateNotFound means the referenced serial number does not
	// resolve to a certificate.
	ErrCertificateNotFound = errors.New("certificate not found")

	// ErrUserNotFound means the email or id does not resolve to a user.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailTaken means registration was attempted with an email that is
	// already in use.
	ErrEmailTaken = errors.New("email is already registered")

	// ErrInvalidCredentials means authentication failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// DeliveryError wraps an SMS dispatch failure. It is distinct from the
// domain errors above so callers can map it to a service-unavailable
// severity rather than a validation failure.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("SMS delivery failed: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
