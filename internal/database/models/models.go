// Package models defines the data structures for database entities in the
// certificate manager. It covers users, certificates, certificate requests,
// and retained password history.
package models

import (
	"database/sql"
	"time"
)

// Role is a user's authorization role.
type Role string

const (
	RoleUser   Role = "user"
	RoleIssuer Role = "issuer"
	RoleAdmin  Role = "admin"
)

// CanReviewRequests reports whether the role may see and process
// certificate requests system-wide. The base role only ever sees its own.
func (r Role) CanReviewRequests() bool {
	return r == RoleIssuer || r == RoleAdmin
}

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleIssuer || r == RoleAdmin
}

// User represents a system user
type User struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	PhoneNumber  string    `db:"phone_number"`
	PasswordHash string    `db:"password_hash"`
	Role         Role      `db:"role"`
	Verified     bool      `db:"verified"`
	CreatedAt    time.Time `db:"created_at"`
}

// Certificate represents an issued certificate bound to its holder
type Certificate struct {
	ID             string         `db:"id" json:"id"`
	SerialNumber   string         `db:"serial_number" json:"serial_number"`
	HolderID       string         `db:"holder_id" json:"holder_id"`
	CommonName     string         `db:"common_name" json:"common_name"`
	IssuerSerial   sql.NullString `db:"issuer_serial" json:"issuer_serial"`
	CertificatePEM string         `db:"certificate_pem" json:"certificate_pem"`
	PrivateKeyEnc  []byte         `db:"private_key_enc" json:"-"`
	NotBefore      time.Time      `db:"not_before" json:"not_before"`
	NotAfter       time.Time      `db:"not_after" json:"not_after"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// RequestStatus is the state of a certificate request. A request starts
// PENDING and moves exactly once to ACCEPTED or DENIED.
type RequestStatus string

const (
	StatusPending  RequestStatus = "PENDING"
	StatusAccepted RequestStatus = "ACCEPTED"
	StatusDenied   RequestStatus = "DENIED"
)

// CertificateRequest represents a pending ask to bind a certificate to a
// requester under the issuer named by IssuerSerial.
type CertificateRequest struct {
	ID              int64          `db:"id" json:"id"`
	RequesterID     string         `db:"requester_id" json:"requester_id"`
	IssuerSerial    string         `db:"issuer_serial" json:"issuer_serial"`
	Status          RequestStatus  `db:"status" json:"status"`
	RejectionReason sql.NullString `db:"rejection_reason" json:"rejection_reason"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// UsedPassword is a retained history entry for a password an owner has set.
type UsedPassword struct {
	ID             int64     `db:"id"`
	OwnerID        string    `db:"owner_id"`
	PasswordDigest string    `db:"password_digest"`
	CreatedAt      time.Time `db:"created_at"`
}
