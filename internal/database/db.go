// Package database provides database connection management, migrations, and
// data access methods for the certificate manager.
package database

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/tince250/IB-certificate-manager/internal/config"
	"github.com/tince250/IB-certificate-manager/internal/database/models"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Database represents the database connection and operations
type Database struct {
	db     *sql.DB
	dbType string
}

// New creates a new database connection
func New(cfg *config.Config) (*Database, error) {
	var db *sql.DB
	var err error

	switch cfg.Database.Type {
	case "sqlite":
		db, err = sql.Open("sqlite3", cfg.Database.SQLite.Path+"?_foreign_keys=on")
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite database: %w", err)
		}
		// SQLite only allows one writer at a time
		db.SetMaxOpenConns(1)
	case "postgres":
		db, err = sql.Open("postgres", cfg.GetDSN())
		if err != nil {
			return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
		}
		db.SetMaxOpenConns(cfg.Database.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.Postgres.MaxIdleConns)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{
		db:     db,
		dbType: cfg.Database.Type,
	}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Migrate runs database migrations
func (d *Database) Migrate() error {
	var migrationFiles []string
	if d.dbType == "postgres" {
		migrationFiles = []string{
			"migrations/000001_init_schema.postgres.up.sql",
		}
	} else {
		migrationFiles = []string{
			"migrations/000001_init_schema.up.sql",
		}
	}

	for _, migrationFile := range migrationFiles {
		content, err := migrationsFS.ReadFile(migrationFile)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", migrationFile, err)
		}

		// Remove comments and split into statements
		var statements []string
		lines := strings.Split(string(content), "\n")
		var currentStmt strings.Builder

		for _, line := range lines {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "--") || line == "" {
				continue
			}

			currentStmt.WriteString(line)
			currentStmt.WriteString("\n")

			if strings.HasSuffix(line, ";") {
				stmt := strings.TrimSpace(currentStmt.String())
				if stmt != "" {
					statements = append(statements, stmt)
				}
				currentStmt.Reset()
			}
		}

		for _, stmt := range statements {
			if _, err := d.db.Exec(stmt); err != nil {
				// Ignore errors from idempotent re-runs
				if !strings.Contains(err.Error(), "duplicate column") && !strings.Contains(err.Error(), "already exists") {
					return fmt.Errorf("migration %s failed: %w\nStatement: %s", migrationFile, err, stmt)
				}
			}
		}
	}

	return nil
}

// DB returns the underlying database connection for direct queries
func (d *Database) DB() *sql.DB {
	return d.db
}

// User operations

// CreateUser creates a new user
func (d *Database) CreateUser(user *models.User) error {
	query := `INSERT INTO users (id, email, phone_number, password_hash, role, verified, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`
	if d.dbType == "postgres" {
		query = `INSERT INTO users (id, email, phone_number, password_hash, role, verified, created_at)
		         VALUES ($1, $2, $3, $4, $5, $6, $7)`
	}

	_, err := d.db.Exec(query, user.ID, user.Email, user.PhoneNumber, user.PasswordHash, user.Role, user.Verified, user.CreatedAt)
	return err
}

// GetUserByEmail retrieves a user by email
func (d *Database) GetUserByEmail(email string) (*models.User, error) {
	query := `SELECT id, email, phone_number, password_hash, role, verified, created_at FROM users WHERE email = ?`
	if d.dbType == "postgres" {
		query = `SELECT id, email, phone_number, password_hash, role, verified, created_at FROM users WHERE email = $1`
	}

	var user models.User
	err := d.db.QueryRow(query, email).Scan(
		&user.ID, &user.Email, &user.PhoneNumber, &user.PasswordHash, &user.Role, &user.Verified, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByID retrieves a user by id
func (d *Database) GetUserByID(id string) (*models.User, error) {
	query := `SELECT id, email, phone_number, password_hash, role, verified, created_at FROM users WHERE id = ?`
	if d.dbType == "postgres" {
		query = `SELECT id, email, phone_number, password_hash, role, verified, created_at FROM users WHERE id = $1`
	}

	var user models.User
	err := d.db.QueryRow(query, id).Scan(
		&user.ID, &user.Email, &user.PhoneNumber, &user.PasswordHash, &user.Role, &user.Verified, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// MarkUserVerified marks a user's account as verified
func (d *Database) MarkUserVerified(id string) error {
	query := `UPDATE users SET verified = ? WHERE id = ?`
	if d.dbType == "postgres" {
		query = `UPDATE users SET verified = $1 WHERE id = $2`
	}

	res, err := d.db.Exec(query, true, id)
	if err != nil {
		return err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateUserPassword replaces a user's password hash
func (d *Database) UpdateUserPassword(id, passwordHash string) error {
	query := `UPDATE users SET password_hash = ? WHERE id = ?`
	if d.dbType == "postgres" {
		query = `UPDATE users SET password_hash = $1 WHERE id = $2`
	}

	res, err := d.db.Exec(query, passwordHash, id)
	if err != nil {
		return err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Certificate operations

// CreateCertificate creates a new certificate
func (d *Database) CreateCertificate(cert *models.Certificate) error {
	query := `INSERT INTO certificates
	          (id, serial_number, holder_id, common_name, issuer_serial, certificate_pem,
	           private_key_enc, not_before, not_after, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if d.dbType == "postgres" {
		query = `INSERT INTO certificates
		         (id, serial_number, holder_id, common_name, issuer_serial, certificate_pem,
		          private_key_enc, not_before, not_after, created_at)
		         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	}

	_, err := d.db.Exec(query,
		cert.ID, cert.SerialNumber, cert.HolderID, cert.CommonName, cert.IssuerSerial,
		cert.CertificatePEM, cert.PrivateKeyEnc, cert.NotBefore, cert.NotAfter, cert.CreatedAt,
	)
	return err
}

// GetCertificateBySerial retrieves a certificate by its serial number
func (d *Database) GetCertificateBySerial(serial string) (*models.Certificate, error) {
	query := `SELECT id, serial_number, holder_id, common_name, issuer_serial, certificate_pem,
	                 private_key_enc, not_before, not_after, created_at
	          FROM certificates WHERE serial_number = ?`
	if d.dbType == "postgres" {
		query = `SELECT id, serial_number, holder_id, common_name, issuer_serial, certificate_pem,
		                private_key_enc, not_before, not_after, created_at
		         FROM certificates WHERE serial_number = $1`
	}

	var cert models.Certificate
	err := d.db.QueryRow(query, serial).Scan(
		&cert.ID, &cert.SerialNumber, &cert.HolderID, &cert.CommonName, &cert.IssuerSerial,
		&cert.CertificatePEM, &cert.PrivateKeyEnc, &cert.NotBefore, &cert.NotAfter, &cert.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

// ListCertificates retrieves all certificates
func (d *Database) ListCertificates() ([]*models.Certificate, error) {
	query := `SELECT id, serial_number, holder_id, common_name, issuer_serial, certificate_pem,
	                 private_key_enc, not_before, not_after, created_at
	          FROM certificates ORDER BY created_at DESC`

	rows, err := d.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var certificates []*models.Certificate
	for rows.Next() {
		var cert models.Certificate
		err := rows.Scan(
			&cert.ID, &cert.SerialNumber, &cert.HolderID, &cert.CommonName, &cert.IssuerSerial,
			&cert.CertificatePEM, &cert.PrivateKeyEnc, &cert.NotBefore, &cert.NotAfter, &cert.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		certificates = append(certificates, &cert)
	}

	return certificates, rows.Err()
}

// Certificate request operations

// CreateCertificateRequest inserts a new pending request and returns its id
func (d *Database) CreateCertificateRequest(req *models.CertificateRequest) (int64, error) {
	if d.dbType == "postgres" {
		query := `INSERT INTO certificate_requests (requester_id, issuer_serial, status, created_at)
		          VALUES ($1, $2, $3, $4) RETURNING id`
		var id int64
		err := d.db.QueryRow(query, req.RequesterID, req.IssuerSerial, req.Status, req.CreatedAt).Scan(&id)
		if err != nil {
			return 0, err
		}
		return id, nil
	}

	query := `INSERT INTO certificate_requests (requester_id, issuer_serial, status, created_at)
	          VALUES (?, ?, ?, ?)`
	res, err := d.db.Exec(query, req.RequesterID, req.IssuerSerial, req.Status, req.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetCertificateRequest retrieves a request by id
func (d *Database) GetCertificateRequest(id int64) (*models.CertificateRequest, error) {
	query := `SELECT id, requester_id, issuer_serial, status, rejection_reason, created_at
	          FROM certificate_requests WHERE id = ?`
	if d.dbType == "postgres" {
		query = `SELECT id, requester_id, issuer_serial, status, rejection_reason, created_at
		         FROM certificate_requests WHERE id = $1`
	}

	var req models.CertificateRequest
	err := d.db.QueryRow(query, id).Scan(
		&req.ID, &req.RequesterID, &req.IssuerSerial, &req.Status, &req.RejectionReason, &req.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// ListCertificateRequests retrieves all requests
func (d *Database) ListCertificateRequests() ([]*models.CertificateRequest, error) {
	query := `SELECT id, requester_id, issuer_serial, status, rejection_reason, created_at
	          FROM certificate_requests ORDER BY created_at DESC`
	return d.queryRequests(query)
}

// ListCertificateRequestsByRequester retrieves the requests a user submitted
func (d *Database) ListCertificateRequestsByRequester(requesterID string) ([]*models.CertificateRequest, error) {
	query := `SELECT id, requester_id, issuer_serial, status, rejection_reason, created_at
	          FROM certificate_requests WHERE requester_id = ? ORDER BY created_at DESC`
	if d.dbType == "postgres" {
		query = `SELECT id, requester_id, issuer_serial, status, rejection_reason, created_at
		         FROM certificate_requests WHERE requester_id = $1 ORDER BY created_at DESC`
	}
	return d.queryRequests(query, requesterID)
}

func (d *Database) queryRequests(query string, args ...interface{}) ([]*models.CertificateRequest, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*models.CertificateRequest
	for rows.Next() {
		var req models.CertificateRequest
		err := rows.Scan(
			&req.ID, &req.RequesterID, &req.IssuerSerial, &req.Status, &req.RejectionReason, &req.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		requests = append(requests, &req)
	}

	return requests, rows.Err()
}

// TransitionRequestIfPending sets a request's status and rejection reason
// only if it is still PENDING. It returns the number of rows updated; zero
// means another transition already committed.
func (d *Database) TransitionRequestIfPending(id int64, status models.RequestStatus, rejectionReason sql.NullString) (int64, error) {
	query := `UPDATE certificate_requests SET status = ?, rejection_reason = ? WHERE id = ? AND status = ?`
	if d.dbType == "postgres" {
		query = `UPDATE certificate_requests SET status = $1, rejection_reason = $2 WHERE id = $3 AND status = $4`
	}

	res, err := d.db.Exec(query, status, rejectionReason, id, models.StatusPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Used password operations

// CreateUsedPassword records a password digest in the owner's history
func (d *Database) CreateUsedPassword(ownerID, digest string, createdAt time.Time) error {
	query := `INSERT INTO used_passwords (owner_id, password_digest, created_at) VALUES (?, ?, ?)`
	if d.dbType == "postgres" {
		query = `INSERT INTO used_passwords (owner_id, password_digest, created_at) VALUES ($1, $2, $3)`
	}

	_, err := d.db.Exec(query, ownerID, digest, createdAt)
	return err
}

// GetUsedPasswordsByOwner retrieves an owner's history, oldest first
func (d *Database) GetUsedPasswordsByOwner(ownerID string) ([]*models.UsedPassword, error) {
	query := `SELECT id, owner_id, password_digest, created_at FROM used_passwords WHERE owner_id = ? ORDER BY id ASC`
	if d.dbType == "postgres" {
		query = `SELECT id, owner_id, password_digest, created_at FROM used_passwords WHERE owner_id = $1 ORDER BY id ASC`
	}

	rows, err := d.db.Query(query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var passwords []*models.UsedPassword
	for rows.Next() {
		var up models.UsedPassword
		if err := rows.Scan(&up.ID, &up.OwnerID, &up.PasswordDigest, &up.CreatedAt); err != nil {
			return nil, err
		}
		passwords = append(passwords, &up)
	}

	return passwords, rows.Err()
}

// PruneUsedPasswords deletes an owner's oldest history rows so that at most
// limit remain. A history already within the limit is left untouched.
func (d *Database) PruneUsedPasswords(ownerID string, limit int) error {
	query := `DELETE FROM used_passwords WHERE owner_id = ? AND id NOT IN (
	              SELECT id FROM used_passwords WHERE owner_id = ? ORDER BY id DESC LIMIT ?)`
	if d.dbType == "postgres" {
		query = `DELETE FROM used_passwords WHERE owner_id = $1 AND id NOT IN (
		             SELECT id FROM used_passwords WHERE owner_id = $2 ORDER BY id DESC LIMIT $3)`
	}

	_, err := d.db.Exec(query, ownerID, ownerID, limit)
	return err
}
