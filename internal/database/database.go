package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go-ticketvote/internal/models"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrDuplicateReference is returned when an attempt reference is already stored
	ErrDuplicateReference = errors.New("payment reference already exists")
	ErrNotFound           = errors.New("record not found")
)

// DB wraps the database connection
type DB struct {
	*sql.DB
	now func() time.Time
}

// InitDB initializes the database connection and creates tables
func InitDB(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	wrapper := &DB{DB: db, now: func() time.Time { return time.Now().UTC().Truncate(time.Second) }}

	if err := wrapper.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return wrapper, nil
}

func (db *DB) createTables() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS payment_attempts (
			reference TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			customer_email TEXT NOT NULL,
			amount_minor INTEGER NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			reason TEXT,
			metadata TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL,
			role TEXT DEFAULT 'registrant',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return err
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_attempts_status ON payment_attempts(status)",
		"CREATE INDEX IF NOT EXISTS idx_attempts_email ON payment_attempts(customer_email)",
		"CREATE INDEX IF NOT EXISTS idx_attempts_updated ON payment_attempts(updated_at)",
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return err
		}
	}

	return nil
}

// ============== Payment attempts ==============

// CreateAttempt stores a new attempt. A reference that already exists yields
// ErrDuplicateReference.
func (db *DB) CreateAttempt(a *models.PaymentAttempt) error {
	now := db.now()
	if a.Status == "" {
		a.Status = models.AttemptPending
	}
	var metadata sql.NullString
	if len(a.Metadata) > 0 {
		metadata = sql.NullString{String: string(a.Metadata), Valid: true}
	}

	_, err := db.Exec(`
		INSERT INTO payment_attempts (reference, kind, customer_email, amount_minor, currency, status, reason, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Reference, a.Kind, a.CustomerEmail, a.AmountMinor, a.Currency, a.Status, a.Reason, metadata, now, now,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && (sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique) {
			return ErrDuplicateReference
		}
		return err
	}

	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

// UpdateAttemptStatus moves an attempt to status
func (db *DB) UpdateAttemptStatus(reference string, status models.AttemptStatus, reason string) error {
	res, err := db.Exec(`UPDATE payment_attempts SET status = ?, reason = ?, updated_at = ? WHERE reference = ?`,
		status, reason, db.now(), reference)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetAttempt retrieves an attempt by reference
func (db *DB) GetAttempt(reference string) (*models.PaymentAttempt, error) {
	row := db.QueryRow(`SELECT reference, kind, customer_email, amount_minor, currency, status, reason, metadata, created_at, updated_at
		FROM payment_attempts WHERE reference = ?`, reference)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// ListAttempts returns attempts newest first, optionally filtered by status
func (db *DB) ListAttempts(status string, limit, offset int) ([]*models.PaymentAttempt, int64, error) {
	where := ""
	var args []interface{}
	if status != "" {
		where = " WHERE status = ?"
		args = append(args, status)
	}

	var total int64
	if err := db.QueryRow("SELECT COUNT(*) FROM payment_attempts"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}
	query := `SELECT reference, kind, customer_email, amount_minor, currency, status, reason, metadata, created_at, updated_at
		FROM payment_attempts` + where + ` ORDER BY created_at DESC, reference LIMIT ? OFFSET ?`
	rows, err := db.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var attempts []*models.PaymentAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, 0, err
		}
		attempts = append(attempts, a)
	}
	return attempts, total, rows.Err()
}

// PurgeAttempts deletes terminal attempts last updated before cutoff. Attempts
// waiting for reconciliation are kept.
func (db *DB) PurgeAttempts(cutoff time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM payment_attempts WHERE updated_at < ? AND status NOT IN (?, ?, ?)`,
		cutoff.UTC().Truncate(time.Second), models.AttemptPending, models.AttemptVerifying, models.AttemptReconcile)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAttempt(s scanner) (*models.PaymentAttempt, error) {
	var a models.PaymentAttempt
	var reason, metadata sql.NullString
	err := s.Scan(&a.Reference, &a.Kind, &a.CustomerEmail, &a.AmountMinor, &a.Currency, &a.Status,
		&reason, &metadata, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Reason = reason.String
	if metadata.Valid {
		a.Metadata = []byte(metadata.String)
	}
	return &a, nil
}

// ============== Settings ==============

// GetSetting retrieves a configuration value, empty when unset
func (db *DB) GetSetting(key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SaveSetting saves or updates a configuration value
func (db *DB) SaveSetting(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// ============== Users ==============

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	err := db.QueryRow(`SELECT id, username, password, role, created_at FROM users WHERE username = ?`, username).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser hashes password and stores a new user
func (db *DB) CreateUser(username, password, role string) (*models.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	res, err := db.Exec(`INSERT INTO users (username, password, role, created_at) VALUES (?, ?, ?, ?)`,
		username, string(hashed), role, db.now())
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	return &models.User{ID: id, Username: username, PasswordHash: string(hashed), Role: role, CreatedAt: db.now()}, nil
}

// Authenticate returns the user when password matches the stored hash
func (db *DB) Authenticate(username, password string) (*models.User, error) {
	user, err := db.GetUserByUsername(username)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrNotFound
	}
	return user, nil
}

// EnsureDefaultAdmin creates the admin account when it does not exist yet
func (db *DB) EnsureDefaultAdmin(username, password string) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&count); err != nil {
		return fmt.Errorf("failed to check for existing admin: %w", err)
	}
	if count > 0 {
		return nil
	}

	if _, err := db.CreateUser(username, password, "admin"); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	fmt.Printf("✓ Default admin user '%s' created\n", username)
	return nil
}
