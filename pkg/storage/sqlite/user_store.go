// Package sqlite implements the gateway's user storage on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	sqlite3 "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/doculearn/gateway/pkg/identity"
	"github.com/doculearn/gateway/pkg/storage"
)

// UserStore implements identity.UserStore using SQLite.
type UserStore struct {
	db *sql.DB
}

var _ identity.UserStore = (*UserStore)(nil)

// NewUserStore opens (or creates) the database at path and applies any
// pending migrations.
func NewUserStore(ctx context.Context, path string) (*UserStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &UserStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *UserStore) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *UserStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const userColumns = `id, email, subject, display_name, created_at`

// FindBySubject returns the user with the given provider subject, or
// storage.ErrNotFound.
func (s *UserStore) FindBySubject(ctx context.Context, subject string) (*identity.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE subject = ?`, subject)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by subject: %w", err)
	}
	return user, nil
}

// Insert persists a new user. A UNIQUE constraint violation on subject
// or email is reported as storage.ErrAlreadyExists.
func (s *UserStore) Insert(ctx context.Context, user *identity.User) (*identity.User, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, subject, display_name, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		user.ID.String(),
		user.Email,
		user.Subject,
		user.DisplayName,
		user.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, storage.ErrAlreadyExists
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}
	return user, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanUser.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*identity.User, error) {
	var (
		id          string
		email       string
		subject     string
		displayName sql.NullString
		createdAt   string
	)
	if err := row.Scan(&id, &email, &subject, &displayName, &createdAt); err != nil {
		return nil, err
	}

	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parsing user id: %w", err)
	}
	parsedCreatedAt, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &identity.User{
		ID:          parsedID,
		Email:       email,
		Subject:     subject,
		DisplayName: displayName.String,
		CreatedAt:   parsedCreatedAt,
	}, nil
}

// isUniqueViolation checks for a SQLite UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
