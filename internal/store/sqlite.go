// Package store provides storage backends for grievanced.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
	"github.com/opengrievance/grievanced/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists complaints and sessions in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN is a file path to the SQLite database file; the containing
// directory is created if it does not exist.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("store.NewSQLiteStore: creating SQLite store", "dsn_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("store.NewSQLiteStore: DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("store.NewSQLiteStore: failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("store.NewSQLiteStore: failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("store.NewSQLiteStore: ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("store.NewSQLiteStore: failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("store.NewSQLiteStore: migrations applied")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateComplaint(c models.Complaint) (string, error) {
	if c.ID == "" {
		c.ID = NewComplaintID()
	}
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = models.StatusOpen
	}
	if c.Priority == "" {
		c.Priority = models.PriorityMedium
	}

	_, err := s.db.Exec(
		`INSERT INTO complaints (id, submitter, contact, category, description, priority, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Submitter, nilIfEmpty(c.Contact), c.Category, c.Description, string(c.Priority), string(c.Status), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateComplaint failed", "error", err, "id", c.ID)
		return "", fmt.Errorf("failed to insert complaint %s: %w", c.ID, err)
	}
	slog.Debug("SQLiteStore CreateComplaint succeeded", "id", c.ID, "category", c.Category)
	return c.ID, nil
}

func (s *SQLiteStore) GetComplaint(id string) (*models.Complaint, error) {
	row := s.db.QueryRow(
		`SELECT id, submitter, contact, category, description, priority, status, created_at, updated_at
		 FROM complaints WHERE id = ?`, id)

	c, err := scanComplaintRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("SQLiteStore GetComplaint not found", "id", id)
		return nil, ErrNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetComplaint failed", "error", err, "id", id)
		return nil, err
	}
	return c, nil
}

func (s *SQLiteStore) QueryComplaints(q models.QuerySpec) ([]models.Complaint, error) {
	query, args := buildComplaintQuery(q, sqlitePlaceholder)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore QueryComplaints query failed", "error", err)
		return nil, fmt.Errorf("failed to query complaints: %w", err)
	}
	defer rows.Close()

	complaints, err := scanComplaints(rows)
	if err != nil {
		slog.Error("SQLiteStore QueryComplaints scan failed", "error", err)
		return nil, err
	}
	slog.Debug("SQLiteStore QueryComplaints succeeded", "count", len(complaints))
	return complaints, nil
}

func (s *SQLiteStore) UpdateComplaintStatus(id string, status models.ComplaintStatus) (*models.Complaint, error) {
	current, err := s.GetComplaint(id)
	if err != nil {
		return nil, err
	}
	if !models.IsValidStatus(status) || !current.Status.CanTransitionTo(status) {
		slog.Warn("SQLiteStore UpdateComplaintStatus invalid transition", "id", id, "from", current.Status, "to", status)
		return nil, fmt.Errorf("%w: cannot transition %s from %s to %s", ErrConstraintViolation, id, current.Status, status)
	}

	now := time.Now()
	_, err = s.db.Exec(`UPDATE complaints SET status = ?, updated_at = ? WHERE id = ?`, string(status), now, id)
	if err != nil {
		slog.Error("SQLiteStore UpdateComplaintStatus failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to update complaint %s: %w", id, err)
	}

	current.Status = status
	current.UpdatedAt = now
	slog.Info("SQLiteStore UpdateComplaintStatus succeeded", "id", id, "status", status)
	return current, nil
}

// SaveSession stores or updates a chat session. The full session value is
// serialized as JSON alongside the indexed phase and timestamps.
func (s *SQLiteStore) SaveSession(sess models.Session) error {
	data, err := sess.ToJSON()
	if err != nil {
		slog.Error("SQLiteStore SaveSession serialization failed", "error", err, "sessionID", sess.ID)
		return err
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO sessions (id, phase, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		sess.ID, string(sess.Phase), data, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "sessionID", sess.ID)
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "sessionID", sess.ID, "phase", sess.Phase)
	return nil
}

func (s *SQLiteStore) GetSession(id string) (*models.Session, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM sessions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("SQLiteStore GetSession not found", "sessionID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "sessionID", id)
		return nil, err
	}

	var sess models.Session
	if err := sess.FromJSON(data); err != nil {
		slog.Error("SQLiteStore GetSession deserialization failed", "error", err, "sessionID", id)
		return nil, err
	}
	return &sess, nil
}

func (s *SQLiteStore) DeleteSession(id string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "sessionID", id)
		return err
	}
	slog.Debug("SQLiteStore DeleteSession succeeded", "sessionID", id)
	return nil
}

func (s *SQLiteStore) ListStaleSessions(cutoff time.Time) ([]models.Session, error) {
	rows, err := s.db.Query(
		`SELECT data FROM sessions WHERE phase IN (?, ?) AND updated_at < ?`,
		string(models.PhaseCollecting), string(models.PhaseConfirming), cutoff)
	if err != nil {
		slog.Error("SQLiteStore ListStaleSessions query failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	sessions, err := scanSessions(rows)
	if err != nil {
		slog.Error("SQLiteStore ListStaleSessions scan failed", "error", err)
		return nil, err
	}
	return sessions, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
