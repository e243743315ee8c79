// Package store provides storage backends for grievanced.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
	"github.com/opengrievance/grievanced/internal/models"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database.
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool.
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused.
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists complaints and sessions in a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("store.NewPostgresStore: creating Postgres store", "dsn_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("store.NewPostgresStore: DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("store.NewPostgresStore: failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("store.NewPostgresStore: ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("store.NewPostgresStore: failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("store.NewPostgresStore: migrations applied")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) CreateComplaint(c models.Complaint) (string, error) {
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
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.Submitter, nilIfEmpty(c.Contact), c.Category, c.Description, string(c.Priority), string(c.Status), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateComplaint failed", "error", err, "id", c.ID)
		return "", fmt.Errorf("failed to insert complaint %s: %w", c.ID, err)
	}
	slog.Debug("PostgresStore CreateComplaint succeeded", "id", c.ID, "category", c.Category)
	return c.ID, nil
}

func (s *PostgresStore) GetComplaint(id string) (*models.Complaint, error) {
	row := s.db.QueryRow(
		`SELECT id, submitter, contact, category, description, priority, status, created_at, updated_at
		 FROM complaints WHERE id = $1`, id)

	c, err := scanComplaintRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("PostgresStore GetComplaint not found", "id", id)
		return nil, ErrNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetComplaint failed", "error", err, "id", id)
		return nil, err
	}
	return c, nil
}

func (s *PostgresStore) QueryComplaints(q models.QuerySpec) ([]models.Complaint, error) {
	query, args := buildComplaintQuery(q, postgresPlaceholder)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore QueryComplaints query failed", "error", err)
		return nil, fmt.Errorf("failed to query complaints: %w", err)
	}
	defer rows.Close()

	complaints, err := scanComplaints(rows)
	if err != nil {
		slog.Error("PostgresStore QueryComplaints scan failed", "error", err)
		return nil, err
	}
	slog.Debug("PostgresStore QueryComplaints succeeded", "count", len(complaints))
	return complaints, nil
}

func (s *PostgresStore) UpdateComplaintStatus(id string, status models.ComplaintStatus) (*models.Complaint, error) {
	current, err := s.GetComplaint(id)
	if err != nil {
		return nil, err
	}
	if !models.IsValidStatus(status) || !current.Status.CanTransitionTo(status) {
		slog.Warn("PostgresStore UpdateComplaintStatus invalid transition", "id", id, "from", current.Status, "to", status)
		return nil, fmt.Errorf("%w: cannot transition %s from %s to %s", ErrConstraintViolation, id, current.Status, status)
	}

	now := time.Now()
	_, err = s.db.Exec(`UPDATE complaints SET status = $1, updated_at = $2 WHERE id = $3`, string(status), now, id)
	if err != nil {
		slog.Error("PostgresStore UpdateComplaintStatus failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to update complaint %s: %w", id, err)
	}

	current.Status = status
	current.UpdatedAt = now
	slog.Info("PostgresStore UpdateComplaintStatus succeeded", "id", id, "status", status)
	return current, nil
}

func (s *PostgresStore) SaveSession(sess models.Session) error {
	data, err := sess.ToJSON()
	if err != nil {
		slog.Error("PostgresStore SaveSession serialization failed", "error", err, "sessionID", sess.ID)
		return err
	}

	_, err = s.db.Exec(
		`INSERT INTO sessions (id, phase, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET phase = EXCLUDED.phase, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		sess.ID, string(sess.Phase), data, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "sessionID", sess.ID)
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "sessionID", sess.ID, "phase", sess.Phase)
	return nil
}

func (s *PostgresStore) GetSession(id string) (*models.Session, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM sessions WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("PostgresStore GetSession not found", "sessionID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "sessionID", id)
		return nil, err
	}

	var sess models.Session
	if err := sess.FromJSON(data); err != nil {
		slog.Error("PostgresStore GetSession deserialization failed", "error", err, "sessionID", id)
		return nil, err
	}
	return &sess, nil
}

func (s *PostgresStore) DeleteSession(id string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "sessionID", id)
		return err
	}
	slog.Debug("PostgresStore DeleteSession succeeded", "sessionID", id)
	return nil
}

func (s *PostgresStore) ListStaleSessions(cutoff time.Time) ([]models.Session, error) {
	rows, err := s.db.Query(
		`SELECT data FROM sessions WHERE phase IN ($1, $2) AND updated_at < $3`,
		string(models.PhaseCollecting), string(models.PhaseConfirming), cutoff)
	if err != nil {
		slog.Error("PostgresStore ListStaleSessions query failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	sessions, err := scanSessions(rows)
	if err != nil {
		slog.Error("PostgresStore ListStaleSessions scan failed", "error", err)
		return nil, err
	}
	return sessions, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
