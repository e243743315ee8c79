// Package store provides storage backends for grievanced.
//
// It persists complaints and chat sessions over a relational schema, with
// SQLite and PostgreSQL backends plus an in-memory store for tests. Complaint
// creation is the single point of write serialization: a create either fully
// succeeds or leaves no trace.
package store

import (
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opengrievance/grievanced/internal/models"
)

// ComplaintIDPrefix prefixes every complaint identifier.
const ComplaintIDPrefix = "GRV-"

// Error variables for the store failure taxonomy.
var (
	// ErrNotFound indicates the requested complaint does not exist.
	ErrNotFound = errors.New("complaint not found")
	// ErrConstraintViolation indicates a write that breaks a schema or
	// lifecycle invariant, e.g. an invalid status transition.
	ErrConstraintViolation = errors.New("constraint violation")
)

// Store defines the persistence operations used by the orchestration core.
type Store interface {
	// CreateComplaint persists a new complaint, assigning an identifier when
	// none is set, and returns the identifier.
	CreateComplaint(c models.Complaint) (string, error)
	// GetComplaint fetches a complaint by identifier. Fails with ErrNotFound.
	GetComplaint(id string) (*models.Complaint, error)
	// QueryComplaints returns complaints matching the spec's predicates
	// conjunctively, ordered most-recently-updated first, capped at the
	// spec's limit (models.DefaultQueryLimit when unset).
	QueryComplaints(q models.QuerySpec) ([]models.Complaint, error)
	// UpdateComplaintStatus transitions a complaint's lifecycle status and
	// returns the updated complaint. Fails with ErrNotFound or
	// ErrConstraintViolation for a backward/invalid transition.
	UpdateComplaintStatus(id string, status models.ComplaintStatus) (*models.Complaint, error)

	// SaveSession stores or updates a chat session.
	SaveSession(s models.Session) error
	// GetSession fetches a session by identifier; returns nil when absent.
	GetSession(id string) (*models.Session, error)
	// DeleteSession removes a session. Deleting an absent session is a no-op.
	DeleteSession(id string) error
	// ListStaleSessions returns sessions still mid-cycle whose last update
	// precedes the cutoff, for the abandonment sweep.
	ListStaleSessions(cutoff time.Time) ([]models.Session, error)

	// Close releases backend resources.
	Close() error
}

// NewComplaintID generates a fresh complaint identifier: the GRV- prefix
// followed by eight uppercase hex characters of UUID entropy.
func NewComplaintID() string {
	id := uuid.New()
	return ComplaintIDPrefix + strings.ToUpper(hex.EncodeToString(id[:4]))
}

// InMemoryStore is a non-durable Store used in tests and degraded mode.
type InMemoryStore struct {
	mu         sync.RWMutex
	complaints map[string]models.Complaint
	sessions   map[string]models.Session
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		complaints: make(map[string]models.Complaint),
		sessions:   make(map[string]models.Session),
	}
}

func (s *InMemoryStore) CreateComplaint(c models.Complaint) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = NewComplaintID()
	}
	if _, exists := s.complaints[c.ID]; exists {
		return "", ErrConstraintViolation
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
	s.complaints[c.ID] = c
	return c.ID, nil
}

func (s *InMemoryStore) GetComplaint(id string) (*models.Complaint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.complaints[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *InMemoryStore) QueryComplaints(q models.QuerySpec) ([]models.Complaint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.Complaint
	for _, c := range s.complaints {
		if matchesSpec(c, q) {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	limit := q.Limit
	if limit <= 0 {
		limit = models.DefaultQueryLimit
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func matchesSpec(c models.Complaint, q models.QuerySpec) bool {
	if q.ID != "" && c.ID != q.ID {
		return false
	}
	if q.Submitter != "" && !strings.Contains(strings.ToLower(c.Submitter), strings.ToLower(q.Submitter)) {
		return false
	}
	if q.Contact != "" && c.Contact != q.Contact {
		return false
	}
	if q.Category != "" && !strings.EqualFold(c.Category, q.Category) {
		return false
	}
	if q.Status != "" && c.Status != q.Status {
		return false
	}
	if q.Since != nil && c.CreatedAt.Before(*q.Since) {
		return false
	}
	if q.Until != nil && c.CreatedAt.After(*q.Until) {
		return false
	}
	return true
}

func (s *InMemoryStore) UpdateComplaintStatus(id string, status models.ComplaintStatus) (*models.Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.complaints[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !models.IsValidStatus(status) || !c.Status.CanTransitionTo(status) {
		return nil, ErrConstraintViolation
	}
	c.Status = status
	c.UpdatedAt = time.Now()
	s.complaints[id] = c
	return &c, nil
}

func (s *InMemoryStore) SaveSession(sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *InMemoryStore) GetSession(id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (s *InMemoryStore) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *InMemoryStore) ListStaleSessions(cutoff time.Time) ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stale []models.Session
	for _, sess := range s.sessions {
		if sess.Active() && sess.UpdatedAt.Before(cutoff) {
			stale = append(stale, sess)
		}
	}
	return stale, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
