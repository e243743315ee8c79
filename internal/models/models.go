// Package models defines the core data structures for grievanced.
//
// It includes the complaint lifecycle types, query specifications, intent
// classification results, and the API response envelope shared across modules.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ComplaintStatus represents the lifecycle state of a complaint.
type ComplaintStatus string

const (
	// StatusOpen is the initial status of every new complaint.
	StatusOpen ComplaintStatus = "OPEN"
	// StatusInProgress indicates the complaint is being worked on.
	StatusInProgress ComplaintStatus = "IN_PROGRESS"
	// StatusResolved is a terminal status for addressed complaints.
	StatusResolved ComplaintStatus = "RESOLVED"
	// StatusRejected is a terminal status for declined complaints.
	StatusRejected ComplaintStatus = "REJECTED"
)

// Priority represents the urgency attached to a complaint.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Validation constants for complaint input.
const (
	// MaxDescriptionLength bounds the stored complaint description.
	MaxDescriptionLength = 4096
	// ContactNumberLength is the required digit count for contact numbers.
	ContactNumberLength = 10
	// DefaultQueryLimit caps retrieval result sets when no limit is given.
	DefaultQueryLimit = 10
)

// Error variables for better error handling and testability.
var (
	ErrEmptySubmitter     = errors.New("submitter cannot be empty")
	ErrEmptyCategory      = errors.New("category cannot be empty")
	ErrEmptyDescription   = errors.New("description cannot be empty")
	ErrDescriptionTooLong = errors.New("description exceeds maximum length")
	ErrInvalidContact     = errors.New("contact must be a 10-digit number")
	ErrInvalidStatus      = errors.New("invalid complaint status")
	ErrInvalidPriority    = errors.New("invalid complaint priority")
)

// IsValidStatus checks if the given status is a known lifecycle state.
func IsValidStatus(s ComplaintStatus) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusRejected:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
// Transitions are strictly forward: OPEN -> IN_PROGRESS -> {RESOLVED, REJECTED}.
func (s ComplaintStatus) CanTransitionTo(next ComplaintStatus) bool {
	switch s {
	case StatusOpen:
		return next == StatusInProgress
	case StatusInProgress:
		return next == StatusResolved || next == StatusRejected
	default:
		return false
	}
}

// IsValidPriority checks if the given priority is supported.
func IsValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// Complaint represents a user-reported grievance tracked through its lifecycle.
type Complaint struct {
	ID          string          `json:"id"`
	Submitter   string          `json:"submitter"`
	Contact     string          `json:"contact,omitempty"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Priority    Priority        `json:"priority"`
	Status      ComplaintStatus `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Validate checks that a complaint is complete enough to be persisted.
func (c *Complaint) Validate() error {
	if strings.TrimSpace(c.Submitter) == "" {
		return ErrEmptySubmitter
	}
	if strings.TrimSpace(c.Category) == "" {
		return ErrEmptyCategory
	}
	if strings.TrimSpace(c.Description) == "" {
		return ErrEmptyDescription
	}
	if len(c.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	if c.Contact != "" {
		if len(c.Contact) != ContactNumberLength {
			return ErrInvalidContact
		}
		for _, r := range c.Contact {
			if r < '0' || r > '9' {
				return ErrInvalidContact
			}
		}
	}
	if c.Priority != "" && !IsValidPriority(c.Priority) {
		return ErrInvalidPriority
	}
	if c.Status != "" && !IsValidStatus(c.Status) {
		return ErrInvalidStatus
	}
	return nil
}

// Summary renders a short human-readable description of the complaint,
// used in confirmation prompts and retrieval replies.
func (c *Complaint) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s]", c.ID, c.Status)
	if c.Category != "" {
		fmt.Fprintf(&b, " %s", c.Category)
	}
	if c.Submitter != "" {
		fmt.Fprintf(&b, " — filed by %s", c.Submitter)
	}
	desc := c.Description
	if len(desc) > 120 {
		cut := 117
		// Back up to a rune boundary so the ellipsis never splits a character.
		for cut > 0 && !utf8.RuneStart(desc[cut]) {
			cut--
		}
		desc = desc[:cut] + "..."
	}
	if desc != "" {
		fmt.Fprintf(&b, ": %s", desc)
	}
	return b.String()
}

// Intent represents the user's high-level goal for a chat turn.
type Intent string

const (
	// IntentFileComplaint indicates the user wants to file a new complaint.
	IntentFileComplaint Intent = "FILE_COMPLAINT"
	// IntentCheckStatus indicates the user wants to look up existing complaints.
	IntentCheckStatus Intent = "CHECK_STATUS"
	// IntentOther covers chitchat and anything else.
	IntentOther Intent = "OTHER"
)

// IsValidIntent checks if the given intent label is supported.
func IsValidIntent(i Intent) bool {
	switch i {
	case IntentFileComplaint, IntentCheckStatus, IntentOther:
		return true
	default:
		return false
	}
}

// IntentResult is the per-turn classification outcome. It is consumed
// immediately by the orchestrator and never persisted.
type IntentResult struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale,omitempty"`
}

// QuerySpec is a normalized set of complaint filters derived from a
// natural-language status request.
type QuerySpec struct {
	ID        string          `json:"id,omitempty"`
	Submitter string          `json:"submitter,omitempty"`
	Contact   string          `json:"contact,omitempty"`
	Category  string          `json:"category,omitempty"`
	Status    ComplaintStatus `json:"status,omitempty"`
	Since     *time.Time      `json:"since,omitempty"`
	Until     *time.Time      `json:"until,omitempty"`
	Limit     int             `json:"limit,omitempty"`
}

// HasFilters reports whether the spec contains at least one usable predicate.
func (q QuerySpec) HasFilters() bool {
	return q.ID != "" || q.Submitter != "" || q.Contact != "" ||
		q.Category != "" || q.Status != "" || q.Since != nil || q.Until != nil
}
