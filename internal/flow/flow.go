// Package flow implements the intent and extraction orchestration core of
// grievanced: intent classification, the slot-filling extraction engine, the
// retrieval engine, and the orchestrator that routes each chat turn.
package flow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/opengrievance/grievanced/internal/models"
)

// Defaults for configurable dialogue bounds.
const (
	// DefaultMaxInconclusiveTurns is the number of turns without progress
	// tolerated before a session is abandoned.
	DefaultMaxInconclusiveTurns = 8
	// MinDescriptionLength rejects descriptions too short to act on.
	MinDescriptionLength = 5
)

// ErrClassification is the recoverable failure signalled when intent
// classification cannot produce a usable label. The orchestrator re-prompts
// the user rather than failing the turn.
var ErrClassification = errors.New("intent classification failed")

// Canonical field names collected for a complaint.
const (
	FieldSubmitter   = "submitter"
	FieldContact     = "contact"
	FieldCategory    = "category"
	FieldDescription = "description"
	FieldPriority    = "priority"
)

// FieldSpec describes one extractable complaint field: how to request it from
// the model, how to re-ask for it, and the predicate a value must pass before
// it is merged into the session.
type FieldSpec struct {
	Name        string
	Description string // guidance embedded in the extraction schema
	Reprompt    string // question asked when the field is missing or invalid
	Required    bool
	Validate    func(string) error
}

// Config holds the tunable parameters of the orchestration core.
type Config struct {
	// Fields is the ordered list of extractable fields. Required fields gate
	// the COLLECTING -> CONFIRMING transition.
	Fields []FieldSpec
	// MaxInconclusiveTurns bounds back-and-forth without progress before the
	// session transitions to ABANDONED.
	MaxInconclusiveTurns int
}

// DefaultConfig returns the standard complaint field set and dialogue bounds.
func DefaultConfig() Config {
	return Config{
		Fields:               DefaultFieldSpecs(),
		MaxInconclusiveTurns: DefaultMaxInconclusiveTurns,
	}
}

// DefaultFieldSpecs returns the built-in complaint fields. Submitter, contact,
// category and description are required; priority is captured when offered.
func DefaultFieldSpecs() []FieldSpec {
	return []FieldSpec{
		{
			Name:        FieldSubmitter,
			Description: "Full name of the person filing the complaint",
			Reprompt:    "Could you tell me your full name?",
			Required:    true,
			Validate:    validateNonEmpty(models.ErrEmptySubmitter),
		},
		{
			Name:        FieldContact,
			Description: "10-digit contact number of the person filing the complaint",
			Reprompt:    "What is a 10-digit contact number we can reach you on?",
			Required:    true,
			Validate:    validateContact,
		},
		{
			Name:        FieldCategory,
			Description: "Complaint category: billing, technical, service, or general",
			Reprompt:    "Which area does this concern — billing, technical, service, or something else?",
			Required:    true,
			Validate:    validateNonEmpty(models.ErrEmptyCategory),
		},
		{
			Name:        FieldDescription,
			Description: "Description of the actual problem being reported",
			Reprompt:    "Please describe the problem you are facing.",
			Required:    true,
			Validate:    validateDescription,
		},
		{
			Name:        FieldPriority,
			Description: "Urgency of the complaint: low, medium, high, or urgent",
			Reprompt:    "How urgent is this — low, medium, high, or urgent?",
			Required:    false,
			Validate:    validatePriority,
		},
	}
}

// Spec returns the FieldSpec with the given name, if configured.
func (c Config) Spec(name string) (FieldSpec, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// MissingRequired returns the required fields not yet filled in the session,
// in configuration order.
func (c Config) MissingRequired(sess *models.Session) []FieldSpec {
	var missing []FieldSpec
	for _, f := range c.Fields {
		if !f.Required {
			continue
		}
		if _, ok := sess.Fields[f.Name]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

// Unfilled returns every configured field not yet present in the session.
func (c Config) Unfilled(sess *models.Session) []FieldSpec {
	var unfilled []FieldSpec
	for _, f := range c.Fields {
		if _, ok := sess.Fields[f.Name]; !ok {
			unfilled = append(unfilled, f)
		}
	}
	return unfilled
}

func validateNonEmpty(sentinel error) func(string) error {
	return func(v string) error {
		if strings.TrimSpace(v) == "" {
			return sentinel
		}
		return nil
	}
}

func validateContact(v string) error {
	digits := strings.TrimSpace(v)
	if len(digits) != models.ContactNumberLength {
		return models.ErrInvalidContact
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return models.ErrInvalidContact
		}
	}
	return nil
}

func validateDescription(v string) error {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return models.ErrEmptyDescription
	}
	if len(trimmed) < MinDescriptionLength {
		return fmt.Errorf("%w: too short", models.ErrEmptyDescription)
	}
	if len(trimmed) > models.MaxDescriptionLength {
		return models.ErrDescriptionTooLong
	}
	return nil
}

func validatePriority(v string) error {
	if !models.IsValidPriority(models.Priority(strings.ToLower(strings.TrimSpace(v)))) {
		return models.ErrInvalidPriority
	}
	return nil
}
