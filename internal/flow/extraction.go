package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/opengrievance/grievanced/internal/genai"
	"github.com/opengrievance/grievanced/internal/models"
)

const extractionSystemPrompt = `You are the field extractor of a grievance management assistant.
Extract complaint details from the user's message.
Rules:
- Extract a person's name from patterns like "my name is X", "I am X", "call me X".
- Extract contact numbers in 10-digit format.
- The description is the actual problem being reported, with name and contact phrases removed.
- Category is one of: billing, technical, service, general.
- Priority is one of: low, medium, high, urgent.
- Only extract values actually present in the message. Use an empty string for anything absent.
- Never invent or guess values.`

// replyTrouble is the degraded reply after repeated gateway failures.
const replyTrouble = "I'm having trouble understanding right now. Could you rephrase that?"

// cancelPhrases end the filing cycle when they make up the gist of a short
// turn. A bare cancel word only counts when the turn is essentially just
// that word, so a description like "the machine won't stop beeping" is not
// swallowed.
var cancelPhrases = []string{"cancel", "never mind", "nevermind", "forget it", "stop", "quit", "abort"}

const (
	cancelMaxLen   = 60
	cancelMaxWords = 3
)

// ExtractionOutcome is the result of one turn processed by the engine.
type ExtractionOutcome struct {
	// Reply is the next message for the user. Empty when Complaint is set:
	// the orchestrator composes the filing confirmation after the store
	// assigns an identifier.
	Reply string
	// Complaint is the finalized complaint, set exactly when the user
	// confirmed the summary and the session transitioned to DONE.
	Complaint *models.Complaint
}

// ExtractionEngine drives the slot-filling state machine, calling the model
// gateway to extract and validate fields turn by turn.
type ExtractionEngine struct {
	genaiClient genai.ClientInterface
	cfg         Config
}

// NewExtractionEngine creates an extraction engine with the given field
// configuration.
func NewExtractionEngine(genaiClient genai.ClientInterface, cfg Config) *ExtractionEngine {
	if cfg.MaxInconclusiveTurns <= 0 {
		cfg.MaxInconclusiveTurns = DefaultMaxInconclusiveTurns
	}
	if len(cfg.Fields) == 0 {
		cfg.Fields = DefaultFieldSpecs()
	}
	return &ExtractionEngine{genaiClient: genaiClient, cfg: cfg}
}

// ProcessTurn advances the filing dialogue by one user turn, mutating the
// session's phase and field map. Gateway failures never surface as errors
// here: they degrade to pattern extraction and then to a rephrase request,
// with no session state lost.
func (e *ExtractionEngine) ProcessTurn(ctx context.Context, sess *models.Session, turnText string) ExtractionOutcome {
	slog.Debug("flow.ExtractionEngine.ProcessTurn", "sessionID", sess.ID, "phase", sess.Phase)

	if isCancellation(turnText) {
		slog.Info("flow.ExtractionEngine: user cancelled filing", "sessionID", sess.ID, "phase", sess.Phase)
		sess.Phase = models.PhaseAbandoned
		return ExtractionOutcome{Reply: "Okay, I've cancelled this complaint. Let me know if there's anything else I can help with."}
	}

	switch sess.Phase {
	case models.PhaseIdle:
		sess.Phase = models.PhaseCollecting
		return e.handleCollecting(ctx, sess, turnText)
	case models.PhaseCollecting:
		return e.handleCollecting(ctx, sess, turnText)
	case models.PhaseConfirming:
		return e.handleConfirming(sess, turnText)
	default:
		// DONE is terminal: replaying the confirmation must not create a
		// duplicate complaint.
		slog.Warn("flow.ExtractionEngine: turn in terminal phase", "sessionID", sess.ID, "phase", sess.Phase)
		if sess.ComplaintID != "" {
			return ExtractionOutcome{Reply: fmt.Sprintf("Your complaint %s has already been filed. Say \"file a complaint\" to start a new one.", sess.ComplaintID)}
		}
		return ExtractionOutcome{Reply: "This complaint has already been handled. Say \"file a complaint\" to start a new one."}
	}
}

func (e *ExtractionEngine) handleCollecting(ctx context.Context, sess *models.Session, turnText string) ExtractionOutcome {
	wanted := e.cfg.Unfilled(sess)

	values, degraded := e.extractFields(ctx, sess, turnText, wanted)
	if degraded && len(values) == 0 {
		// Gateway down and patterns found nothing: ask the user to rephrase
		// and keep the session exactly where it was.
		return ExtractionOutcome{Reply: replyTrouble}
	}

	merged, invalid := e.mergeFields(sess, wanted, values)

	if merged > 0 {
		sess.InconclusiveTurns = 0
	} else {
		sess.InconclusiveTurns++
		if sess.InconclusiveTurns >= e.cfg.MaxInconclusiveTurns {
			slog.Info("flow.ExtractionEngine: abandoning after inconclusive turns", "sessionID", sess.ID, "turns", sess.InconclusiveTurns)
			sess.Phase = models.PhaseAbandoned
			return ExtractionOutcome{Reply: "We don't seem to be getting anywhere, so I've set this aside. Say \"file a complaint\" whenever you'd like to start over."}
		}
	}

	missing := e.cfg.MissingRequired(sess)
	if len(missing) == 0 {
		sess.Phase = models.PhaseConfirming
		return ExtractionOutcome{Reply: e.confirmationSummary(sess)}
	}

	// A value that failed validation is re-asked specifically; the turn is
	// never silently dropped.
	if invalid != nil {
		return ExtractionOutcome{Reply: fmt.Sprintf("That doesn't look like a valid %s. %s", invalid.Name, invalid.Reprompt)}
	}

	next := missing[0]
	if merged > 0 {
		return ExtractionOutcome{Reply: "Got it. " + next.Reprompt}
	}
	return ExtractionOutcome{Reply: next.Reprompt}
}

// mergeFields validates extracted values against their specs and merges the
// valid ones into the session. The first valid value wins per field; filled
// fields are never overwritten. Returns the number of newly merged fields and
// the spec of the first value that failed validation, if any.
func (e *ExtractionEngine) mergeFields(sess *models.Session, wanted []FieldSpec, values map[string]string) (int, *FieldSpec) {
	var (
		merged  int
		invalid *FieldSpec
	)
	for i := range wanted {
		spec := wanted[i]
		value, ok := values[spec.Name]
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		value = normalizeField(spec.Name, value)
		if err := spec.Validate(value); err != nil {
			slog.Debug("flow.ExtractionEngine: extracted value failed validation", "sessionID", sess.ID, "field", spec.Name, "error", err)
			if invalid == nil && spec.Required {
				invalid = &wanted[i]
			}
			continue
		}
		if sess.SetField(spec.Name, value) {
			merged++
			slog.Debug("flow.ExtractionEngine: merged field", "sessionID", sess.ID, "field", spec.Name)
		}
	}
	return merged, invalid
}

// extractFields asks the model for the wanted fields, retrying once on a
// gateway failure and degrading to pattern extraction when both attempts
// fail or the output is malformed. The second return value reports whether
// the result came from the degraded path.
func (e *ExtractionEngine) extractFields(ctx context.Context, sess *models.Session, turnText string, wanted []FieldSpec) (map[string]string, bool) {
	messages := e.buildExtractionMessages(sess, turnText, wanted)
	schema := extractionSchema(wanted)

	values := make(map[string]string)
	err := e.genaiClient.GenerateStructured(ctx, messages, schema, &values)
	if err != nil {
		slog.Warn("flow.ExtractionEngine: extraction failed, retrying once", "error", err, "sessionID", sess.ID)
		values = make(map[string]string)
		err = e.genaiClient.GenerateStructured(ctx, messages, schema, &values)
	}
	if err != nil {
		slog.Warn("flow.ExtractionEngine: extraction failed twice, using pattern fallback", "error", err, "sessionID", sess.ID)
		return fallbackExtract(turnText, wanted), true
	}
	// Opportunistic keyword inference fills gaps the model left open.
	if _, ok := values[FieldCategory]; !ok || values[FieldCategory] == "" {
		if cat := inferCategory(turnText); cat != "" {
			values[FieldCategory] = cat
		}
	}
	if _, ok := values[FieldPriority]; !ok || values[FieldPriority] == "" {
		if pri := inferPriority(turnText); pri != "" {
			values[FieldPriority] = pri
		}
	}
	return values, false
}

func (e *ExtractionEngine) buildExtractionMessages(sess *models.Session, turnText string, wanted []FieldSpec) []openai.ChatCompletionMessageParamUnion {
	var b strings.Builder
	b.WriteString(extractionSystemPrompt)
	b.WriteString("\n\nFields to extract:\n")
	for _, f := range wanted {
		fmt.Fprintf(&b, "- %s: %s\n", f.Name, f.Description)
	}
	if len(sess.Fields) > 0 {
		b.WriteString("\nAlready collected (for context only, do not re-extract):\n")
		for _, f := range e.cfg.Fields {
			if v, ok := sess.Fields[f.Name]; ok {
				fmt.Fprintf(&b, "- %s: %s\n", f.Name, v)
			}
		}
	}
	return []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(b.String()),
		openai.UserMessage(turnText),
	}
}

func extractionSchema(wanted []FieldSpec) genai.SchemaSpec {
	properties := make(map[string]interface{}, len(wanted))
	required := make([]string, 0, len(wanted))
	for _, f := range wanted {
		properties[f.Name] = map[string]interface{}{
			"type":        "string",
			"description": f.Description + " (empty string when absent)",
		}
		required = append(required, f.Name)
	}
	return genai.SchemaSpec{
		Name:        "complaint_fields",
		Description: "Complaint fields extracted from a chat turn",
		Schema: map[string]interface{}{
			"type":                 "object",
			"properties":           properties,
			"required":             required,
			"additionalProperties": false,
		},
	}
}

func (e *ExtractionEngine) handleConfirming(sess *models.Session, turnText string) ExtractionOutcome {
	switch parseConfirmation(turnText) {
	case confirmationYes:
		sess.Phase = models.PhaseDone
		sess.InconclusiveTurns = 0
		complaint := e.buildComplaint(sess)
		slog.Info("flow.ExtractionEngine: complaint confirmed", "sessionID", sess.ID, "category", complaint.Category)
		return ExtractionOutcome{Complaint: complaint}

	case confirmationNo:
		rejected := rejectedFields(turnText, sess, e.cfg)
		if len(rejected) == 0 {
			// The user rejected the summary without naming a field: re-ask
			// everything collected so far.
			for name := range sess.Fields {
				rejected = append(rejected, name)
			}
		}
		sess.ClearFields(rejected...)
		sess.Phase = models.PhaseCollecting
		slog.Debug("flow.ExtractionEngine: confirmation rejected", "sessionID", sess.ID, "cleared", rejected)
		if missing := e.cfg.MissingRequired(sess); len(missing) > 0 {
			return ExtractionOutcome{Reply: "No problem, let's fix that. " + missing[0].Reprompt}
		}
		// Only optional fields were cleared; everything required still holds.
		sess.Phase = models.PhaseConfirming
		return ExtractionOutcome{Reply: e.confirmationSummary(sess)}

	default:
		sess.InconclusiveTurns++
		if sess.InconclusiveTurns >= e.cfg.MaxInconclusiveTurns {
			sess.Phase = models.PhaseAbandoned
			return ExtractionOutcome{Reply: "We don't seem to be getting anywhere, so I've set this aside. Say \"file a complaint\" whenever you'd like to start over."}
		}
		return ExtractionOutcome{Reply: "Sorry, I need a yes or no. " + e.confirmationSummary(sess)}
	}
}

// buildComplaint assembles the finalized complaint from the session's fields.
func (e *ExtractionEngine) buildComplaint(sess *models.Session) *models.Complaint {
	c := &models.Complaint{
		Submitter:   sess.Fields[FieldSubmitter],
		Contact:     sess.Fields[FieldContact],
		Category:    strings.ToLower(sess.Fields[FieldCategory]),
		Description: sess.Fields[FieldDescription],
		Status:      models.StatusOpen,
		Priority:    models.PriorityMedium,
	}
	if pri, ok := sess.Fields[FieldPriority]; ok {
		c.Priority = models.Priority(strings.ToLower(pri))
	} else if inferred := inferPriority(c.Description); inferred != "" {
		c.Priority = models.Priority(inferred)
	}
	return c
}

// confirmationSummary renders the collected fields for explicit confirmation.
func (e *ExtractionEngine) confirmationSummary(sess *models.Session) string {
	var b strings.Builder
	b.WriteString("Here's what I have:\n")
	for _, f := range e.cfg.Fields {
		if v, ok := sess.Fields[f.Name]; ok {
			fmt.Fprintf(&b, "- %s: %s\n", f.Name, v)
		}
	}
	b.WriteString("Shall I file this complaint? (yes/no)")
	return b.String()
}

// normalizeField canonicalizes values before validation.
func normalizeField(name, value string) string {
	value = strings.TrimSpace(value)
	switch name {
	case FieldCategory, FieldPriority:
		return strings.ToLower(value)
	default:
		return value
	}
}

type confirmation int

const (
	confirmationUnclear confirmation = iota
	confirmationYes
	confirmationNo
)

var (
	negativeWords    = []string{"no", "nope", "wrong", "incorrect", "change", "don't", "dont"}
	affirmativeWords = []string{"yes", "yep", "yeah", "correct", "confirm", "confirmed", "right", "sure", "ok", "okay"}
	affirmPhrases    = []string{"go ahead", "file it", "please do", "sounds good"}
)

// parseConfirmation interprets a turn during CONFIRMING. Keywords are matched
// as whole words, and negations are checked first so "not right" never reads
// as an affirmation.
func parseConfirmation(text string) confirmation {
	lower := strings.ToLower(strings.TrimSpace(text))
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z') && r != '\''
	})
	hasWord := func(candidates []string) bool {
		for _, w := range words {
			for _, c := range candidates {
				if w == c {
					return true
				}
			}
		}
		return false
	}
	if hasWord(negativeWords) || strings.Contains(lower, "not right") {
		return confirmationNo
	}
	if hasWord(affirmativeWords) || containsAny(lower, affirmPhrases...) {
		return confirmationYes
	}
	return confirmationUnclear
}

// fieldSynonyms maps user wording to canonical field names for rejection
// parsing ("the number is wrong" clears the contact field).
var fieldSynonyms = map[string][]string{
	FieldSubmitter:   {"name", "submitter"},
	FieldContact:     {"contact", "number", "phone", "mobile"},
	FieldCategory:    {"category", "area", "type"},
	FieldDescription: {"description", "details", "problem", "text"},
	FieldPriority:    {"priority", "urgency"},
}

// rejectedFields returns the filled fields the user named when rejecting the
// confirmation summary.
func rejectedFields(text string, sess *models.Session, cfg Config) []string {
	lower := strings.ToLower(text)
	var rejected []string
	for _, f := range cfg.Fields {
		if _, filled := sess.Fields[f.Name]; !filled {
			continue
		}
		for _, syn := range fieldSynonyms[f.Name] {
			if strings.Contains(lower, syn) {
				rejected = append(rejected, f.Name)
				break
			}
		}
	}
	return rejected
}

// isCancellation reports whether a short turn amounts to walking away from
// the current cycle. Single cancel words are only honored when the whole
// turn is a few words, so sentences that happen to contain "stop" or "quit"
// still reach the extractor.
func isCancellation(text string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(text))
	if len(trimmed) > cancelMaxLen {
		return false
	}
	words := strings.Fields(trimmed)
	for _, phrase := range cancelPhrases {
		if strings.Contains(phrase, " ") {
			if strings.Contains(trimmed, phrase) {
				return true
			}
			continue
		}
		if len(words) > cancelMaxWords {
			continue
		}
		for _, w := range words {
			if strings.Trim(w, ".,!?") == phrase {
				return true
			}
		}
	}
	return false
}
