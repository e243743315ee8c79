package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/opengrievance/grievanced/internal/genai"
	"github.com/opengrievance/grievanced/internal/models"
	"github.com/opengrievance/grievanced/internal/store"
)

const queryResolutionSystemPrompt = `You are the query resolver of a grievance management assistant.
The user is asking about existing complaints. Extract search filters from the message.
Rules:
- complaint_id: an explicit complaint identifier if one is mentioned (formats like GRV-1A2B3C4D or "complaint #42").
- submitter: a person's name used to search, if mentioned.
- contact: a 10-digit contact number, if mentioned.
- category: one of billing, technical, service, general, if mentioned.
- status: one of OPEN, IN_PROGRESS, RESOLVED, REJECTED, if the user asks for a specific status.
- since_days: number of days to look back when the user gives a time hint like "last week" (7) or "this month" (30); 0 when absent.
- Use an empty string (or 0) for anything not present. Never invent values.`

const renderReplySystemPrompt = `You are a grievance management assistant replying to a user's status query.
Use only the complaint data provided. Be friendly, professional, and concise.
Mention complaint identifiers and statuses. Suggest next steps when appropriate. Do not invent complaints.`

const replyNoMatches = "I couldn't find any complaints matching that. If you have a complaint ID (like GRV-1A2B3C4D), that's the quickest way to look one up."

const replyClarifyQuery = "I can look up complaints by ID, name, contact number, category, or status. Which would you like to search by?"

// queryResolution mirrors the query resolver's structured output schema.
type queryResolution struct {
	ComplaintID string `json:"complaint_id"`
	Submitter   string `json:"submitter"`
	Contact     string `json:"contact"`
	Category    string `json:"category"`
	Status      string `json:"status"`
	SinceDays   int    `json:"since_days"`
}

// RetrievalEngine translates natural-language status queries into store
// filters, executes them, and renders a reply from the results.
type RetrievalEngine struct {
	genaiClient genai.ClientInterface
	st          store.Store
}

// NewRetrievalEngine creates a retrieval engine over the gateway and store.
func NewRetrievalEngine(genaiClient genai.ClientInterface, st store.Store) *RetrievalEngine {
	return &RetrievalEngine{genaiClient: genaiClient, st: st}
}

// ProcessTurn resolves a status query and answers it. Ambiguous queries (no
// extractable filter) are answered with a clarification request and never
// reach the store.
func (r *RetrievalEngine) ProcessTurn(ctx context.Context, sess *models.Session, turnText string) string {
	spec, err := r.ResolveQuery(ctx, turnText)
	if err != nil {
		slog.Warn("flow.RetrievalEngine: query resolution degraded", "error", err, "sessionID", sess.ID)
	}

	if !spec.HasFilters() {
		slog.Debug("flow.RetrievalEngine: no extractable filter", "sessionID", sess.ID)
		return replyClarifyQuery
	}

	complaints, err := r.Execute(spec)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			if spec.ID != "" {
				return fmt.Sprintf("I couldn't find a complaint with ID %s. Please double-check the identifier.", spec.ID)
			}
			return replyNoMatches
		}
		slog.Error("flow.RetrievalEngine: store query failed", "error", err, "sessionID", sess.ID)
		return "I couldn't reach the complaint records just now. Please try again in a moment."
	}
	if len(complaints) == 0 {
		return replyNoMatches
	}

	return r.renderReply(ctx, turnText, complaints)
}

// ResolveQuery translates a natural-language status request into a normalized
// QuerySpec. An explicit identifier in the text short-circuits the model
// call; otherwise the model extracts filters and pattern matching fills in
// whatever it misses.
func (r *RetrievalEngine) ResolveQuery(ctx context.Context, turnText string) (models.QuerySpec, error) {
	if ref := extractComplaintRef(turnText); ref != "" {
		slog.Debug("flow.RetrievalEngine: explicit complaint reference", "id", ref)
		return models.QuerySpec{ID: ref}, nil
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(queryResolutionSystemPrompt),
		openai.UserMessage(turnText),
	}

	var res queryResolution
	err := r.genaiClient.GenerateStructured(ctx, messages, queryResolutionSchema(), &res)
	if err != nil {
		slog.Warn("flow.RetrievalEngine: model resolution failed, using pattern fallback", "error", err)
		return fallbackQuerySpec(turnText), fmt.Errorf("query resolution failed: %w", err)
	}

	var spec models.QuerySpec
	if res.ComplaintID != "" {
		// An explicit identifier is the sole filter.
		return models.QuerySpec{ID: strings.ToUpper(strings.TrimSpace(res.ComplaintID))}, nil
	}
	spec.Submitter = strings.TrimSpace(res.Submitter)
	if validateContact(res.Contact) == nil {
		spec.Contact = strings.TrimSpace(res.Contact)
	}
	spec.Category = strings.ToLower(strings.TrimSpace(res.Category))
	if status := models.ComplaintStatus(strings.ToUpper(strings.TrimSpace(res.Status))); models.IsValidStatus(status) {
		spec.Status = status
	}
	if res.SinceDays > 0 {
		since := time.Now().AddDate(0, 0, -res.SinceDays)
		spec.Since = &since
	}
	return spec, nil
}

// Execute runs the spec against the store. An explicit identifier performs an
// exact lookup with at most one result; otherwise the filters are applied
// conjunctively, newest-updated first, capped at the default limit.
func (r *RetrievalEngine) Execute(spec models.QuerySpec) ([]models.Complaint, error) {
	if spec.ID != "" {
		c, err := r.st.GetComplaint(spec.ID)
		if err != nil {
			return nil, err
		}
		return []models.Complaint{*c}, nil
	}
	return r.st.QueryComplaints(spec)
}

// renderReply asks the model to phrase the results naturally, falling back to
// a deterministic listing when the gateway is unavailable.
func (r *RetrievalEngine) renderReply(ctx context.Context, turnText string, complaints []models.Complaint) string {
	var data strings.Builder
	for _, c := range complaints {
		fmt.Fprintf(&data, "- id=%s submitter=%s category=%s priority=%s status=%s filed=%s updated=%s description=%q\n",
			c.ID, c.Submitter, c.Category, c.Priority, c.Status,
			c.CreatedAt.Format("2006-01-02 15:04"), c.UpdatedAt.Format("2006-01-02 15:04"), c.Description)
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(renderReplySystemPrompt),
		openai.UserMessage(fmt.Sprintf("User query: %s\n\nMatching complaints:\n%s", turnText, data.String())),
	}

	reply, err := r.genaiClient.GenerateWithMessages(ctx, messages)
	if err != nil || strings.TrimSpace(reply) == "" {
		slog.Warn("flow.RetrievalEngine: reply rendering failed, using plain listing", "error", err)
		return plainListing(complaints)
	}
	return reply
}

// plainListing is the deterministic reply used when the model cannot render one.
func plainListing(complaints []models.Complaint) string {
	var b strings.Builder
	if len(complaints) == 1 {
		b.WriteString("I found this complaint:\n")
	} else {
		fmt.Fprintf(&b, "I found %d complaints:\n", len(complaints))
	}
	for _, c := range complaints {
		fmt.Fprintf(&b, "%s\n", c.Summary())
	}
	return strings.TrimRight(b.String(), "\n")
}

// fallbackQuerySpec recovers filters with pattern matching when the model is
// unavailable.
func fallbackQuerySpec(turnText string) models.QuerySpec {
	var spec models.QuerySpec
	if m := contactPattern.FindString(turnText); m != "" {
		spec.Contact = m
	}
	if cat := inferCategory(turnText); cat != "" {
		spec.Category = cat
	}
	if name := matchName(turnText); name != "" {
		spec.Submitter = name
	}
	return spec
}

func queryResolutionSchema() genai.SchemaSpec {
	return genai.SchemaSpec{
		Name:        "complaint_query",
		Description: "Search filters extracted from a status query",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"complaint_id": map[string]interface{}{"type": "string"},
				"submitter":    map[string]interface{}{"type": "string"},
				"contact":      map[string]interface{}{"type": "string"},
				"category":     map[string]interface{}{"type": "string"},
				"status":       map[string]interface{}{"type": "string"},
				"since_days":   map[string]interface{}{"type": "integer"},
			},
			"required":             []string{"complaint_id", "submitter", "contact", "category", "status", "since_days"},
			"additionalProperties": false,
		},
	}
}
