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

const classifierSystemPrompt = `You are the intent classifier of a grievance management assistant.
Classify the user's message into exactly one intent:
- FILE_COMPLAINT: the user wants to report a new problem or grievance.
- CHECK_STATUS: the user wants to look up existing complaints or their status.
- OTHER: greetings, chitchat, or anything else.
Respond with the intent label, a confidence between 0 and 1, and a one-sentence rationale.`

// classificationResult mirrors the classifier's structured output schema.
type classificationResult struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// Classifier maps a chat turn plus session phase to an intent label.
type Classifier struct {
	genaiClient genai.ClientInterface
}

// NewClassifier creates a classifier backed by the model gateway.
func NewClassifier(genaiClient genai.ClientInterface) *Classifier {
	return &Classifier{genaiClient: genaiClient}
}

// Classify determines the intent of a turn. When the session is mid-cycle
// (COLLECTING or CONFIRMING) the active intent is continued without consulting
// the model: partial answers like "yes" or a bare category word must not
// flip-flop the intent. On model failure the result falls back to OTHER and
// the recoverable ErrClassification is returned alongside it.
func (c *Classifier) Classify(ctx context.Context, turnText string, sess *models.Session) (models.IntentResult, error) {
	if sess.Active() && sess.Intent != "" {
		slog.Debug("flow.Classify: continuing active intent", "sessionID", sess.ID, "intent", sess.Intent, "phase", sess.Phase)
		return models.IntentResult{
			Intent:     sess.Intent,
			Confidence: 1.0,
			Rationale:  "continuing the active dialogue cycle",
		}, nil
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(classifierSystemPrompt),
		openai.UserMessage(turnText),
	}

	var result classificationResult
	err := c.genaiClient.GenerateStructured(ctx, messages, classificationSchema(), &result)
	if err != nil {
		slog.Warn("flow.Classify: model classification failed", "error", err, "sessionID", sess.ID)
		return models.IntentResult{Intent: models.IntentOther}, fmt.Errorf("%w: %v", ErrClassification, err)
	}

	intent := models.Intent(strings.ToUpper(strings.TrimSpace(result.Intent)))
	if !models.IsValidIntent(intent) {
		slog.Warn("flow.Classify: unparseable intent label", "label", result.Intent, "sessionID", sess.ID)
		return models.IntentResult{Intent: models.IntentOther}, fmt.Errorf("%w: unknown label %q", ErrClassification, result.Intent)
	}

	slog.Debug("flow.Classify: classified turn", "sessionID", sess.ID, "intent", intent, "confidence", result.Confidence)
	return models.IntentResult{
		Intent:     intent,
		Confidence: result.Confidence,
		Rationale:  result.Rationale,
	}, nil
}

func classificationSchema() genai.SchemaSpec {
	return genai.SchemaSpec{
		Name:        "intent_classification",
		Description: "Classification of a user chat turn",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"intent": map[string]interface{}{
					"type": "string",
					"enum": []string{string(models.IntentFileComplaint), string(models.IntentCheckStatus), string(models.IntentOther)},
				},
				"confidence": map[string]interface{}{
					"type": "number",
				},
				"rationale": map[string]interface{}{
					"type": "string",
				},
			},
			"required":             []string{"intent", "confidence", "rationale"},
			"additionalProperties": false,
		},
	}
}
