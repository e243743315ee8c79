package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opengrievance/grievanced/internal/genai"
	"github.com/opengrievance/grievanced/internal/models"
	"github.com/opengrievance/grievanced/internal/store"
)

// Canned replies used at the orchestrator boundary. No raw internal error
// ever reaches the chat surface.
const (
	replyGreeting = "Hello! I can help you file a complaint or check the status of an existing one. What would you like to do?"
	replyReprompt = "Sorry, I didn't quite catch that. You can file a new complaint or ask about the status of an existing one."
	replyStoreOut = "I couldn't save your complaint just now. Nothing was lost — please confirm again in a moment."
)

// Orchestrator routes chat turns. Each session is processed by one logical
// worker at a time (turn ordering per session is the transport's contract);
// distinct sessions run in parallel with the store as the only shared state.
// Session state is read, the slow gateway/store calls are made, and the
// result is merged back — no lock is held across those calls.
type Orchestrator struct {
	classifier *Classifier
	extraction *ExtractionEngine
	retrieval  *RetrievalEngine
	st         store.Store
}

// NewOrchestrator wires the orchestration core over a model gateway and store.
func NewOrchestrator(genaiClient genai.ClientInterface, st store.Store, cfg Config) *Orchestrator {
	slog.Debug("flow.NewOrchestrator: creating orchestrator", "hasGenAI", genaiClient != nil, "hasStore", st != nil, "maxInconclusiveTurns", cfg.MaxInconclusiveTurns)
	return &Orchestrator{
		classifier: NewClassifier(genaiClient),
		extraction: NewExtractionEngine(genaiClient, cfg),
		retrieval:  NewRetrievalEngine(genaiClient, st),
		st:         st,
	}
}

// HandleTurn processes one user turn for a session and returns the reply.
// All component failures are converted to user-facing replies here; the only
// error path left is failing to load or persist the session itself.
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionID, text string) (models.ChatResponse, error) {
	slog.Debug("flow.HandleTurn: processing turn", "sessionID", sessionID)

	sess, err := o.st.GetSession(sessionID)
	if err != nil {
		slog.Error("flow.HandleTurn: failed to load session", "error", err, "sessionID", sessionID)
		return models.ChatResponse{}, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if sess == nil {
		sess = models.NewSession(sessionID)
		slog.Debug("flow.HandleTurn: created new session", "sessionID", sessionID)
	}

	sess.AppendTurn(models.SpeakerUser, text)

	resp := o.dispatch(ctx, sess, text)
	resp.SessionID = sessionID
	resp.Phase = sess.Phase

	sess.AppendTurn(models.SpeakerBot, resp.Reply)
	if err := o.st.SaveSession(*sess); err != nil {
		slog.Error("flow.HandleTurn: failed to persist session", "error", err, "sessionID", sessionID)
		return models.ChatResponse{}, fmt.Errorf("failed to persist session %s: %w", sessionID, err)
	}

	slog.Info("flow.HandleTurn: turn processed", "sessionID", sessionID, "intent", resp.Intent, "phase", resp.Phase)
	return resp, nil
}

// dispatch classifies the turn and routes it to the write or read path.
func (o *Orchestrator) dispatch(ctx context.Context, sess *models.Session, text string) models.ChatResponse {
	result, err := o.classifier.Classify(ctx, text, sess)
	if err != nil {
		// Recoverable classification failure: re-prompt, session untouched.
		slog.Warn("flow.dispatch: classification failed, re-prompting", "error", err, "sessionID", sess.ID)
		return models.ChatResponse{Intent: models.IntentOther, Reply: replyReprompt}
	}

	switch result.Intent {
	case models.IntentFileComplaint:
		return o.handleFiling(ctx, sess, text, result.Intent)

	case models.IntentCheckStatus:
		// A fresh query cycle replaces whatever terminal state was left over.
		if sess.Phase == models.PhaseDone || sess.Phase == models.PhaseAbandoned {
			sess.Reset()
		}
		sess.Intent = result.Intent
		reply := o.retrieval.ProcessTurn(ctx, sess, text)
		// The query cycle is consumed by answering it.
		sess.Reset()
		return models.ChatResponse{Intent: result.Intent, Reply: reply}

	default:
		if sess.Active() {
			// Mid-cycle turns keep their intent; reaching here means the
			// cycle is idle, so greet and point at what the bot can do.
			slog.Debug("flow.dispatch: OTHER intent during active cycle", "sessionID", sess.ID)
		}
		return models.ChatResponse{Intent: models.IntentOther, Reply: replyGreeting}
	}
}

// handleFiling drives the extraction engine and persists the complaint when
// the user confirms. The store create runs at most once per session cycle:
// DONE is terminal and replays answer from the recorded complaint id.
func (o *Orchestrator) handleFiling(ctx context.Context, sess *models.Session, text string, intent models.Intent) models.ChatResponse {
	// Starting over after a finished or abandoned cycle.
	if sess.Phase == models.PhaseDone || sess.Phase == models.PhaseAbandoned {
		sess.Reset()
	}
	sess.Intent = intent

	outcome := o.extraction.ProcessTurn(ctx, sess, text)

	if outcome.Complaint == nil {
		if sess.Phase == models.PhaseAbandoned {
			slog.Info("flow.handleFiling: filing cycle abandoned", "sessionID", sess.ID)
		}
		return models.ChatResponse{Intent: intent, Reply: outcome.Reply}
	}

	complaint := outcome.Complaint
	if err := complaint.Validate(); err != nil {
		// Extraction let an incomplete complaint through; re-collect rather
		// than persisting bad data.
		slog.Error("flow.handleFiling: finalized complaint failed validation", "error", err, "sessionID", sess.ID)
		sess.Phase = models.PhaseCollecting
		return models.ChatResponse{Intent: intent, Reply: replyReprompt}
	}

	id, err := o.st.CreateComplaint(*complaint)
	if err != nil {
		// Store failure is non-recoverable for this operation but the
		// session state is preserved: fall back to CONFIRMING so the user
		// can confirm again once the store is reachable.
		slog.Error("flow.handleFiling: store create failed", "error", err, "sessionID", sess.ID)
		sess.Phase = models.PhaseConfirming
		return models.ChatResponse{Intent: intent, Reply: replyStoreOut}
	}

	sess.ComplaintID = id
	slog.Info("flow.handleFiling: complaint created", "sessionID", sess.ID, "complaintID", id)
	reply := fmt.Sprintf("Thank you! Your complaint has been filed with ID %s. You can ask me about its status anytime.", id)
	return models.ChatResponse{Intent: intent, Reply: reply, ComplaintID: id}
}

// AbandonStale marks sessions idle past the cutoff as ABANDONED. Abandonment
// has no store side effects beyond the session row itself.
func (o *Orchestrator) AbandonStale(ctx context.Context, ttl time.Duration) error {
	cutoff := time.Now().Add(-ttl)
	stale, err := o.st.ListStaleSessions(cutoff)
	if err != nil {
		slog.Error("flow.AbandonStale: failed to list stale sessions", "error", err)
		return fmt.Errorf("failed to list stale sessions: %w", err)
	}

	var failed error
	for _, sess := range stale {
		sess.Phase = models.PhaseAbandoned
		sess.UpdatedAt = time.Now()
		if err := o.st.SaveSession(sess); err != nil {
			slog.Error("flow.AbandonStale: failed to abandon session", "error", err, "sessionID", sess.ID)
			failed = errors.Join(failed, err)
			continue
		}
		slog.Info("flow.AbandonStale: abandoned stale session", "sessionID", sess.ID)
	}
	return failed
}
