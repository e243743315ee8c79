package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/opengrievance/grievanced/internal/models"
)

// newFilledSession returns a CONFIRMING session with every required field set.
func newFilledSession() *models.Session {
	sess := models.NewSession("sess-1")
	sess.Phase = models.PhaseConfirming
	sess.Intent = models.IntentFileComplaint
	sess.SetField(FieldSubmitter, "Asha Rao")
	sess.SetField(FieldContact, "9876543210")
	sess.SetField(FieldCategory, "billing")
	sess.SetField(FieldDescription, "I was charged twice for the same invoice.")
	return sess
}

// emptyExtraction is a model response that found nothing.
const emptyExtraction = `{"submitter":"","contact":"","category":"","description":"","priority":""}`

func TestProcessTurnStartsCollecting(t *testing.T) {
	mock := &MockGenAIClient{StructuredResponses: []string{emptyExtraction}}
	e := NewExtractionEngine(mock, DefaultConfig())

	sess := models.NewSession("sess-1")
	outcome := e.ProcessTurn(context.Background(), sess, "I want to complain about something")

	if sess.Phase != models.PhaseCollecting {
		t.Errorf("expected COLLECTING, got %s", sess.Phase)
	}
	if outcome.Reply != "Could you tell me your full name?" {
		t.Errorf("expected first reprompt, got %q", outcome.Reply)
	}
	if outcome.Complaint != nil {
		t.Error("no complaint should be finalized yet")
	}
}

func TestFieldsArriveInAnyOrder(t *testing.T) {
	mock := &MockGenAIClient{StructuredResponses: []string{
		`{"submitter":"","contact":"9876543210","category":"billing","description":"","priority":""}`,
		`{"submitter":"Asha Rao","description":"I was charged twice for the same invoice.","priority":""}`,
	}}
	e := NewExtractionEngine(mock, DefaultConfig())
	sess := models.NewSession("sess-1")

	// Turn 1: contact and category before name.
	outcome := e.ProcessTurn(context.Background(), sess, "it's about billing, my number is 9876543210")
	if sess.Phase != models.PhaseCollecting {
		t.Fatalf("expected COLLECTING after partial fields, got %s", sess.Phase)
	}
	if !strings.HasPrefix(outcome.Reply, "Got it. ") {
		t.Errorf("expected progress acknowledgement, got %q", outcome.Reply)
	}
	if sess.Fields[FieldContact] != "9876543210" || sess.Fields[FieldCategory] != "billing" {
		t.Errorf("fields not merged: %v", sess.Fields)
	}

	// Turn 2: the remaining required fields complete the set.
	outcome = e.ProcessTurn(context.Background(), sess, "I'm Asha Rao, I was charged twice for the same invoice.")
	if sess.Phase != models.PhaseConfirming {
		t.Fatalf("expected CONFIRMING once required fields are filled, got %s", sess.Phase)
	}
	if !strings.Contains(outcome.Reply, "Shall I file this complaint?") {
		t.Errorf("expected confirmation summary, got %q", outcome.Reply)
	}
	if sess.InconclusiveTurns != 0 {
		t.Errorf("progress should reset the inconclusive counter, got %d", sess.InconclusiveTurns)
	}
}

func TestInvalidContactIsReasked(t *testing.T) {
	mock := &MockGenAIClient{StructuredResponses: []string{
		`{"submitter":"","contact":"12345","category":"","description":"","priority":""}`,
	}}
	e := NewExtractionEngine(mock, DefaultConfig())
	sess := models.NewSession("sess-1")

	outcome := e.ProcessTurn(context.Background(), sess, "my number is 12345")

	if _, ok := sess.Fields[FieldContact]; ok {
		t.Error("invalid contact must not be merged")
	}
	if !strings.Contains(outcome.Reply, "That doesn't look like a valid contact.") {
		t.Errorf("expected targeted reprompt, got %q", outcome.Reply)
	}
}

func TestConfirmationYesFinalizesComplaint(t *testing.T) {
	mock := &MockGenAIClient{}
	e := NewExtractionEngine(mock, DefaultConfig())
	sess := newFilledSession()

	outcome := e.ProcessTurn(context.Background(), sess, "yes, file it")

	if sess.Phase != models.PhaseDone {
		t.Errorf("expected DONE, got %s", sess.Phase)
	}
	if outcome.Complaint == nil {
		t.Fatal("expected finalized complaint")
	}
	if outcome.Reply != "" {
		t.Errorf("reply is composed by the orchestrator after the store assigns an id, got %q", outcome.Reply)
	}
	c := outcome.Complaint
	if c.Submitter != "Asha Rao" || c.Category != "billing" || c.Status != models.StatusOpen {
		t.Errorf("complaint not assembled from session fields: %+v", c)
	}
	if c.Priority != models.PriorityMedium {
		t.Errorf("expected default priority medium, got %s", c.Priority)
	}
	if mock.StructuredCalls != 0 {
		t.Errorf("confirmation must not consult the model, got %d calls", mock.StructuredCalls)
	}
}

func TestConfirmationUsesStatedPriority(t *testing.T) {
	e := NewExtractionEngine(&MockGenAIClient{}, DefaultConfig())
	sess := newFilledSession()
	sess.SetField(FieldPriority, "urgent")

	outcome := e.ProcessTurn(context.Background(), sess, "yes")
	if outcome.Complaint == nil {
		t.Fatal("expected finalized complaint")
	}
	if outcome.Complaint.Priority != models.PriorityUrgent {
		t.Errorf("expected stated priority urgent, got %s", outcome.Complaint.Priority)
	}
}

func TestRejectionClearsOnlyNamedFields(t *testing.T) {
	e := NewExtractionEngine(&MockGenAIClient{}, DefaultConfig())
	sess := newFilledSession()

	outcome := e.ProcessTurn(context.Background(), sess, "no, the number is wrong")

	if sess.Phase != models.PhaseCollecting {
		t.Errorf("expected fall back to COLLECTING, got %s", sess.Phase)
	}
	if _, ok := sess.Fields[FieldContact]; ok {
		t.Error("contact should have been cleared")
	}
	for _, name := range []string{FieldSubmitter, FieldCategory, FieldDescription} {
		if _, ok := sess.Fields[name]; !ok {
			t.Errorf("%s should have been kept", name)
		}
	}
	if !strings.Contains(outcome.Reply, "10-digit contact number") {
		t.Errorf("expected contact reprompt, got %q", outcome.Reply)
	}
}

func TestRejectionWithoutNamedFieldClearsAll(t *testing.T) {
	e := NewExtractionEngine(&MockGenAIClient{}, DefaultConfig())
	sess := newFilledSession()

	e.ProcessTurn(context.Background(), sess, "no")

	if len(sess.Fields) != 0 {
		t.Errorf("expected all fields cleared, got %v", sess.Fields)
	}
	if sess.Phase != models.PhaseCollecting {
		t.Errorf("expected COLLECTING, got %s", sess.Phase)
	}
}

func TestUnclearConfirmationReasks(t *testing.T) {
	e := NewExtractionEngine(&MockGenAIClient{}, DefaultConfig())
	sess := newFilledSession()

	outcome := e.ProcessTurn(context.Background(), sess, "hmm, maybe")

	if sess.Phase != models.PhaseConfirming {
		t.Errorf("expected to stay in CONFIRMING, got %s", sess.Phase)
	}
	if sess.InconclusiveTurns != 1 {
		t.Errorf("expected inconclusive counter 1, got %d", sess.InconclusiveTurns)
	}
	if !strings.Contains(outcome.Reply, "yes or no") {
		t.Errorf("expected yes/no reprompt, got %q", outcome.Reply)
	}
}

func TestCancellationAbandonsSession(t *testing.T) {
	e := NewExtractionEngine(&MockGenAIClient{}, DefaultConfig())
	sess := models.NewSession("sess-1")
	sess.Phase = models.PhaseCollecting
	sess.SetField(FieldSubmitter, "Asha Rao")

	outcome := e.ProcessTurn(context.Background(), sess, "never mind")

	if sess.Phase != models.PhaseAbandoned {
		t.Errorf("expected ABANDONED, got %s", sess.Phase)
	}
	if !strings.Contains(outcome.Reply, "cancelled") {
		t.Errorf("expected cancellation acknowledgement, got %q", outcome.Reply)
	}
}

func TestDescriptionContainingStopIsNotCancellation(t *testing.T) {
	mock := &MockGenAIClient{StructuredResponses: []string{
		`{"submitter":"","contact":"","category":"technical","description":"the machine won't stop beeping","priority":""}`,
	}}
	e := NewExtractionEngine(mock, DefaultConfig())
	sess := models.NewSession("sess-1")
	sess.Phase = models.PhaseCollecting
	sess.Intent = models.IntentFileComplaint
	sess.SetField(FieldSubmitter, "Asha Rao")
	sess.SetField(FieldContact, "9876543210")

	outcome := e.ProcessTurn(context.Background(), sess, "the machine won't stop beeping")

	if sess.Phase == models.PhaseAbandoned {
		t.Fatal("a description turn must not be read as a cancellation")
	}
	if sess.Fields[FieldDescription] != "the machine won't stop beeping" {
		t.Errorf("description not merged: %v", sess.Fields)
	}
	if sess.Phase != models.PhaseConfirming {
		t.Errorf("expected CONFIRMING with all required fields filled, got %s", sess.Phase)
	}
	if outcome.Complaint != nil {
		t.Error("no complaint should be finalized before confirmation")
	}
}

func TestInconclusiveTurnsBound(t *testing.T) {
	mock := &MockGenAIClient{StructuredResponses: []string{emptyExtraction}}
	cfg := DefaultConfig()
	cfg.MaxInconclusiveTurns = 2
	e := NewExtractionEngine(mock, cfg)
	sess := models.NewSession("sess-1")

	e.ProcessTurn(context.Background(), sess, "hmm")
	if sess.Phase == models.PhaseAbandoned {
		t.Fatal("should not abandon before the bound")
	}

	outcome := e.ProcessTurn(context.Background(), sess, "well")
	if sess.Phase != models.PhaseAbandoned {
		t.Errorf("expected ABANDONED at the bound, got %s", sess.Phase)
	}
	if !strings.Contains(outcome.Reply, "set this aside") {
		t.Errorf("expected abandonment reply, got %q", outcome.Reply)
	}
}

func TestGatewayFailureFallsBackToPatterns(t *testing.T) {
	mock := &MockGenAIClient{StructuredErr: errors.New("connection refused")}
	e := NewExtractionEngine(mock, DefaultConfig())
	sess := models.NewSession("sess-1")

	outcome := e.ProcessTurn(context.Background(), sess, "My name is Asha Rao and my number is 9876543210")

	if mock.StructuredCalls != 2 {
		t.Errorf("expected one retry before degrading, got %d calls", mock.StructuredCalls)
	}
	if sess.Fields[FieldSubmitter] != "Asha Rao" || sess.Fields[FieldContact] != "9876543210" {
		t.Errorf("pattern fallback did not merge fields: %v", sess.Fields)
	}
	if !strings.HasPrefix(outcome.Reply, "Got it. ") {
		t.Errorf("fallback progress should acknowledge, got %q", outcome.Reply)
	}
}

func TestGatewayFailureWithNothingExtractable(t *testing.T) {
	mock := &MockGenAIClient{StructuredErr: errors.New("connection refused")}
	e := NewExtractionEngine(mock, DefaultConfig())
	sess := models.NewSession("sess-1")
	sess.Phase = models.PhaseCollecting
	sess.SetField(FieldSubmitter, "Asha Rao")
	before := len(sess.Fields)

	outcome := e.ProcessTurn(context.Background(), sess, "uh")

	if outcome.Reply != replyTrouble {
		t.Errorf("expected degraded reply, got %q", outcome.Reply)
	}
	if len(sess.Fields) != before || sess.Phase != models.PhaseCollecting {
		t.Error("session state must be preserved on a degraded turn")
	}
}

func TestTerminalPhaseReplayDoesNotRefile(t *testing.T) {
	e := NewExtractionEngine(&MockGenAIClient{}, DefaultConfig())
	sess := newFilledSession()
	sess.Phase = models.PhaseDone
	sess.ComplaintID = "GRV-1A2B3C4D"

	outcome := e.ProcessTurn(context.Background(), sess, "yes")

	if outcome.Complaint != nil {
		t.Error("replaying a confirmation must not finalize a second complaint")
	}
	if !strings.Contains(outcome.Reply, "GRV-1A2B3C4D") {
		t.Errorf("expected reply to reference the filed complaint, got %q", outcome.Reply)
	}
	if sess.Phase != models.PhaseDone {
		t.Errorf("DONE is terminal, got %s", sess.Phase)
	}
}
