package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/opengrievance/grievanced/internal/models"
)

// emptyResolution is a query resolution that found no filters.
const emptyResolution = `{"complaint_id":"","submitter":"","contact":"","category":"","status":"","since_days":0}`

func TestResolveQueryExplicitID(t *testing.T) {
	mock := &MockGenAIClient{}
	r := NewRetrievalEngine(mock, NewMockStore())

	spec, err := r.ResolveQuery(context.Background(), "what's the status of grv-1a2b3c4d?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.ID != "GRV-1A2B3C4D" {
		t.Errorf("expected uppercased explicit id, got %q", spec.ID)
	}
	if spec.Submitter != "" || spec.Category != "" || spec.Status != "" {
		t.Error("an explicit id must be the sole filter")
	}
	if mock.StructuredCalls != 0 {
		t.Errorf("explicit id must not consult the model, got %d calls", mock.StructuredCalls)
	}
}

func TestResolveQueryNumericRef(t *testing.T) {
	r := NewRetrievalEngine(&MockGenAIClient{}, NewMockStore())

	spec, err := r.ResolveQuery(context.Background(), "any update on complaint #42?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.ID != "42" {
		t.Errorf("expected numeric ref as id, got %q", spec.ID)
	}
}

func TestResolveQueryModelBackedFilters(t *testing.T) {
	mock := &MockGenAIClient{StructuredResponses: []string{
		`{"complaint_id":"","submitter":"Asha","contact":"","category":"Billing","status":"open","since_days":7}`,
	}}
	r := NewRetrievalEngine(mock, NewMockStore())

	spec, err := r.ResolveQuery(context.Background(), "any open billing complaints from Asha last week?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.Submitter != "Asha" || spec.Category != "billing" || spec.Status != models.StatusOpen {
		t.Errorf("filters not normalized: %+v", spec)
	}
	if spec.Since == nil {
		t.Error("expected since filter from since_days")
	}
}

func TestResolveQueryModelIDWinsOverOtherFilters(t *testing.T) {
	mock := &MockGenAIClient{StructuredResponses: []string{
		`{"complaint_id":"grv-1a2b3c4d","submitter":"Asha","contact":"","category":"billing","status":"","since_days":0}`,
	}}
	r := NewRetrievalEngine(mock, NewMockStore())

	spec, err := r.ResolveQuery(context.Background(), "the billing one Asha filed, id was grv-1a2b3c4d I think")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.ID != "GRV-1A2B3C4D" || spec.Submitter != "" || spec.Category != "" {
		t.Errorf("expected id as sole filter, got %+v", spec)
	}
}

func TestProcessTurnClarifiesWithoutFilters(t *testing.T) {
	mock := &MockGenAIClient{StructuredResponses: []string{emptyResolution}}
	st := NewMockStore()
	r := NewRetrievalEngine(mock, st)

	reply := r.ProcessTurn(context.Background(), models.NewSession("sess-1"), "how are my complaints doing?")

	if reply != replyClarifyQuery {
		t.Errorf("expected clarification, got %q", reply)
	}
	if st.QueryCalls != 0 || st.GetCalls != 0 {
		t.Error("an ambiguous query must never reach the store")
	}
}

func TestProcessTurnIDNotFound(t *testing.T) {
	mock := &MockGenAIClient{}
	r := NewRetrievalEngine(mock, NewMockStore())

	reply := r.ProcessTurn(context.Background(), models.NewSession("sess-1"), "status of GRV-1A2B3C4D please")

	if !strings.Contains(reply, "couldn't find a complaint with ID GRV-1A2B3C4D") {
		t.Errorf("expected not-found reply naming the id, got %q", reply)
	}
}

func TestProcessTurnRendersReplyFromModel(t *testing.T) {
	st := NewMockStore()
	c := models.Complaint{
		Submitter:   "Asha Rao",
		Category:    "billing",
		Description: "I was charged twice for the same invoice.",
	}
	id, _ := st.InMemoryStore.CreateComplaint(c)

	mock := &MockGenAIClient{TextResponse: "Your billing complaint is still open."}
	r := NewRetrievalEngine(mock, st)

	reply := r.ProcessTurn(context.Background(), models.NewSession("sess-1"), "what about "+id+"?")

	if reply != "Your billing complaint is still open." {
		t.Errorf("expected model-rendered reply, got %q", reply)
	}
	if mock.TextCalls != 1 {
		t.Errorf("expected one render call, got %d", mock.TextCalls)
	}
}

func TestProcessTurnPlainListingFallback(t *testing.T) {
	st := NewMockStore()
	id, _ := st.InMemoryStore.CreateComplaint(models.Complaint{
		Submitter:   "Asha Rao",
		Category:    "billing",
		Description: "I was charged twice for the same invoice.",
	})

	mock := &MockGenAIClient{TextErr: errors.New("connection refused")}
	r := NewRetrievalEngine(mock, st)

	reply := r.ProcessTurn(context.Background(), models.NewSession("sess-1"), "status of "+id)

	if !strings.Contains(reply, id) {
		t.Errorf("plain listing should name the complaint, got %q", reply)
	}
	if !strings.Contains(reply, string(models.StatusOpen)) {
		t.Errorf("plain listing should include the status, got %q", reply)
	}
}

func TestProcessTurnNoMatches(t *testing.T) {
	mock := &MockGenAIClient{StructuredResponses: []string{
		`{"complaint_id":"","submitter":"Nobody","contact":"","category":"","status":"","since_days":0}`,
	}}
	r := NewRetrievalEngine(mock, NewMockStore())

	reply := r.ProcessTurn(context.Background(), models.NewSession("sess-1"), "complaints from Nobody?")

	if reply != replyNoMatches {
		t.Errorf("expected no-matches reply, got %q", reply)
	}
}

func TestFallbackQuerySpec(t *testing.T) {
	spec := fallbackQuerySpec("anything filed under 9876543210 about billing?")
	if spec.Contact != "9876543210" {
		t.Errorf("expected contact filter, got %+v", spec)
	}
	if spec.Category != "billing" {
		t.Errorf("expected category filter, got %+v", spec)
	}
}
