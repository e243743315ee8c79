package flow

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/openai/openai-go"
	"github.com/opengrievance/grievanced/internal/genai"
	"github.com/opengrievance/grievanced/internal/models"
	"github.com/opengrievance/grievanced/internal/store"
)

// MockGenAIClient is a scripted gateway for flow tests. Structured responses
// are consumed in order; the last one is repeated when the script runs out.
type MockGenAIClient struct {
	StructuredResponses []string // JSON payloads for GenerateStructured, in call order
	StructuredErr       error
	StructuredCalls     int

	TextResponse string
	TextErr      error
	TextCalls    int
}

func (m *MockGenAIClient) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	m.TextCalls++
	if m.TextErr != nil {
		return "", m.TextErr
	}
	return m.TextResponse, nil
}

func (m *MockGenAIClient) GenerateStructured(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, spec genai.SchemaSpec, out interface{}) error {
	m.StructuredCalls++
	if m.StructuredErr != nil {
		return m.StructuredErr
	}
	if len(m.StructuredResponses) == 0 {
		return errors.New("mock: no structured response scripted")
	}
	idx := m.StructuredCalls - 1
	if idx >= len(m.StructuredResponses) {
		idx = len(m.StructuredResponses) - 1
	}
	return json.Unmarshal([]byte(m.StructuredResponses[idx]), out)
}

var _ genai.ClientInterface = (*MockGenAIClient)(nil)

// MockStore wraps the in-memory store with failure injection and call
// counting for orchestration tests.
type MockStore struct {
	*store.InMemoryStore
	CreateErr    error
	CreateCalls  int
	QueryCalls   int
	GetCalls     int
	SessionSaves int
}

func NewMockStore() *MockStore {
	return &MockStore{InMemoryStore: store.NewInMemoryStore()}
}

func (m *MockStore) CreateComplaint(c models.Complaint) (string, error) {
	m.CreateCalls++
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	return m.InMemoryStore.CreateComplaint(c)
}

func (m *MockStore) QueryComplaints(q models.QuerySpec) ([]models.Complaint, error) {
	m.QueryCalls++
	return m.InMemoryStore.QueryComplaints(q)
}

func (m *MockStore) GetComplaint(id string) (*models.Complaint, error) {
	m.GetCalls++
	return m.InMemoryStore.GetComplaint(id)
}

func (m *MockStore) SaveSession(s models.Session) error {
	m.SessionSaves++
	return m.InMemoryStore.SaveSession(s)
}

var _ store.Store = (*MockStore)(nil)
