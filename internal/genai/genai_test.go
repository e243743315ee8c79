package genai

import (
	"testing"
	"time"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Error("expected error when API key is not set")
	}
}

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.model != DefaultModel {
		t.Errorf("expected default model %s, got %s", DefaultModel, c.model)
	}
	if c.timeout != DefaultTimeout {
		t.Errorf("expected default timeout %s, got %s", DefaultTimeout, c.timeout)
	}
}

func TestNewClientOptions(t *testing.T) {
	c, err := NewClient(
		WithAPIKey("test-key"),
		WithBaseURL("http://localhost:11434/v1"),
		WithModel("llama3"),
		WithTimeout(5*time.Second),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if string(c.model) != "llama3" {
		t.Errorf("expected model llama3, got %s", c.model)
	}
	if c.timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %s", c.timeout)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain object",
			input: `{"intent":"OTHER"}`,
			want:  `{"intent":"OTHER"}`,
		},
		{
			name:  "json fence",
			input: "```json\n{\"intent\":\"OTHER\"}\n```",
			want:  `{"intent":"OTHER"}`,
		},
		{
			name:  "bare fence",
			input: "```\n{\"intent\":\"OTHER\"}\n```",
			want:  `{"intent":"OTHER"}`,
		},
		{
			name:  "surrounding prose",
			input: "Here is the result: {\"intent\":\"OTHER\"} Hope that helps!",
			want:  `{"intent":"OTHER"}`,
		},
		{
			name:  "nested braces",
			input: `{"fields":{"submitter":"Asha"}}`,
			want:  `{"fields":{"submitter":"Asha"}}`,
		},
		{
			name:  "no json at all",
			input: "sorry, I cannot help with that",
			want:  "sorry, I cannot help with that",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSON(tt.input); got != tt.want {
				t.Errorf("ExtractJSON(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
