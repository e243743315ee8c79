package scheduler

import (
	"testing"
)

func TestAddJobValidExpression(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	if err := s.AddJob("*/10 * * * *", func() {}); err != nil {
		t.Errorf("expected valid cron expression to be accepted, got: %v", err)
	}
}

func TestAddJobInvalidExpression(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	if err := s.AddJob("not a cron line", func() {}); err == nil {
		t.Error("expected error for invalid cron expression")
	}
	// Six-field expressions are rejected: the parser is standard five-field.
	if err := s.AddJob("0 */10 * * * *", func() {}); err == nil {
		t.Error("expected error for six-field expression")
	}
}
