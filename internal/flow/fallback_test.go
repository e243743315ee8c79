package flow

import (
	"testing"
)

func TestFallbackExtractNameAndContact(t *testing.T) {
	got := fallbackExtract("My name is Asha Rao and you can reach me at 9876543210", DefaultFieldSpecs())
	if got[FieldSubmitter] != "Asha Rao" {
		t.Errorf("expected submitter Asha Rao, got %q", got[FieldSubmitter])
	}
	if got[FieldContact] != "9876543210" {
		t.Errorf("expected contact 9876543210, got %q", got[FieldContact])
	}
}

func TestFallbackExtractNamePatterns(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"I am Ravi Kumar", "Ravi Kumar"},
		{"i'm Ravi", "Ravi"},
		{"name: Ravi Kumar", "Ravi Kumar"},
		{"call me Ravi", "Ravi"},
		{"Ravi Kumar is my name", "Ravi Kumar"},
	}
	for _, tt := range tests {
		got := fallbackExtract(tt.text, DefaultFieldSpecs())
		if got[FieldSubmitter] != tt.want {
			t.Errorf("fallbackExtract(%q) submitter = %q, want %q", tt.text, got[FieldSubmitter], tt.want)
		}
	}
}

func TestInferCategory(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"I was charged twice on my bill", "billing"},
		{"the app keeps crashing with an error", "technical"},
		{"the support agent was rude to me", "service"},
		{"something happened", ""},
	}
	for _, tt := range tests {
		if got := inferCategory(tt.text); got != tt.want {
			t.Errorf("inferCategory(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestInferPriority(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"this is urgent, please fix it immediately", "urgent"},
		{"this is a serious problem", "high"},
		{"just a minor thing, whenever you get to it", "low"},
		{"my bill is wrong", ""},
	}
	for _, tt := range tests {
		if got := inferPriority(tt.text); got != tt.want {
			t.Errorf("inferPriority(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestExtractComplaintRef(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"what's the status of GRV-1A2B3C4D?", "GRV-1A2B3C4D"},
		{"check grv-1a2b3c4d please", "GRV-1A2B3C4D"},
		{"what about complaint #42?", "42"},
		{"any update on ticket 17", "17"},
		{"case #9", "9"},
		{"how are my complaints doing", ""},
		{"my bill is wrong", ""},
	}
	for _, tt := range tests {
		if got := extractComplaintRef(tt.text); got != tt.want {
			t.Errorf("extractComplaintRef(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestIsCancellation(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"cancel", true},
		{"never mind", true},
		{"forget it", true},
		{"stop.", true},
		{"actually, quit", true},
		{"nonstop noise from the machine", false}, // "stop" only matches as a whole word
		{"the machine won't stop beeping", false}, // bare cancel words need a near-empty turn
		{"I had to quit using the app entirely", false},
		{"please stop charging me twice every month for the same service subscription", false},
		{"my name is Asha", false},
	}
	for _, tt := range tests {
		if got := isCancellation(tt.text); got != tt.want {
			t.Errorf("isCancellation(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestParseConfirmation(t *testing.T) {
	tests := []struct {
		text string
		want confirmation
	}{
		{"yes", confirmationYes},
		{"Yep, go ahead", confirmationYes},
		{"ok", confirmationYes},
		{"file it", confirmationYes},
		{"that's correct", confirmationYes},
		{"no", confirmationNo},
		{"nope, the number is wrong", confirmationNo},
		{"that's not right", confirmationNo},
		{"change the category", confirmationNo},
		{"I know", confirmationUnclear},  // "know" must not read as "no"
		{"alright maybe", confirmationUnclear},
		{"hmm", confirmationUnclear},
	}
	for _, tt := range tests {
		if got := parseConfirmation(tt.text); got != tt.want {
			t.Errorf("parseConfirmation(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestRejectedFields(t *testing.T) {
	cfg := DefaultConfig()
	sess := newFilledSession()

	got := rejectedFields("no, the phone number is wrong", sess, cfg)
	if len(got) != 1 || got[0] != FieldContact {
		t.Errorf("expected [contact], got %v", got)
	}

	got = rejectedFields("the name and the category are both wrong", sess, cfg)
	if len(got) != 2 {
		t.Errorf("expected two rejected fields, got %v", got)
	}

	if got := rejectedFields("no", sess, cfg); len(got) != 0 {
		t.Errorf("expected none named, got %v", got)
	}
}
