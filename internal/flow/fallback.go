package flow

import (
	"regexp"
	"strings"
)

var (
	contactPattern = regexp.MustCompile(`\b\d{10}\b`)
	namePatterns   = []*regexp.Regexp{
		regexp.MustCompile(`(?i)my name is\s+([A-Za-z][A-Za-z .'-]*[A-Za-z])`),
		regexp.MustCompile(`(?i)\bi am\s+([A-Za-z][A-Za-z .'-]*[A-Za-z])`),
		regexp.MustCompile(`(?i)\bi'm\s+([A-Za-z][A-Za-z .'-]*[A-Za-z])`),
		regexp.MustCompile(`(?i)name:\s*([A-Za-z][A-Za-z .'-]*[A-Za-z])`),
		regexp.MustCompile(`(?i)call me\s+([A-Za-z][A-Za-z .'-]*[A-Za-z])`),
		regexp.MustCompile(`(?i)([A-Za-z][A-Za-z .'-]*[A-Za-z])\s+is my name\b`),
	}
	complaintIDPattern = regexp.MustCompile(`\bGRV-[0-9A-Fa-f]{8}\b`)
	numericRefPattern  = regexp.MustCompile(`(?:complaint|grievance|ticket|case|#)\s*#?\s*(\d+)`)
)

// fallbackExtract recovers complaint fields from free text with regular
// expressions and keyword matching. Only the requested fields are returned.
func fallbackExtract(text string, wanted []FieldSpec) map[string]string {
	out := make(map[string]string)
	for _, f := range wanted {
		switch f.Name {
		case FieldContact:
			if m := contactPattern.FindString(text); m != "" {
				out[FieldContact] = m
			}
		case FieldSubmitter:
			if name := matchName(text); name != "" {
				out[FieldSubmitter] = name
			}
		case FieldCategory:
			if cat := inferCategory(text); cat != "" {
				out[FieldCategory] = cat
			}
		case FieldPriority:
			if pri := inferPriority(text); pri != "" {
				out[FieldPriority] = pri
			}
		case FieldDescription:
			if desc := stripExtracted(text, out); len(desc) >= MinDescriptionLength {
				out[FieldDescription] = desc
			}
		}
	}
	return out
}

// nameStopWords terminate a captured name: the patterns match greedily across
// spaces, so "my name is Asha Rao and my number is" must be cut at "and".
var nameStopWords = map[string]bool{
	"and": true, "my": true, "the": true, "from": true, "here": true,
	"calling": true, "speaking": true, "i": true, "you": true,
}

// maxNameWords caps how many words a fallback-extracted name may span.
const maxNameWords = 4

// matchName extracts a person's name from introduction phrases, trimming
// trailing clauses the greedy patterns swallow.
func matchName(text string) string {
	for _, p := range namePatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		words := strings.Fields(strings.TrimSpace(m[1]))
		var name []string
		for _, w := range words {
			if nameStopWords[strings.ToLower(w)] || len(name) == maxNameWords {
				break
			}
			name = append(name, w)
		}
		if len(name) > 0 {
			return strings.Join(name, " ")
		}
	}
	return ""
}

// inferCategory buckets the text by keyword into the standard categories.
// Returns empty when no keyword matches.
func inferCategory(text string) string {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "billing", "bill", "charge", "payment", "invoice", "refund", "cost"):
		return "billing"
	case containsAny(lower, "technical", "app", "software", "crash", "bug", "error", "login", "website"):
		return "technical"
	case containsAny(lower, "service", "support", "staff", "agent", "customer service", "rude"):
		return "service"
	default:
		return ""
	}
}

// inferPriority derives urgency from keywords. Returns empty when the text
// carries no urgency signal.
func inferPriority(text string) string {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "urgent", "emergency", "critical", "immediately", "asap"):
		return "urgent"
	case containsAny(lower, "high priority", "important", "serious"):
		return "high"
	case containsAny(lower, "low priority", "minor", "small", "whenever"):
		return "low"
	default:
		return ""
	}
}

// stripExtracted removes already-captured name and contact fragments so the
// remainder can serve as a description candidate.
func stripExtracted(text string, captured map[string]string) string {
	cleaned := contactPattern.ReplaceAllString(text, "")
	for _, p := range namePatterns {
		cleaned = p.ReplaceAllString(cleaned, "")
	}
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	return strings.Trim(cleaned, " ,.")
}

// extractComplaintRef finds an explicit complaint identifier in the text:
// either a full GRV- id or a numeric reference like "complaint #42".
func extractComplaintRef(text string) string {
	if m := complaintIDPattern.FindString(text); m != "" {
		return strings.ToUpper(m)
	}
	if m := numericRefPattern.FindStringSubmatch(strings.ToLower(text)); m != nil {
		return m[1]
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
