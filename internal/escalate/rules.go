// ABOUTME: Keyword vocabularies driving the escalation decision engine
// ABOUTME: Ships built-in defaults with an optional TOML rules file override

package escalate

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Rules holds the keyword vocabularies the engine matches against.
// All matching is case-insensitive substring matching.
type Rules struct {
	// EscalationKeywords trigger escalation when found in the most
	// recent user message.
	EscalationKeywords []string `toml:"escalation_keywords"`

	// UncertaintyPhrases reduce reply confidence when found in the
	// generated reply.
	UncertaintyPhrases []string `toml:"uncertainty_phrases"`

	// UrgencyKeywords raise suggested priority to high when found
	// anywhere in the transcript.
	UrgencyKeywords []string `toml:"urgency_keywords"`
}

// DefaultRules returns the built-in vocabularies: human/agent-request
// phrases, frustration words, and billing/refund/cancellation terms.
func DefaultRules() Rules {
	return Rules{
		EscalationKeywords: []string{
			"speak to human",
			"talk to person",
			"human agent",
			"representative",
			"manager",
			"supervisor",
			"escalate",
			"frustrated",
			"angry",
			"terrible service",
			"cancel subscription",
			"refund",
			"billing issue",
			"account problem",
		},
		UncertaintyPhrases: []string{
			"i think",
			"maybe",
			"possibly",
			"not sure",
			"might be",
		},
		UrgencyKeywords: []string{
			"urgent",
			"emergency",
		},
	}
}

// LoadRules reads a TOML rules file and overlays it on the defaults.
// Vocabularies left empty in the file keep their built-in values.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("reading rules file: %w", err)
	}

	var loaded Rules
	if _, err := toml.Decode(string(data), &loaded); err != nil {
		return Rules{}, fmt.Errorf("parsing rules file: %w", err)
	}

	rules := DefaultRules()
	if len(loaded.EscalationKeywords) > 0 {
		rules.EscalationKeywords = loaded.EscalationKeywords
	}
	if len(loaded.UncertaintyPhrases) > 0 {
		rules.UncertaintyPhrases = loaded.UncertaintyPhrases
	}
	if len(loaded.UrgencyKeywords) > 0 {
		rules.UrgencyKeywords = loaded.UrgencyKeywords
	}
	return rules, nil
}
