// ABOUTME: Escalation decision engine evaluating transcripts and generated replies
// ABOUTME: Produces a deterministic, explainable verdict with reason, confidence, category, priority

package escalate

import (
	"strings"

	"github.com/2389/triage-gateway/internal/store"
)

// Marker is the explicit escalation token the completion provider may
// embed in a generated reply. It is stripped before display.
const Marker = "[ESCALATE]"

// FallbackMessage is the fixed apologetic reply substituted when the
// completion provider fails. The conversation is never left without a
// reply.
const FallbackMessage = "I apologize, but I'm experiencing technical difficulties. Let me connect you with a human agent who can assist you better."

// FallbackReason is the escalation reason attached to the fallback signal.
const FallbackReason = "Technical error with completion system"

// repeatedAttemptThreshold is the user-turn count at which escalation
// becomes unconditional.
const repeatedAttemptThreshold = 3

// Signal is the engine's verdict plus supporting metadata. It is
// transient and never persisted as-is; interesting fields are carried
// onto the ticket at creation time.
type Signal struct {
	ShouldEscalate    bool           `json:"should_escalate"`
	Reason            string         `json:"reason,omitempty"`
	Confidence        float64        `json:"confidence"`
	SuggestedCategory store.Category `json:"suggested_category,omitempty"`
	SuggestedPriority store.Priority `json:"suggested_priority,omitempty"`
}

// Engine evaluates conversation history plus a generated reply into an
// escalation verdict. Evaluation is a pure function of its inputs and
// the configured rules.
type Engine struct {
	rules Rules
}

// NewEngine creates an engine with the given rules.
func NewEngine(rules Rules) *Engine {
	return &Engine{rules: rules}
}

// Evaluate inspects the conversation history and the provider's raw
// reply and returns an escalation signal. The history must end with the
// most recent user message prior to the reply.
func (e *Engine) Evaluate(history []store.Message, reply string) Signal {
	verdict := e.shouldEscalate(history, reply)

	sig := Signal{
		ShouldEscalate:    verdict,
		Confidence:        e.confidence(history, reply),
		SuggestedCategory: e.category(history),
		SuggestedPriority: e.priority(history, verdict),
	}
	if verdict {
		sig.Reason = e.reason(history, reply)
	}
	return sig
}

// Fallback returns the deterministic signal substituted when the
// completion provider fails: escalate on doubt, zero confidence.
func Fallback() Signal {
	return Signal{
		ShouldEscalate: true,
		Reason:         FallbackReason,
		Confidence:     0,
	}
}

// StripMarker removes the explicit escalation token from a reply for
// display.
func StripMarker(reply string) string {
	return strings.TrimSpace(strings.ReplaceAll(reply, Marker, ""))
}

// shouldEscalate applies the three triggers: explicit marker, keyword
// match on the last user message, and the repeated-attempt rule.
func (e *Engine) shouldEscalate(history []store.Message, reply string) bool {
	last := lastUserMessage(history)
	if last == nil {
		return false
	}

	if strings.Contains(reply, Marker) {
		return true
	}

	// Third user turn escalates unconditionally, regardless of content.
	if userMessageCount(history) >= repeatedAttemptThreshold {
		return true
	}

	content := strings.ToLower(last.Content)
	for _, kw := range e.rules.EscalationKeywords {
		if strings.Contains(content, kw) {
			return true
		}
	}
	return false
}

// reason returns the most specific applicable escalation reason, in
// fixed precedence: explicit marker, human request, frustration,
// billing, cancellation, then the generic trigger.
func (e *Engine) reason(history []store.Message, reply string) string {
	if strings.Contains(reply, Marker) {
		return "AI recommended escalation"
	}

	if last := lastUserMessage(history); last != nil {
		content := strings.ToLower(last.Content)
		switch {
		case strings.Contains(content, "human") || strings.Contains(content, "person"):
			return "User requested human agent"
		case strings.Contains(content, "frustrated") || strings.Contains(content, "angry"):
			return "User expressed frustration"
		case strings.Contains(content, "billing") || strings.Contains(content, "refund"):
			return "Billing/financial issue requires human intervention"
		case strings.Contains(content, "cancel"):
			return "Account cancellation request"
		}
	}

	return "Automatic escalation trigger activated"
}

// confidence starts at 0.8 and applies additive, independent penalties,
// clamping the result to [0.1, 1.0].
func (e *Engine) confidence(history []store.Message, reply string) float64 {
	confidence := 0.8

	lowered := strings.ToLower(reply)
	for _, phrase := range e.rules.UncertaintyPhrases {
		if strings.Contains(lowered, phrase) {
			confidence -= 0.3
			break
		}
	}

	if len(reply) < 50 {
		confidence -= 0.2
	}

	if userMessageCount(history) > 5 {
		confidence -= 0.1
	}

	if confidence < 0.1 {
		return 0.1
	}
	if confidence > 1.0 {
		return 1.0
	}
	return confidence
}

// category scans the full transcript, all roles, for keyword buckets in
// fixed precedence.
func (e *Engine) category(history []store.Message) store.Category {
	all := transcript(history)

	switch {
	case containsAny(all, "billing", "payment", "refund"):
		return store.CategoryBilling
	case containsAny(all, "bug", "error", "not working"):
		return store.CategoryTechnical
	case containsAny(all, "feature", "suggestion", "improvement"):
		return store.CategoryFeatureRequest
	case containsAny(all, "angry", "frustrated", "terrible"):
		return store.CategoryComplaint
	}
	return store.CategoryGeneral
}

// priority suggests high for escalations and urgent language, medium for
// billing topics, low for feature requests, medium otherwise.
func (e *Engine) priority(history []store.Message, verdict bool) store.Priority {
	all := transcript(history)

	if verdict || containsAny(all, e.rules.UrgencyKeywords...) {
		return store.PriorityHigh
	}
	if containsAny(all, "billing", "payment") {
		return store.PriorityMedium
	}
	if containsAny(all, "feature", "suggestion") {
		return store.PriorityLow
	}
	return store.PriorityMedium
}

// transcript joins all message contents, lowercased, for bucket scans.
func transcript(history []store.Message) string {
	parts := make([]string, len(history))
	for i, m := range history {
		parts[i] = m.Content
	}
	return strings.ToLower(strings.Join(parts, " "))
}

func containsAny(s string, terms ...string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}

func lastUserMessage(history []store.Message) *store.Message {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == store.RoleUser {
			return &history[i]
		}
	}
	return nil
}

func userMessageCount(history []store.Message) int {
	n := 0
	for _, m := range history {
		if m.Role == store.RoleUser {
			n++
		}
	}
	return n
}
