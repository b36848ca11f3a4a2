// Package escalate decides when a conversation should be handed off to
// a human agent.
//
// The engine is a deterministic, explainable heuristic, not a learned
// classifier. Evaluate is a pure function of the conversation history,
// the generated reply, and the configured Rules; the same inputs always
// produce the same Signal.
//
// Three triggers produce a positive verdict:
//
//  1. The reply contains the explicit [ESCALATE] marker.
//  2. The most recent user message matches the escalation vocabulary.
//  3. The transcript has accumulated three or more user turns.
//
// The Signal also carries a confidence score in [0.1, 1.0], a suggested
// ticket category and priority, and a human-readable reason chosen by
// fixed precedence. Fallback returns the signal substituted when the
// completion provider fails: escalate on doubt, zero confidence.
//
// Vocabularies ship as built-in defaults and can be replaced per
// deployment with a TOML rules file (see LoadRules).
package escalate
