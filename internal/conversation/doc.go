// ABOUTME: Package documentation for the conversation service
// ABOUTME: Describes the turn loop and the session transition discipline

// Package conversation owns chat session state: the append-only message
// log, the session status, and the ticket link.
//
// Every session mutation flows through the Service so transitions apply
// one at a time. Submit is the heart of the package: it appends the user
// message, calls the completion provider outside the transition lock,
// runs the escalation engine over the exchange, appends the assistant
// reply with its confidence metadata, and escalates the session when the
// engine signals. Provider failures degrade to a fixed fallback reply
// that always escalates.
//
// Escalation is idempotent. A session links at most one ticket for its
// lifetime; repeat escalations return the session unchanged.
package conversation
