// Package store provides persistent storage for the gateway using Pebble.
//
// # Architecture
//
// The package defines the core data models and a single Store interface
// consumed by the conversation, ticket, and assignment layers:
//
//   - Session: conversation transcript with lifecycle status
//   - Ticket: work item created from an escalated session
//   - Agent: human support operative with an active-ticket set
//
// PebbleStore implements Store on a Pebble key/value database. Entities
// are stored as JSON values under per-collection key prefixes:
//
//	session:<id>
//	ticket:<id>
//	agent:<id>
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicateSession: session already exists
//
// All methods accept context.Context for symmetry with the service
// layers; Pebble operations themselves are synchronous.
//
// # Testing
//
// Use NewPebbleStore with t.TempDir() for tests; no fixtures or
// migrations are required.
package store
