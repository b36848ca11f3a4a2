// Package gateway wires the triage services into an HTTP server.
//
// # Components
//
// New builds the full stack from configuration: the pebble entity
// store, the SQLite transition audit log, the escalation engine (with
// an optional TOML rules file), the OpenAI-compatible completion
// provider, the conversation service, the ticket manager, and the
// assignment coordinator. Run serves HTTP until the context is
// canceled, then shuts everything down in order.
//
// # Routes
//
//	POST /api/sessions                    create a chat session
//	GET  /api/sessions                    list sessions
//	GET  /api/sessions/{id}               session with messages
//	GET  /api/sessions/{id}/transcript    conversation rendered as HTML
//	POST /api/sessions/{id}/messages      submit a user turn
//	POST /api/tickets                     create a ticket from a session
//	GET  /api/tickets                     list tickets (filterable)
//	GET  /api/tickets/{id}                fetch one ticket
//	PUT  /api/tickets/{id}                update ticket fields
//	PUT  /api/tickets/{id}/status         set ticket status
//	POST /api/tickets/{id}/assign         assign to an agent
//	GET  /api/agents                      list agents
//	GET  /api/export                      JSON dump of all entities
//	GET  /health                          liveness (no auth)
//
// API routes require authentication when auth.jwt_secret is set;
// /health is always open.
//
// # Error Mapping
//
// Unknown entities map to 404, validation failures to 400, a session
// with a turn already in flight to 409. Provider failures never map to
// an error status: the conversation service substitutes the fallback
// reply and escalates instead.
package gateway
