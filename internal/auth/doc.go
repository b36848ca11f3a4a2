// Package auth provides authentication and authorization for triage-gateway.
//
// # Authentication Methods
//
// The package supports two authentication methods:
//
//   - JWT Tokens: Human agents and API clients authenticate with JWT
//     tokens. Tokens are signed with HS256 using the configured
//     jwt_secret and carry a "role" claim.
//
//   - Operator API Key: A single administrative key minted at bootstrap.
//     Only its bcrypt hash is stored; the key is presented in the
//     X-API-Key header and grants the operator role.
//
// # Roles
//
//   - operator: administrative access, including ticket status changes
//     and agent assignment.
//   - agent: a human support agent; the default role for bearer tokens
//     without a role claim.
//
// # Middleware
//
// Middleware authenticates every request and attaches an Identity to
// the request context:
//
//	handler = auth.Middleware(verifier, operatorKeyHash)(mux)
//
// RequireOperator layers on top for operator-only routes. Handlers read
// the caller with FromContext.
package auth
