// ABOUTME: Store interface and data types for triage-gateway persistence
// ABOUTME: Defines Session, Ticket, Agent structs and the Store interface for entity storage

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateSession is returned when trying to create a session that already exists
var ErrDuplicateSession = errors.New("session already exists")

// Role identifies the author type of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ValidRole reports whether r is a known message role.
func ValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// MessageMeta carries optional per-message annotations produced by the
// escalation engine.
type MessageMeta struct {
	Confidence        *float64 `json:"confidence,omitempty"`
	EscalationTrigger bool     `json:"escalation_trigger,omitempty"`
}

// Message is a single entry in a session transcript. Messages are
// immutable once appended.
type Message struct {
	ID        string       `json:"id"`
	Role      Role         `json:"role"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"created_at"`
	Metadata  *MessageMeta `json:"metadata,omitempty"`
}

// SessionStatus is the lifecycle state of a chat session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionEscalated SessionStatus = "escalated"
	SessionResolved  SessionStatus = "resolved"
)

// Session is one continuous customer conversation and its message log.
// The message log is append-only; insertion order is significant.
type Session struct {
	ID        string        `json:"id"`
	Messages  []Message     `json:"messages"`
	Status    SessionStatus `json:"status"`
	TicketID  string        `json:"ticket_id,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// UserMessageCount returns the number of user-authored messages in the
// session transcript.
func (s *Session) UserMessageCount() int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}

// TicketStatus is the lifecycle state of a ticket. The status field is a
// free enum set by the caller; transitions are validated for membership
// only, never against a transition table.
type TicketStatus string

const (
	TicketCreated    TicketStatus = "created"
	TicketAIHandling TicketStatus = "ai_handling"
	TicketEscalated  TicketStatus = "escalated"
	TicketInProgress TicketStatus = "in_progress"
	TicketResolved   TicketStatus = "resolved"
	TicketClosed     TicketStatus = "closed"
)

// ValidTicketStatus reports whether s is a known ticket status.
func ValidTicketStatus(s TicketStatus) bool {
	switch s {
	case TicketCreated, TicketAIHandling, TicketEscalated, TicketInProgress, TicketResolved, TicketClosed:
		return true
	}
	return false
}

// Terminal reports whether the status marks the ticket as finished.
func (s TicketStatus) Terminal() bool {
	return s == TicketResolved || s == TicketClosed
}

// Priority is the urgency level of a ticket.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ValidPriority reports whether p is a known priority.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Category classifies the subject matter of a ticket.
type Category string

const (
	CategoryTechnical      Category = "technical"
	CategoryBilling        Category = "billing"
	CategoryGeneral        Category = "general"
	CategoryComplaint      Category = "complaint"
	CategoryFeatureRequest Category = "feature_request"
)

// ValidCategory reports whether c is a known category.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryTechnical, CategoryBilling, CategoryGeneral, CategoryComplaint, CategoryFeatureRequest:
		return true
	}
	return false
}

// TicketMeta carries optional annotations recorded at escalation time.
type TicketMeta struct {
	EscalationTriggers []string `json:"escalation_triggers,omitempty"`
	AIConfidence       *float64 `json:"ai_confidence,omitempty"`
}

// Ticket is a trackable work item created when a session is escalated.
// Exactly one session originates each ticket.
type Ticket struct {
	ID               string       `json:"id"`
	Title            string       `json:"title"`
	Description      string       `json:"description"`
	Status           TicketStatus `json:"status"`
	Priority         Priority     `json:"priority"`
	Category         Category     `json:"category"`
	ChatSessionID    string       `json:"chat_session_id"`
	AssignedAgent    string       `json:"assigned_agent,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
	ResolvedAt       *time.Time   `json:"resolved_at,omitempty"`
	EscalationReason string       `json:"escalation_reason,omitempty"`
	Tags             []string     `json:"tags,omitempty"`
	Metadata         *TicketMeta  `json:"metadata,omitempty"`
}

// AgentStatus is the availability state of a human support agent.
// Offline is administrative and is never derived automatically.
type AgentStatus string

const (
	AgentAvailable AgentStatus = "available"
	AgentBusy      AgentStatus = "busy"
	AgentOffline   AgentStatus = "offline"
)

// Agent is a human support operative who can be assigned tickets.
// Agents are created administratively; this core mutates only Status
// and ActiveTickets.
type Agent struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Email         string      `json:"email"`
	Status        AgentStatus `json:"status"`
	ActiveTickets []string    `json:"active_tickets"`
	SkillTags     []string    `json:"skill_tags,omitempty"`
}

// HoldsTicket reports whether the agent's active set contains ticketID.
func (a *Agent) HoldsTicket(ticketID string) bool {
	for _, id := range a.ActiveTickets {
		if id == ticketID {
			return true
		}
	}
	return false
}

// Store defines the interface for session, ticket, and agent persistence.
// Writes are write-through: callers mutate in memory first and persist
// each mutation; a failed write is logged by the caller and does not roll
// back the in-memory transition.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	SaveSession(ctx context.Context, session *Session) error
	ListSessions(ctx context.Context) ([]*Session, error)

	// Tickets
	SaveTicket(ctx context.Context, ticket *Ticket) error
	GetTicket(ctx context.Context, id string) (*Ticket, error)
	ListTickets(ctx context.Context) ([]*Ticket, error)

	// Agents
	SaveAgent(ctx context.Context, agent *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	ListAgents(ctx context.Context) ([]*Agent, error)

	Close() error
}
