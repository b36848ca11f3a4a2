// ABOUTME: Ticket lifecycle manager owning ticket creation and status transitions
// ABOUTME: Creates tickets from escalated sessions and releases agents on closure

package ticket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/triage-gateway/internal/audit"
	"github.com/2389/triage-gateway/internal/store"
)

// ErrInvalidStatus is returned when a status update names an unknown status.
var ErrInvalidStatus = errors.New("invalid ticket status")

// AgentReleaser defines what the manager needs from the assignment layer:
// releasing a closed ticket from whichever agent holds it.
type AgentReleaser interface {
	Release(ctx context.Context, ticketID string) error
}

// Manager owns the ticket side of the lifecycle. The status field is a
// free enum set by the caller; updates are validated for membership and
// for their side effects only, never against a transition table.
type Manager struct {
	store    store.Store
	releaser AgentReleaser
	audit    audit.Recorder
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewManager creates a ticket manager. releaser may be nil when no
// assignment layer is wired (tickets then close without agent release).
func NewManager(st store.Store, releaser AgentReleaser, recorder audit.Recorder, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Manager{
		store:    st,
		releaser: releaser,
		audit:    recorder,
		logger:   logger.With("component", "ticket"),
	}
}

// CreateOptions carries escalation metadata onto a new ticket. These are
// initial values recorded at creation time, never re-evaluated afterward.
type CreateOptions struct {
	EscalationReason string
	Category         store.Category
	Priority         store.Priority
	AIConfidence     *float64
	Triggers         []string
}

// CreateFromSession derives a new ticket from a session. Defaults are
// status created, priority medium, category general; opts overrides
// category and priority when the escalation engine suggested them.
func (m *Manager) CreateFromSession(ctx context.Context, session *store.Session, title, description string, opts *CreateOptions) (*store.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}

	now := time.Now()
	ticket := &store.Ticket{
		ID:            uuid.New().String(),
		Title:         title,
		Description:   description,
		Status:        store.TicketCreated,
		Priority:      store.PriorityMedium,
		Category:      store.CategoryGeneral,
		ChatSessionID: session.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if opts != nil {
		ticket.EscalationReason = opts.EscalationReason
		if opts.Category != "" {
			ticket.Category = opts.Category
		}
		if opts.Priority != "" {
			ticket.Priority = opts.Priority
		}
		if opts.AIConfidence != nil || len(opts.Triggers) > 0 {
			ticket.Metadata = &store.TicketMeta{
				AIConfidence:       opts.AIConfidence,
				EscalationTriggers: opts.Triggers,
			}
		}
	}

	if err := m.store.SaveTicket(ctx, ticket); err != nil {
		return nil, fmt.Errorf("saving ticket: %w", err)
	}

	m.recordTransition(ctx, ticket.ID, "", string(ticket.Status), ticket.EscalationReason)
	m.logger.Info("ticket created",
		"ticket_id", ticket.ID,
		"session_id", session.ID,
		"category", ticket.Category,
		"priority", ticket.Priority)
	return ticket, nil
}

// titleLimit is roughly how much of the first message ends up in a
// synthesized ticket title.
const titleLimit = 50

// SynthesizeTitle builds a ticket title from the first ~50 characters of
// the session's first message.
func SynthesizeTitle(session *store.Session) string {
	first := "Customer Inquiry"
	if len(session.Messages) > 0 && session.Messages[0].Content != "" {
		first = session.Messages[0].Content
		if runes := []rune(first); len(runes) > titleLimit {
			first = string(runes[:titleLimit])
		}
	}
	return fmt.Sprintf("Escalated: %s...", first)
}

// SynthesizeDescription summarizes the escalation reason plus the last
// three transcript turns.
func SynthesizeDescription(session *store.Session, reason string) string {
	turns := session.Messages
	if len(turns) > 3 {
		turns = turns[len(turns)-3:]
	}
	lines := make([]string, len(turns))
	for i, m := range turns {
		lines[i] = fmt.Sprintf("%s: %s", m.Role, m.Content)
	}
	return fmt.Sprintf("Chat escalated. Reason: %s\n\nConversation summary: %s",
		reason, strings.Join(lines, "\n"))
}

// UpdateStatus sets a ticket's status. A terminal status (resolved or
// closed) stamps resolvedAt and, when an agent is assigned, releases the
// ticket from that agent. resolvedAt is preserved when a closed ticket
// later moves back to an earlier status.
func (m *Manager) UpdateStatus(ctx context.Context, ticketID string, newStatus store.TicketStatus) (*store.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !store.ValidTicketStatus(newStatus) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus)
	}

	ticket, err := m.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	prev := ticket.Status
	ticket.Status = newStatus
	ticket.UpdatedAt = time.Now()
	if newStatus.Terminal() {
		resolved := time.Now()
		ticket.ResolvedAt = &resolved
	}

	if err := m.store.SaveTicket(ctx, ticket); err != nil {
		return nil, fmt.Errorf("saving ticket: %w", err)
	}

	m.recordTransition(ctx, ticket.ID, string(prev), string(newStatus), "")

	if newStatus.Terminal() && ticket.AssignedAgent != "" && m.releaser != nil {
		if err := m.releaser.Release(ctx, ticket.ID); err != nil {
			m.logger.Error("failed to release agent", "error", err,
				"ticket_id", ticket.ID, "agent_id", ticket.AssignedAgent)
		}
	}

	m.logger.Info("ticket status updated",
		"ticket_id", ticket.ID,
		"from", prev,
		"to", newStatus)
	return ticket, nil
}

// Updates lists the mutable ticket fields a caller may change outside of
// status transitions. Nil fields are left untouched.
type Updates struct {
	Title            *string
	Description      *string
	Priority         *store.Priority
	Category         *store.Category
	EscalationReason *string
	Tags             []string
}

// Update applies field updates to a ticket.
func (m *Manager) Update(ctx context.Context, ticketID string, updates Updates) (*store.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ticket, err := m.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	if updates.Title != nil {
		ticket.Title = *updates.Title
	}
	if updates.Description != nil {
		ticket.Description = *updates.Description
	}
	if updates.Priority != nil {
		if !store.ValidPriority(*updates.Priority) {
			return nil, fmt.Errorf("invalid priority %q", *updates.Priority)
		}
		ticket.Priority = *updates.Priority
	}
	if updates.Category != nil {
		if !store.ValidCategory(*updates.Category) {
			return nil, fmt.Errorf("invalid category %q", *updates.Category)
		}
		ticket.Category = *updates.Category
	}
	if updates.EscalationReason != nil {
		ticket.EscalationReason = *updates.EscalationReason
	}
	if updates.Tags != nil {
		ticket.Tags = updates.Tags
	}
	ticket.UpdatedAt = time.Now()

	if err := m.store.SaveTicket(ctx, ticket); err != nil {
		return nil, fmt.Errorf("saving ticket: %w", err)
	}
	return ticket, nil
}

// Get returns a ticket by ID.
func (m *Manager) Get(ctx context.Context, ticketID string) (*store.Ticket, error) {
	return m.store.GetTicket(ctx, ticketID)
}

// ListFilter narrows List results. Empty fields match everything.
type ListFilter struct {
	Status        store.TicketStatus
	Priority      store.Priority
	Category      store.Category
	AssignedAgent string
}

// List returns tickets matching the filter, ordered by creation time.
func (m *Manager) List(ctx context.Context, filter ListFilter) ([]*store.Ticket, error) {
	tickets, err := m.store.ListTickets(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]*store.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && t.Priority != filter.Priority {
			continue
		}
		if filter.Category != "" && t.Category != filter.Category {
			continue
		}
		if filter.AssignedAgent != "" && t.AssignedAgent != filter.AssignedAgent {
			continue
		}
		matched = append(matched, t)
	}
	return matched, nil
}

func (m *Manager) recordTransition(ctx context.Context, ticketID, from, to, reason string) {
	if err := m.audit.Record(ctx, audit.Entry{
		EntityType: audit.EntityTicket,
		EntityID:   ticketID,
		FromState:  from,
		ToState:    to,
		Reason:     reason,
	}); err != nil {
		m.logger.Error("failed to record transition", "error", err, "ticket_id", ticketID)
	}
}
