// ABOUTME: Agent assignment coordinator tracking who holds which tickets
// ABOUTME: Assigns and releases tickets while keeping agent availability consistent

package assignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/triage-gateway/internal/audit"
	"github.com/2389/triage-gateway/internal/store"
)

// Coordinator owns the agent side of the lifecycle: the active-ticket
// set and the derived availability status. It is the only writer path
// for agent records.
type Coordinator struct {
	store  store.Store
	audit  audit.Recorder
	logger *slog.Logger
	mu     sync.Mutex
}

// NewCoordinator creates a coordinator over the given store.
func NewCoordinator(st store.Store, recorder audit.Recorder, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Coordinator{
		store:  st,
		audit:  recorder,
		logger: logger.With("component", "assignment"),
	}
}

// Assign hands a ticket to an agent: the ticket's assignee and status
// move to the agent and in_progress, the ticket joins the agent's
// active set (deduplicated), and the agent becomes busy unless
// administratively offline.
//
// Returns store.ErrNotFound without any state change when the ticket or
// agent does not exist.
func (c *Coordinator) Assign(ctx context.Context, ticketID, agentID string) (*store.Ticket, *store.Agent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ticket, err := c.store.GetTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("assign skipped, unknown ticket", "ticket_id", ticketID, "agent_id", agentID)
		}
		return nil, nil, err
	}
	agent, err := c.store.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("assign skipped, unknown agent", "ticket_id", ticketID, "agent_id", agentID)
		}
		return nil, nil, err
	}

	// Reassignment: pull the ticket back from the previous holder so no
	// agent's active set references a ticket assigned elsewhere.
	if ticket.AssignedAgent != "" && ticket.AssignedAgent != agentID {
		if err := c.releaseFromAgent(ctx, ticket.AssignedAgent, ticketID); err != nil {
			c.logger.Error("failed to release previous holder", "error", err,
				"ticket_id", ticketID, "previous_agent", ticket.AssignedAgent)
		}
	}

	prevTicketStatus := ticket.Status
	ticket.AssignedAgent = agentID
	ticket.Status = store.TicketInProgress
	ticket.UpdatedAt = time.Now()
	if err := c.store.SaveTicket(ctx, ticket); err != nil {
		return nil, nil, fmt.Errorf("saving ticket: %w", err)
	}

	prevAgentStatus := agent.Status
	if !agent.HoldsTicket(ticketID) {
		agent.ActiveTickets = append(agent.ActiveTickets, ticketID)
	}
	if agent.Status != store.AgentOffline {
		agent.Status = store.AgentBusy
	}
	if err := c.store.SaveAgent(ctx, agent); err != nil {
		return nil, nil, fmt.Errorf("saving agent: %w", err)
	}

	c.recordTransition(ctx, audit.EntityTicket, ticketID, string(prevTicketStatus), string(ticket.Status), "assigned to "+agentID)
	if prevAgentStatus != agent.Status {
		c.recordTransition(ctx, audit.EntityAgent, agentID, string(prevAgentStatus), string(agent.Status), "ticket assigned")
	}

	c.logger.Info("ticket assigned",
		"ticket_id", ticketID,
		"agent_id", agentID,
		"active_tickets", len(agent.ActiveTickets))
	return ticket, agent, nil
}

// Release removes a ticket from the active set of whichever agent holds
// it and recomputes that agent's status: available when the set empties,
// busy otherwise. Offline agents keep their status. Releasing a ticket
// nobody holds is a no-op.
func (c *Coordinator) Release(ctx context.Context, ticketID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ticket, err := c.store.GetTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if ticket.AssignedAgent == "" {
		return nil
	}
	return c.releaseFromAgent(ctx, ticket.AssignedAgent, ticketID)
}

// releaseFromAgent removes ticketID from one agent's active set and
// recomputes status. Caller holds c.mu.
func (c *Coordinator) releaseFromAgent(ctx context.Context, agentID, ticketID string) error {
	agent, err := c.store.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if !agent.HoldsTicket(ticketID) {
		return nil
	}

	remaining := make([]string, 0, len(agent.ActiveTickets))
	for _, id := range agent.ActiveTickets {
		if id != ticketID {
			remaining = append(remaining, id)
		}
	}
	agent.ActiveTickets = remaining

	prevStatus := agent.Status
	if agent.Status != store.AgentOffline {
		if len(agent.ActiveTickets) == 0 {
			agent.Status = store.AgentAvailable
		} else {
			agent.Status = store.AgentBusy
		}
	}

	if err := c.store.SaveAgent(ctx, agent); err != nil {
		return fmt.Errorf("saving agent: %w", err)
	}

	if prevStatus != agent.Status {
		c.recordTransition(ctx, audit.EntityAgent, agentID, string(prevStatus), string(agent.Status), "ticket released")
	}

	c.logger.Info("ticket released",
		"ticket_id", ticketID,
		"agent_id", agentID,
		"active_tickets", len(agent.ActiveTickets))
	return nil
}

// recordTransition writes an audit entry, logging failures instead of
// propagating them.
func (c *Coordinator) recordTransition(ctx context.Context, entity audit.EntityType, id, from, to, reason string) {
	if err := c.audit.Record(ctx, audit.Entry{
		EntityType: entity,
		EntityID:   id,
		FromState:  from,
		ToState:    to,
		Reason:     reason,
	}); err != nil {
		c.logger.Error("failed to record transition", "error", err, "entity", entity, "entity_id", id)
	}
}
