// ABOUTME: Conversation state manager owning the session message log and status
// ABOUTME: Runs the user turn: append, complete, evaluate, reply, and escalate when signaled

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/triage-gateway/internal/audit"
	"github.com/2389/triage-gateway/internal/completion"
	"github.com/2389/triage-gateway/internal/escalate"
	"github.com/2389/triage-gateway/internal/store"
	"github.com/2389/triage-gateway/internal/ticket"
)

// ErrEmptyMessage is returned when a submitted message has no content.
var ErrEmptyMessage = errors.New("message content is required")

// ErrTurnInProgress is returned when a session already has an
// outstanding provider call. A session has at most one at a time.
var ErrTurnInProgress = errors.New("session has a turn in progress")

// TicketManager defines what the service needs from the ticket layer:
// creating a ticket when a session escalates and resolving an existing
// link.
type TicketManager interface {
	CreateFromSession(ctx context.Context, session *store.Session, title, description string, opts *ticket.CreateOptions) (*store.Ticket, error)
	Get(ctx context.Context, ticketID string) (*store.Ticket, error)
}

// Service is the conversation layer: all session mutations flow through
// here as a single serialized transition stream. The only operation
// allowed to suspend is the completion provider call, which runs outside
// the transition lock.
type Service struct {
	store        store.Store
	provider     completion.Provider
	engine       *escalate.Engine
	tickets      TicketManager
	audit        audit.Recorder
	logger       *slog.Logger
	systemPrompt string

	mu       sync.Mutex
	inflight map[string]bool // sessions with an outstanding provider call
}

// Option configures a Service.
type Option func(*Service)

// WithSystemPrompt overrides the default support system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(s *Service) {
		if prompt != "" {
			s.systemPrompt = prompt
		}
	}
}

// New creates a conversation service.
func New(st store.Store, provider completion.Provider, engine *escalate.Engine, tickets TicketManager, recorder audit.Recorder, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}
	s := &Service{
		store:        st,
		provider:     provider,
		engine:       engine,
		tickets:      tickets,
		audit:        recorder,
		logger:       logger.With("component", "conversation"),
		systemPrompt: completion.DefaultSystemPrompt,
		inflight:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession allocates a new active session with an empty message log.
func (s *Service) CreateSession(ctx context.Context) (*store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	session := &store.Session{
		ID:        uuid.New().String(),
		Messages:  []store.Message{},
		Status:    store.SessionActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.recordTransition(ctx, session.ID, "", string(store.SessionActive), "session created")
	s.logger.Debug("session created", "session_id", session.ID)
	return session, nil
}

// GetSession returns a session by ID.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*store.Session, error) {
	return s.store.GetSession(ctx, sessionID)
}

// ListSessions returns all sessions ordered by creation time.
func (s *Service) ListSessions(ctx context.Context) ([]*store.Session, error) {
	return s.store.ListSessions(ctx)
}

// AppendMessage appends a message to the session log. The log is
// append-only: messages are never reordered or deduplicated. A failed
// store write is logged and the in-memory transition stands.
func (s *Service) AppendMessage(ctx context.Context, sessionID string, msg store.Message) (*store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(ctx, sessionID, msg)
}

func (s *Service) appendLocked(ctx context.Context, sessionID string, msg store.Message) (*store.Session, error) {
	if msg.Content == "" {
		return nil, ErrEmptyMessage
	}
	if !store.ValidRole(msg.Role) {
		return nil, fmt.Errorf("invalid message role %q", msg.Role)
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	session.Messages = append(session.Messages, msg)
	session.UpdatedAt = time.Now()

	s.saveSession(ctx, session)
	return session, nil
}

// SubmitResult is the outcome of one user turn.
type SubmitResult struct {
	Session        *store.Session
	AssistantReply store.Message
	Signal         escalate.Signal
}

// Submit runs one user turn: the user message is appended first, the
// completion provider is invoked outside the transition lock, the
// escalation engine evaluates the exchange, and the assistant reply is
// appended. A provider failure never surfaces to the caller: the
// deterministic fallback reply and signal are substituted instead.
func (s *Service) Submit(ctx context.Context, sessionID, content string) (*SubmitResult, error) {
	// Phase 1: record the user message and mark the turn in flight.
	s.mu.Lock()
	if s.inflight[sessionID] {
		s.mu.Unlock()
		return nil, ErrTurnInProgress
	}
	session, err := s.appendLocked(ctx, sessionID, store.Message{
		Role:    store.RoleUser,
		Content: content,
	})
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	history := make([]store.Message, len(session.Messages))
	copy(history, session.Messages)
	s.inflight[sessionID] = true
	s.mu.Unlock()

	// Phase 2: the provider call. Never under the lock; network latency
	// must not stall other sessions.
	reply, provErr := s.provider.Complete(ctx, toTurns(history), s.systemPrompt)

	// Phase 3: evaluate and commit the assistant turn.
	s.mu.Lock()
	defer s.mu.Unlock()
	defer delete(s.inflight, sessionID)

	var sig escalate.Signal
	var display string
	if provErr != nil {
		s.logger.Error("completion provider failed", "error", provErr, "session_id", sessionID)
		sig = escalate.Fallback()
		display = escalate.FallbackMessage
	} else {
		sig = s.engine.Evaluate(history, reply)
		display = escalate.StripMarker(reply)
	}

	confidence := sig.Confidence
	assistant := store.Message{
		ID:        uuid.New().String(),
		Role:      store.RoleAssistant,
		Content:   display,
		CreatedAt: time.Now(),
		Metadata: &store.MessageMeta{
			Confidence:        &confidence,
			EscalationTrigger: sig.ShouldEscalate,
		},
	}

	session, err = s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.Messages = append(session.Messages, assistant)
	session.UpdatedAt = time.Now()
	s.saveSession(ctx, session)

	if sig.ShouldEscalate {
		session, err = s.escalateLocked(ctx, session, sig.Reason, &sig)
		if err != nil {
			// The reply still stands; the next turn will trigger
			// escalation again.
			s.logger.Error("escalation failed", "error", err, "session_id", sessionID)
			err = nil
		}
	}

	return &SubmitResult{
		Session:        session,
		AssistantReply: assistant,
		Signal:         sig,
	}, nil
}

// Escalate transitions a session to escalated, creating and linking its
// ticket. The operation is idempotent: an already escalated session is
// returned unchanged and no second ticket is created.
func (s *Service) Escalate(ctx context.Context, sessionID, reason string) (*store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.escalateLocked(ctx, session, reason, nil)
}

func (s *Service) escalateLocked(ctx context.Context, session *store.Session, reason string, sig *escalate.Signal) (*store.Session, error) {
	if session.Status == store.SessionEscalated {
		return session, nil
	}

	opts := &ticket.CreateOptions{EscalationReason: reason}
	if sig != nil {
		opts.Category = sig.SuggestedCategory
		opts.Priority = sig.SuggestedPriority
		confidence := sig.Confidence
		opts.AIConfidence = &confidence
	}

	created, err := s.tickets.CreateFromSession(ctx, session,
		ticket.SynthesizeTitle(session),
		ticket.SynthesizeDescription(session, reason),
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("creating ticket: %w", err)
	}

	prev := session.Status
	session.Status = store.SessionEscalated
	session.TicketID = created.ID
	session.UpdatedAt = time.Now()
	s.saveSession(ctx, session)

	s.recordTransition(ctx, session.ID, string(prev), string(store.SessionEscalated), reason)
	s.logger.Info("session escalated",
		"session_id", session.ID,
		"ticket_id", created.ID,
		"reason", reason)
	return session, nil
}

// CreateTicket creates a ticket from a session with a caller-provided
// title and description, escalating the session. If the session already
// links a ticket, that ticket is returned and nothing new is created.
func (s *Service) CreateTicket(ctx context.Context, sessionID, title, description string) (*store.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.TicketID != "" {
		return s.tickets.Get(ctx, session.TicketID)
	}

	created, err := s.tickets.CreateFromSession(ctx, session, title, description, nil)
	if err != nil {
		return nil, fmt.Errorf("creating ticket: %w", err)
	}

	prev := session.Status
	session.Status = store.SessionEscalated
	session.TicketID = created.ID
	session.UpdatedAt = time.Now()
	s.saveSession(ctx, session)

	s.recordTransition(ctx, session.ID, string(prev), string(store.SessionEscalated), "manual ticket creation")
	return created, nil
}

// saveSession writes the session through to the store. Durability is
// best-effort: a failed write is logged and the transition stands.
func (s *Service) saveSession(ctx context.Context, session *store.Session) {
	if err := s.store.SaveSession(ctx, session); err != nil {
		s.logger.Error("failed to persist session", "error", err, "session_id", session.ID)
	}
}

func (s *Service) recordTransition(ctx context.Context, sessionID, from, to, reason string) {
	if err := s.audit.Record(ctx, audit.Entry{
		EntityType: audit.EntitySession,
		EntityID:   sessionID,
		FromState:  from,
		ToState:    to,
		Reason:     reason,
	}); err != nil {
		s.logger.Error("failed to record transition", "error", err, "session_id", sessionID)
	}
}

// toTurns converts stored messages to the provider's history shape.
func toTurns(messages []store.Message) []completion.TurnMessage {
	turns := make([]completion.TurnMessage, len(messages))
	for i, m := range messages {
		turns[i] = completion.TurnMessage{Role: string(m.Role), Content: m.Content}
	}
	return turns
}
