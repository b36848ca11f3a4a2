// ABOUTME: HTTP API handlers for the triage gateway
// ABOUTME: Sessions, tickets, agents, export, and transcript rendering

package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/triage-gateway/internal/conversation"
	"github.com/2389/triage-gateway/internal/escalate"
	"github.com/2389/triage-gateway/internal/store"
	"github.com/2389/triage-gateway/internal/ticket"
)

// SubmitMessageRequest is the JSON request body for POST /api/sessions/{id}/messages.
type SubmitMessageRequest struct {
	Content string `json:"content"`
}

// SubmitMessageResponse is the JSON response for a submitted user turn.
type SubmitMessageResponse struct {
	Session          *store.Session  `json:"session"`
	AssistantReply   store.Message   `json:"assistant_reply"`
	EscalationSignal escalate.Signal `json:"escalation_signal"`
}

// CreateTicketRequest is the JSON request body for POST /api/tickets.
type CreateTicketRequest struct {
	SessionID   string `json:"session_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// UpdateStatusRequest is the JSON request body for PUT /api/tickets/{id}/status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateTicketRequest is the JSON request body for PUT /api/tickets/{id}.
type UpdateTicketRequest struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Priority    *string  `json:"priority,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// AssignRequest is the JSON request body for POST /api/tickets/{id}/assign.
type AssignRequest struct {
	AgentID string `json:"agent_id"`
}

// AssignResponse is the JSON response for an assignment.
type AssignResponse struct {
	Ticket *store.Ticket `json:"ticket"`
	Agent  *store.Agent  `json:"agent"`
}

// ExportResponse is the JSON response for GET /api/export.
type ExportResponse struct {
	Sessions   []*store.Session `json:"sessions"`
	Tickets    []*store.Ticket  `json:"tickets"`
	Agents     []*store.Agent   `json:"agents"`
	ExportedAt time.Time        `json:"exported_at"`
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
}

// handleHealth returns service liveness with a timestamp.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Service:   "triage-gateway",
	})
}

// handleSessions handles /api/sessions: POST creates, GET lists.
func (g *Gateway) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		session, err := g.conversation.CreateSession(r.Context())
		if err != nil {
			g.sendError(w, err)
			return
		}
		g.writeJSON(w, http.StatusCreated, session)
	case http.MethodGet:
		sessions, err := g.conversation.ListSessions(r.Context())
		if err != nil {
			g.sendError(w, err)
			return
		}
		g.writeJSON(w, http.StatusOK, sessions)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleSessionRoutes dispatches /api/sessions/{id}[/...] by suffix.
func (g *Gateway) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		g.sendJSONError(w, http.StatusBadRequest, "session id is required")
		return
	}

	switch sub {
	case "":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.handleGetSession(w, r, id)
	case "transcript":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.handleTranscript(w, r, id)
	case "messages":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.handleSubmitMessage(w, r, id)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (g *Gateway) handleGetSession(w http.ResponseWriter, r *http.Request, id string) {
	session, err := g.conversation.GetSession(r.Context(), id)
	if err != nil {
		g.sendError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, session)
}

// handleSubmitMessage handles POST /api/sessions/{id}/messages.
// Runs one user turn and returns the assistant reply with its
// escalation signal. The provider call is awaited before responding.
func (g *Gateway) handleSubmitMessage(w http.ResponseWriter, r *http.Request, id string) {
	req, err := parseSubmitRequest(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := g.conversation.Submit(r.Context(), id, req.Content)
	if err != nil {
		g.sendError(w, err)
		return
	}

	g.writeJSON(w, http.StatusOK, SubmitMessageResponse{
		Session:          result.Session,
		AssistantReply:   result.AssistantReply,
		EscalationSignal: result.Signal,
	})
}

// handleTranscript handles GET /api/sessions/{id}/transcript.
// Renders the conversation as HTML from markdown.
func (g *Gateway) handleTranscript(w http.ResponseWriter, r *http.Request, id string) {
	session, err := g.conversation.GetSession(r.Context(), id)
	if err != nil {
		g.sendError(w, err)
		return
	}

	md := transcriptMarkdown(session)

	var htmlBuf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &htmlBuf); err != nil {
		g.logger.Error("failed to convert transcript markdown", "error", err, "session_id", id)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(htmlBuf.Bytes())
}

// transcriptMarkdown renders a session as a markdown document.
func transcriptMarkdown(session *store.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Conversation %s\n\n", session.ID)
	fmt.Fprintf(&b, "Status: %s\n\n", session.Status)
	if session.TicketID != "" {
		fmt.Fprintf(&b, "Ticket: %s\n\n", session.TicketID)
	}
	for _, m := range session.Messages {
		fmt.Fprintf(&b, "**%s** (%s):\n\n%s\n\n", m.Role, m.CreatedAt.Format(time.RFC3339), m.Content)
	}
	return b.String()
}

// handleTickets handles /api/tickets: POST creates from a session, GET
// lists with optional status/priority/category/assigned_agent filters.
func (g *Gateway) handleTickets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		g.handleCreateTicket(w, r)
	case http.MethodGet:
		g.handleListTickets(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (g *Gateway) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req CreateTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SessionID == "" || req.Title == "" || req.Description == "" {
		g.sendJSONError(w, http.StatusBadRequest, "session_id, title and description are required")
		return
	}

	created, err := g.conversation.CreateTicket(r.Context(), req.SessionID, req.Title, req.Description)
	if err != nil {
		g.sendError(w, err)
		return
	}
	g.writeJSON(w, http.StatusCreated, created)
}

func (g *Gateway) handleListTickets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ticket.ListFilter{
		Status:        store.TicketStatus(q.Get("status")),
		Priority:      store.Priority(q.Get("priority")),
		Category:      store.Category(q.Get("category")),
		AssignedAgent: q.Get("assigned_agent"),
	}

	tickets, err := g.tickets.List(r.Context(), filter)
	if err != nil {
		g.sendError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, tickets)
}

// handleTicketRoutes dispatches /api/tickets/{id}[/...] by suffix.
func (g *Gateway) handleTicketRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/tickets/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		g.sendJSONError(w, http.StatusBadRequest, "ticket id is required")
		return
	}

	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			g.handleGetTicket(w, r, id)
		case http.MethodPut:
			g.handleUpdateTicket(w, r, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case "status":
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.handleUpdateStatus(w, r, id)
	case "assign":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.handleAssign(w, r, id)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (g *Gateway) handleGetTicket(w http.ResponseWriter, r *http.Request, id string) {
	t, err := g.tickets.Get(r.Context(), id)
	if err != nil {
		g.sendError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, t)
}

func (g *Gateway) handleUpdateTicket(w http.ResponseWriter, r *http.Request, id string) {
	var req UpdateTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	updates := ticket.Updates{
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
	}
	if req.Priority != nil {
		p := store.Priority(*req.Priority)
		updates.Priority = &p
	}
	if req.Category != nil {
		c := store.Category(*req.Category)
		updates.Category = &c
	}

	t, err := g.tickets.Update(r.Context(), id, updates)
	if err != nil {
		g.sendError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, t)
}

func (g *Gateway) handleUpdateStatus(w http.ResponseWriter, r *http.Request, id string) {
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Status == "" {
		g.sendJSONError(w, http.StatusBadRequest, "status is required")
		return
	}

	t, err := g.tickets.UpdateStatus(r.Context(), id, store.TicketStatus(req.Status))
	if err != nil {
		g.sendError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, t)
}

func (g *Gateway) handleAssign(w http.ResponseWriter, r *http.Request, id string) {
	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AgentID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	t, agent, err := g.assigner.Assign(r.Context(), id, req.AgentID)
	if err != nil {
		g.sendError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, AssignResponse{Ticket: t, Agent: agent})
}

// handleListAgents handles GET /api/agents.
func (g *Gateway) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	agents, err := g.store.ListAgents(r.Context())
	if err != nil {
		g.sendError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, agents)
}

// handleExport handles GET /api/export: a JSON dump of all entities.
func (g *Gateway) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	sessions, err := g.store.ListSessions(ctx)
	if err != nil {
		g.sendError(w, err)
		return
	}
	tickets, err := g.store.ListTickets(ctx)
	if err != nil {
		g.sendError(w, err)
		return
	}
	agents, err := g.store.ListAgents(ctx)
	if err != nil {
		g.sendError(w, err)
		return
	}

	g.writeJSON(w, http.StatusOK, ExportResponse{
		Sessions:   sessions,
		Tickets:    tickets,
		Agents:     agents,
		ExportedAt: time.Now().UTC(),
	})
}

// parseSubmitRequest parses and validates a SubmitMessageRequest from the given reader.
func parseSubmitRequest(r io.Reader) (*SubmitMessageRequest, error) {
	var req SubmitMessageRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	if req.Content == "" {
		return nil, errors.New("content is required")
	}
	return &req, nil
}

// writeJSON writes a JSON response with the given status.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// sendError maps a service error to an HTTP status.
func (g *Gateway) sendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, ticket.ErrInvalidStatus),
		errors.Is(err, conversation.ErrEmptyMessage):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, conversation.ErrTurnInProgress):
		g.sendJSONError(w, http.StatusConflict, err.Error())
	default:
		g.logger.Error("request failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}
