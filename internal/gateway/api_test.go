// ABOUTME: HTTP API tests for the triage gateway
// ABOUTME: Exercises the full stack end to end against a fake completion backend

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/triage-gateway/internal/auth"
	"github.com/2389/triage-gateway/internal/config"
	"github.com/2389/triage-gateway/internal/store"
)

// fakeCompletionServer returns an OpenAI-compatible backend that always
// replies with the given content.
func fakeCompletionServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}]}`, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(t *testing.T, reply, jwtSecret string) (*Gateway, *httptest.Server) {
	t.Helper()
	backend := fakeCompletionServer(t, reply)

	cfg := &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "triage.db")},
		Auth:     config.AuthConfig{JWTSecret: jwtSecret},
		Completion: config.CompletionConfig{
			BaseURL: backend.URL,
			APIKey:  "sk-test",
			Timeout: 5 * time.Second,
		},
	}

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)

	srv := httptest.NewServer(gw.httpServer.Handler)
	t.Cleanup(func() {
		srv.Close()
		gw.Shutdown(context.Background())
	})
	return gw, srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func putJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func createSession(t *testing.T, base string) *store.Session {
	t.Helper()
	resp := postJSON(t, base+"/api/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeBody[*store.Session](t, resp)
}

func TestHealth(t *testing.T) {
	_, srv := newTestGateway(t, "hi", "")

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	health := decodeBody[HealthResponse](t, resp)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "triage-gateway", health.Service)
	assert.False(t, health.Timestamp.IsZero())
}

func TestCreateAndGetSession(t *testing.T) {
	_, srv := newTestGateway(t, "hi", "")

	session := createSession(t, srv.URL)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, store.SessionActive, session.Status)

	resp, err := http.Get(srv.URL + "/api/sessions/" + session.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fetched := decodeBody[*store.Session](t, resp)
	assert.Equal(t, session.ID, fetched.ID)
}

func TestGetSession_NotFound(t *testing.T) {
	_, srv := newTestGateway(t, "hi", "")

	resp, err := http.Get(srv.URL + "/api/sessions/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubmitMessage(t *testing.T) {
	_, srv := newTestGateway(t, "You can update the address from your account settings page.", "")

	session := createSession(t, srv.URL)

	resp := postJSON(t, srv.URL+"/api/sessions/"+session.ID+"/messages",
		SubmitMessageRequest{Content: "how do I change my shipping address?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeBody[SubmitMessageResponse](t, resp)
	assert.Equal(t, "You can update the address from your account settings page.", result.AssistantReply.Content)
	assert.False(t, result.EscalationSignal.ShouldEscalate)
	require.Len(t, result.Session.Messages, 2)
	assert.Equal(t, store.RoleUser, result.Session.Messages[0].Role)
	assert.Equal(t, store.RoleAssistant, result.Session.Messages[1].Role)
}

func TestSubmitMessage_EscalationFlow(t *testing.T) {
	_, srv := newTestGateway(t, "Let me connect you with a specialist. [ESCALATE] Direct request for a human.", "")

	session := createSession(t, srv.URL)

	resp := postJSON(t, srv.URL+"/api/sessions/"+session.ID+"/messages",
		SubmitMessageRequest{Content: "I want to speak to a human agent"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeBody[SubmitMessageResponse](t, resp)
	assert.True(t, result.EscalationSignal.ShouldEscalate)
	assert.NotContains(t, result.AssistantReply.Content, "[ESCALATE]")
	assert.Equal(t, store.SessionEscalated, result.Session.Status)
	require.NotEmpty(t, result.Session.TicketID)

	// The linked ticket is fetchable and points back at the session.
	tresp, err := http.Get(srv.URL + "/api/tickets/" + result.Session.TicketID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, tresp.StatusCode)
	linked := decodeBody[*store.Ticket](t, tresp)
	assert.Equal(t, session.ID, linked.ChatSessionID)
}

func TestSubmitMessage_Validation(t *testing.T) {
	_, srv := newTestGateway(t, "hi", "")
	session := createSession(t, srv.URL)

	resp := postJSON(t, srv.URL+"/api/sessions/"+session.ID+"/messages", SubmitMessageRequest{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/api/sessions/missing/messages", SubmitMessageRequest{Content: "hello"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTranscript(t *testing.T) {
	_, srv := newTestGateway(t, "Sure, here is how that works.", "")
	session := createSession(t, srv.URL)

	resp := postJSON(t, srv.URL+"/api/sessions/"+session.ID+"/messages",
		SubmitMessageRequest{Content: "tell me about my plan"})
	resp.Body.Close()

	tresp, err := http.Get(srv.URL + "/api/sessions/" + session.ID + "/transcript")
	require.NoError(t, err)
	defer tresp.Body.Close()
	require.Equal(t, http.StatusOK, tresp.StatusCode)
	assert.Contains(t, tresp.Header.Get("Content-Type"), "text/html")

	body, err := io.ReadAll(tresp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "tell me about my plan")
	assert.Contains(t, string(body), "<strong>user</strong>")
}

func TestCreateTicketFromSession(t *testing.T) {
	_, srv := newTestGateway(t, "hi", "")
	session := createSession(t, srv.URL)

	resp := postJSON(t, srv.URL+"/api/tickets", CreateTicketRequest{
		SessionID:   session.ID,
		Title:       "Refund request",
		Description: "Customer wants a refund for order 1234",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[*store.Ticket](t, resp)
	assert.Equal(t, "Refund request", created.Title)
	assert.Equal(t, store.TicketCreated, created.Status)
	assert.Equal(t, session.ID, created.ChatSessionID)

	// Ticket creation escalates the session.
	sresp, err := http.Get(srv.URL + "/api/sessions/" + session.ID)
	require.NoError(t, err)
	after := decodeBody[*store.Session](t, sresp)
	assert.Equal(t, store.SessionEscalated, after.Status)
	assert.Equal(t, created.ID, after.TicketID)
}

func TestCreateTicket_Validation(t *testing.T) {
	_, srv := newTestGateway(t, "hi", "")

	resp := postJSON(t, srv.URL+"/api/tickets", CreateTicketRequest{Title: "no session"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/api/tickets", CreateTicketRequest{
		SessionID: "missing", Title: "t", Description: "d",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateTicketStatus(t *testing.T) {
	_, srv := newTestGateway(t, "hi", "")
	session := createSession(t, srv.URL)

	resp := postJSON(t, srv.URL+"/api/tickets", CreateTicketRequest{
		SessionID: session.ID, Title: "t", Description: "d",
	})
	created := decodeBody[*store.Ticket](t, resp)

	resp = putJSON(t, srv.URL+"/api/tickets/"+created.ID+"/status", UpdateStatusRequest{Status: "resolved"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeBody[*store.Ticket](t, resp)
	assert.Equal(t, store.TicketResolved, updated.Status)
	require.NotNil(t, updated.ResolvedAt)

	// Invalid status values are rejected.
	resp = putJSON(t, srv.URL+"/api/tickets/"+created.ID+"/status", UpdateStatusRequest{Status: "bogus"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAssignTicket(t *testing.T) {
	gw, srv := newTestGateway(t, "hi", "")
	session := createSession(t, srv.URL)

	resp := postJSON(t, srv.URL+"/api/tickets", CreateTicketRequest{
		SessionID: session.ID, Title: "t", Description: "d",
	})
	created := decodeBody[*store.Ticket](t, resp)

	require.NoError(t, gw.store.SaveAgent(context.Background(), &store.Agent{
		ID:     "agent-1",
		Name:   "Sam",
		Email:  "sam@example.com",
		Status: store.AgentAvailable,
	}))

	resp = postJSON(t, srv.URL+"/api/tickets/"+created.ID+"/assign", AssignRequest{AgentID: "agent-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decodeBody[AssignResponse](t, resp)
	assert.Equal(t, "agent-1", result.Ticket.AssignedAgent)
	assert.Equal(t, store.TicketInProgress, result.Ticket.Status)
	assert.Equal(t, store.AgentBusy, result.Agent.Status)
	assert.Contains(t, result.Agent.ActiveTickets, created.ID)

	// Unknown agent leaves everything untouched.
	resp = postJSON(t, srv.URL+"/api/tickets/"+created.ID+"/assign", AssignRequest{AgentID: "ghost"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListTicketsFiltered(t *testing.T) {
	_, srv := newTestGateway(t, "hi", "")

	for _, title := range []string{"first", "second"} {
		session := createSession(t, srv.URL)
		resp := postJSON(t, srv.URL+"/api/tickets", CreateTicketRequest{
			SessionID: session.ID, Title: title, Description: "d",
		})
		resp.Body.Close()
	}

	resp, err := http.Get(srv.URL + "/api/tickets?status=created")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tickets := decodeBody[[]*store.Ticket](t, resp)
	assert.Len(t, tickets, 2)

	resp, err = http.Get(srv.URL + "/api/tickets?status=closed")
	require.NoError(t, err)
	empty := decodeBody[[]*store.Ticket](t, resp)
	assert.Empty(t, empty)
}

func TestExport(t *testing.T) {
	gw, srv := newTestGateway(t, "hi", "")
	createSession(t, srv.URL)
	require.NoError(t, gw.store.SaveAgent(context.Background(), &store.Agent{
		ID: "agent-1", Name: "Sam", Email: "sam@example.com", Status: store.AgentAvailable,
	}))

	resp, err := http.Get(srv.URL + "/api/export")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	export := decodeBody[ExportResponse](t, resp)
	assert.Len(t, export.Sessions, 1)
	assert.Len(t, export.Agents, 1)
	assert.False(t, export.ExportedAt.IsZero())
}

func TestAuthRequired(t *testing.T) {
	_, srv := newTestGateway(t, "hi", "gateway-secret")

	// Unauthenticated requests are rejected.
	resp, err := http.Get(srv.URL + "/api/sessions")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Health stays open.
	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// A valid bearer token gets through.
	token, err := auth.NewJWTVerifier([]byte("gateway-secret")).Generate("agent-1", auth.RoleAgent, time.Hour)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/sessions", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
