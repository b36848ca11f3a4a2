// ABOUTME: Tests for the ticket lifecycle manager
// ABOUTME: Verifies creation defaults, title/description synthesis, status side effects, agent release

package ticket

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/triage-gateway/internal/assignment"
	"github.com/2389/triage-gateway/internal/store"
)

// recordingReleaser captures Release calls for assertions.
type recordingReleaser struct {
	released []string
}

func (r *recordingReleaser) Release(ctx context.Context, ticketID string) error {
	r.released = append(r.released, ticketID)
	return nil
}

func newTestStore(t *testing.T) *store.PebbleStore {
	t.Helper()
	s, err := store.NewPebbleStore(filepath.Join(t.TempDir(), "triage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testSession(messages ...string) *store.Session {
	session := &store.Session{
		ID:        "sess-1",
		Status:    store.SessionActive,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	for i, content := range messages {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleAssistant
		}
		session.Messages = append(session.Messages, store.Message{
			ID:      "m" + string(rune('1'+i)),
			Role:    role,
			Content: content,
		})
	}
	return session
}

func TestCreateFromSession_Defaults(t *testing.T) {
	s := newTestStore(t)
	m := NewManager(s, nil, nil, nil)
	ctx := context.Background()

	ticket, err := m.CreateFromSession(ctx, testSession("hello"), "My ticket", "Something broke", nil)
	require.NoError(t, err)

	assert.Equal(t, store.TicketCreated, ticket.Status)
	assert.Equal(t, store.PriorityMedium, ticket.Priority)
	assert.Equal(t, store.CategoryGeneral, ticket.Category)
	assert.Equal(t, "sess-1", ticket.ChatSessionID)
	assert.Empty(t, ticket.AssignedAgent)
	assert.Nil(t, ticket.ResolvedAt)

	stored, err := s.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.Title, stored.Title)
}

func TestCreateFromSession_CarriesEscalationMetadata(t *testing.T) {
	s := newTestStore(t)
	m := NewManager(s, nil, nil, nil)
	ctx := context.Background()

	confidence := 0.4
	ticket, err := m.CreateFromSession(ctx, testSession("refund please"), "Escalated: refund please...", "desc", &CreateOptions{
		EscalationReason: "Billing/financial issue requires human intervention",
		Category:         store.CategoryBilling,
		Priority:         store.PriorityHigh,
		AIConfidence:     &confidence,
		Triggers:         []string{"keyword"},
	})
	require.NoError(t, err)

	assert.Equal(t, store.CategoryBilling, ticket.Category)
	assert.Equal(t, store.PriorityHigh, ticket.Priority)
	assert.Equal(t, "Billing/financial issue requires human intervention", ticket.EscalationReason)
	require.NotNil(t, ticket.Metadata)
	assert.Equal(t, 0.4, *ticket.Metadata.AIConfidence)
	assert.Equal(t, []string{"keyword"}, ticket.Metadata.EscalationTriggers)
}

func TestCreateFromSession_RequiresTitle(t *testing.T) {
	s := newTestStore(t)
	m := NewManager(s, nil, nil, nil)

	_, err := m.CreateFromSession(context.Background(), testSession("hi"), "", "desc", nil)
	assert.Error(t, err)
}

func TestSynthesizeTitle(t *testing.T) {
	long := strings.Repeat("my printer is on fire and ", 4)
	session := testSession(long)
	title := SynthesizeTitle(session)

	assert.True(t, strings.HasPrefix(title, "Escalated: "))
	assert.True(t, strings.HasSuffix(title, "..."))
	// First ~50 characters of the first message.
	assert.Contains(t, title, long[:50])

	// Empty transcript falls back to a generic title.
	assert.Equal(t, "Escalated: Customer Inquiry...", SynthesizeTitle(&store.Session{}))
}

func TestSynthesizeTitle_MultiByteTruncation(t *testing.T) {
	session := testSession(strings.Repeat("ü", 60))
	title := SynthesizeTitle(session)

	// Truncation lands on a rune boundary, never mid-sequence.
	assert.True(t, utf8.ValidString(title))
	assert.Equal(t, "Escalated: "+strings.Repeat("ü", 50)+"...", title)
}

func TestSynthesizeDescription_LastThreeTurns(t *testing.T) {
	session := testSession("one", "two", "three", "four", "five")
	desc := SynthesizeDescription(session, "User expressed frustration")

	assert.Contains(t, desc, "Reason: User expressed frustration")
	assert.NotContains(t, desc, "one")
	assert.NotContains(t, desc, "two")
	assert.Contains(t, desc, "user: three")
	assert.Contains(t, desc, "assistant: four")
	assert.Contains(t, desc, "user: five")
}

func TestUpdateStatus_TerminalStampsResolvedAt(t *testing.T) {
	s := newTestStore(t)
	m := NewManager(s, nil, nil, nil)
	ctx := context.Background()

	ticket, err := m.CreateFromSession(ctx, testSession("hi"), "t", "d", nil)
	require.NoError(t, err)

	updated, err := m.UpdateStatus(ctx, ticket.ID, store.TicketResolved)
	require.NoError(t, err)
	require.NotNil(t, updated.ResolvedAt)

	// Moving back to an earlier status preserves resolvedAt.
	reopened, err := m.UpdateStatus(ctx, ticket.ID, store.TicketInProgress)
	require.NoError(t, err)
	assert.NotNil(t, reopened.ResolvedAt)
}

func TestUpdateStatus_FreeJumpsAllowed(t *testing.T) {
	s := newTestStore(t)
	m := NewManager(s, nil, nil, nil)
	ctx := context.Background()

	ticket, err := m.CreateFromSession(ctx, testSession("hi"), "t", "d", nil)
	require.NoError(t, err)

	// No transition table: created straight to closed, closed back to
	// ai_handling, and so on.
	for _, status := range []store.TicketStatus{
		store.TicketClosed, store.TicketAIHandling, store.TicketResolved, store.TicketCreated,
	} {
		updated, err := m.UpdateStatus(ctx, ticket.ID, status)
		require.NoError(t, err)
		assert.Equal(t, status, updated.Status)
	}
}

func TestUpdateStatus_InvalidStatus(t *testing.T) {
	s := newTestStore(t)
	m := NewManager(s, nil, nil, nil)
	ctx := context.Background()

	ticket, err := m.CreateFromSession(ctx, testSession("hi"), "t", "d", nil)
	require.NoError(t, err)

	_, err = m.UpdateStatus(ctx, ticket.ID, "archived")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	s := newTestStore(t)
	m := NewManager(s, nil, nil, nil)

	_, err := m.UpdateStatus(context.Background(), "ghost", store.TicketResolved)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateStatus_ReleasesAssignedAgentOnClose(t *testing.T) {
	s := newTestStore(t)
	releaser := &recordingReleaser{}
	m := NewManager(s, releaser, nil, nil)
	ctx := context.Background()

	ticket, err := m.CreateFromSession(ctx, testSession("hi"), "t", "d", nil)
	require.NoError(t, err)
	ticket.AssignedAgent = "agent-1"
	require.NoError(t, s.SaveTicket(ctx, ticket))

	_, err = m.UpdateStatus(ctx, ticket.ID, store.TicketClosed)
	require.NoError(t, err)
	assert.Equal(t, []string{ticket.ID}, releaser.released)

	// Non-terminal updates never release.
	releaser.released = nil
	_, err = m.UpdateStatus(ctx, ticket.ID, store.TicketInProgress)
	require.NoError(t, err)
	assert.Empty(t, releaser.released)
}

func TestUpdateStatus_CloseFreesAgentThroughCoordinator(t *testing.T) {
	s := newTestStore(t)
	coord := assignment.NewCoordinator(s, nil, nil)
	m := NewManager(s, coord, nil, nil)
	ctx := context.Background()

	ticket, err := m.CreateFromSession(ctx, testSession("hi"), "t", "d", nil)
	require.NoError(t, err)
	require.NoError(t, s.SaveAgent(ctx, &store.Agent{
		ID:     "agent-1",
		Name:   "Dana",
		Status: store.AgentAvailable,
	}))
	_, _, err = coord.Assign(ctx, ticket.ID, "agent-1")
	require.NoError(t, err)

	closed, err := m.UpdateStatus(ctx, ticket.ID, store.TicketClosed)
	require.NoError(t, err)
	assert.Equal(t, store.TicketClosed, closed.Status)
	require.NotNil(t, closed.ResolvedAt)

	agent, err := s.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, store.AgentAvailable, agent.Status)
	assert.Empty(t, agent.ActiveTickets)
}

func TestUpdate_Fields(t *testing.T) {
	s := newTestStore(t)
	m := NewManager(s, nil, nil, nil)
	ctx := context.Background()

	ticket, err := m.CreateFromSession(ctx, testSession("hi"), "t", "d", nil)
	require.NoError(t, err)

	title := "New title"
	priority := store.PriorityUrgent
	updated, err := m.Update(ctx, ticket.ID, Updates{
		Title:    &title,
		Priority: &priority,
		Tags:     []string{"vip"},
	})
	require.NoError(t, err)
	assert.Equal(t, "New title", updated.Title)
	assert.Equal(t, store.PriorityUrgent, updated.Priority)
	assert.Equal(t, []string{"vip"}, updated.Tags)
	// Untouched fields stay put.
	assert.Equal(t, "d", updated.Description)

	bad := store.Priority("critical")
	_, err = m.Update(ctx, ticket.ID, Updates{Priority: &bad})
	assert.Error(t, err)
}

func TestList_Filters(t *testing.T) {
	s := newTestStore(t)
	m := NewManager(s, nil, nil, nil)
	ctx := context.Background()

	first, err := m.CreateFromSession(ctx, testSession("a"), "a", "", &CreateOptions{Category: store.CategoryBilling})
	require.NoError(t, err)
	_, err = m.CreateFromSession(ctx, testSession("b"), "b", "", &CreateOptions{Category: store.CategoryTechnical})
	require.NoError(t, err)

	all, err := m.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	billing, err := m.List(ctx, ListFilter{Category: store.CategoryBilling})
	require.NoError(t, err)
	require.Len(t, billing, 1)
	assert.Equal(t, first.ID, billing[0].ID)

	none, err := m.List(ctx, ListFilter{Status: store.TicketClosed})
	require.NoError(t, err)
	assert.Empty(t, none)
}
