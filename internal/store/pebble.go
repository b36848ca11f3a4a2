// ABOUTME: Pebble implementation of the Store interface using cockroachdb/pebble
// ABOUTME: Entities are persisted as keyed JSON under per-collection key prefixes

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/pebble"
)

// Key prefixes per entity collection. Keys are <prefix><id>.
const (
	sessionPrefix = "session:"
	ticketPrefix  = "ticket:"
	agentPrefix   = "agent:"
)

// PebbleStore implements the Store interface using a Pebble key/value
// database. Every entity round-trips through JSON; timestamp fields are
// decoded by field type, never by content sniffing.
type PebbleStore struct {
	db     *pebble.DB
	logger *slog.Logger
}

// NewPebbleStore opens (or creates) a Pebble database at the given path.
// Parent directories are created if needed.
func NewPebbleStore(path string) (*PebbleStore, error) {
	logger := slog.Default().With("component", "store")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	logger.Info("pebble store initialized", "path", path)
	return &PebbleStore{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *PebbleStore) Close() error {
	return s.db.Close()
}

// put marshals v to JSON and writes it under key with a synced write.
func (s *PebbleStore) put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	if err := s.db.Set([]byte(key), data, pebble.Sync); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// get reads the value under key into v. Returns ErrNotFound if the key
// is absent.
func (s *PebbleStore) get(key string, v any) error {
	data, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("reading %s: %w", key, err)
	}
	defer closer.Close()

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshaling %s: %w", key, err)
	}
	return nil
}

// scan iterates all values under prefix, calling decode for each raw value.
func (s *PebbleStore) scan(prefix string, decode func(data []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(prefix + "\xff"),
	})
	if err != nil {
		return fmt.Errorf("creating iterator for %s: %w", prefix, err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		val, err := iter.ValueAndErr()
		if err != nil {
			return fmt.Errorf("reading value at %s: %w", iter.Key(), err)
		}
		if err := decode(val); err != nil {
			return err
		}
	}
	return iter.Error()
}

// CreateSession persists a new session. Returns ErrDuplicateSession if a
// session with the same ID already exists.
func (s *PebbleStore) CreateSession(ctx context.Context, session *Session) error {
	key := sessionPrefix + session.ID
	var existing Session
	if err := s.get(key, &existing); err == nil {
		return ErrDuplicateSession
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.put(key, session)
}

// GetSession returns the session with the given ID, or ErrNotFound.
func (s *PebbleStore) GetSession(ctx context.Context, id string) (*Session, error) {
	var session Session
	if err := s.get(sessionPrefix+id, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// SaveSession writes the session state through to storage.
func (s *PebbleStore) SaveSession(ctx context.Context, session *Session) error {
	return s.put(sessionPrefix+session.ID, session)
}

// ListSessions returns all sessions ordered by creation time.
func (s *PebbleStore) ListSessions(ctx context.Context) ([]*Session, error) {
	var sessions []*Session
	err := s.scan(sessionPrefix, func(data []byte) error {
		var session Session
		if err := json.Unmarshal(data, &session); err != nil {
			return fmt.Errorf("unmarshaling session: %w", err)
		}
		sessions = append(sessions, &session)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// SaveTicket writes the ticket state through to storage.
func (s *PebbleStore) SaveTicket(ctx context.Context, ticket *Ticket) error {
	return s.put(ticketPrefix+ticket.ID, ticket)
}

// GetTicket returns the ticket with the given ID, or ErrNotFound.
func (s *PebbleStore) GetTicket(ctx context.Context, id string) (*Ticket, error) {
	var ticket Ticket
	if err := s.get(ticketPrefix+id, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// ListTickets returns all tickets ordered by creation time.
func (s *PebbleStore) ListTickets(ctx context.Context) ([]*Ticket, error) {
	var tickets []*Ticket
	err := s.scan(ticketPrefix, func(data []byte) error {
		var ticket Ticket
		if err := json.Unmarshal(data, &ticket); err != nil {
			return fmt.Errorf("unmarshaling ticket: %w", err)
		}
		tickets = append(tickets, &ticket)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].CreatedAt.Before(tickets[j].CreatedAt)
	})
	return tickets, nil
}

// SaveAgent writes the agent state through to storage.
func (s *PebbleStore) SaveAgent(ctx context.Context, agent *Agent) error {
	return s.put(agentPrefix+agent.ID, agent)
}

// GetAgent returns the agent with the given ID, or ErrNotFound.
func (s *PebbleStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	var agent Agent
	if err := s.get(agentPrefix+id, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

// ListAgents returns all agents ordered by name.
func (s *PebbleStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	var agents []*Agent
	err := s.scan(agentPrefix, func(data []byte) error {
		var agent Agent
		if err := json.Unmarshal(data, &agent); err != nil {
			return fmt.Errorf("unmarshaling agent: %w", err)
		}
		agents = append(agents, &agent)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(agents, func(i, j int) bool {
		return agents[i].Name < agents[j].Name
	})
	return agents, nil
}
