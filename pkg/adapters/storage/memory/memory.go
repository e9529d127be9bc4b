// Package memory provides in-memory store implementations used by tests and
// single-process deployments.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/learnloop/ecosync/internal/domain"
)

// Store implements the graph, state, decision and run stores over maps.
// All methods are safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	edges     []domain.DependencyEdge
	edgeIndex map[string]int
	states    map[string]*domain.EcosystemState
	decisions map[string][]*domain.DecisionLogEntry
	summaries map[string]*domain.OrchestrationSummary
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		edgeIndex: make(map[string]int),
		states:    make(map[string]*domain.EcosystemState),
		decisions: make(map[string][]*domain.DecisionLogEntry),
		summaries: make(map[string]*domain.OrchestrationSummary),
	}
}

func edgeKey(e domain.DependencyEdge) string {
	return fmt.Sprintf("%s->%s", e.Source, e.Target)
}

// PutEdge inserts an edge, returning the existing one on duplicates.
func (s *Store) PutEdge(ctx context.Context, edge domain.DependencyEdge) (domain.DependencyEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := edgeKey(edge)
	if i, ok := s.edgeIndex[key]; ok {
		return s.edges[i], nil
	}
	s.edgeIndex[key] = len(s.edges)
	s.edges = append(s.edges, edge)
	return edge, nil
}

// Edges returns all stored edges.
func (s *Store) Edges(ctx context.Context) ([]domain.DependencyEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.DependencyEdge(nil), s.edges...), nil
}

// GetState returns a copy of the user's ecosystem state.
func (s *Store) GetState(ctx context.Context, userID string) (*domain.EcosystemState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[userID]
	if !ok {
		return nil, domain.ErrStateNotFound
	}
	return state.Clone(), nil
}

// SaveState writes the state if expectedVersion matches the stored version.
func (s *Store) SaveState(ctx context.Context, state *domain.EcosystemState, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.states[state.UserID]
	if ok && current.Version != expectedVersion {
		return domain.ErrVersionMismatch
	}
	if !ok && expectedVersion != 0 {
		return domain.ErrVersionMismatch
	}

	s.states[state.UserID] = state.Clone()
	return nil
}

// Append adds a decision log entry.
func (s *Store) Append(ctx context.Context, entry *domain.DecisionLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	s.decisions[entry.UserID] = append(s.decisions[entry.UserID], &cp)
	return nil
}

// ListByUser returns the newest entries for a user, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.DecisionLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.decisions[userID]
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}

	out := make([]*domain.DecisionLogEntry, 0, limit)
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *entries[i]
		out = append(out, &cp)
	}
	return out, nil
}

// SaveSummary retains a run summary.
func (s *Store) SaveSummary(ctx context.Context, summary *domain.OrchestrationSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *summary
	s.summaries[summary.OrchestrationID] = &cp
	return nil
}

// GetSummary returns a retained run summary.
func (s *Store) GetSummary(ctx context.Context, orchestrationID string) (*domain.OrchestrationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.summaries[orchestrationID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, orchestrationID)
	}
	cp := *summary
	return &cp, nil
}
