// Package redis provides Redis-backed implementations of the graph, state,
// decision and run stores. Values are JSON; ecosystem state writes are
// guarded by a WATCH transaction on the state key so the version check is
// atomic across processes.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/learnloop/ecosync/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store implements the orchestrator's persistence ports over Redis.
type Store struct {
	client     *redis.Client
	logger     *zap.Logger
	summaryTTL time.Duration
}

// NewStore creates a Redis store. summaryTTL bounds run summary retention;
// ecosystem state and the graph are not expired.
func NewStore(client *redis.Client, summaryTTL time.Duration, logger *zap.Logger) *Store {
	return &Store{
		client:     client,
		logger:     logger,
		summaryTTL: summaryTTL,
	}
}

const (
	graphKey       = "ecosync:graph:edges"
	statePrefix    = "ecosync:state:"
	decisionPrefix = "ecosync:decisions:"
	summaryPrefix  = "ecosync:summary:"
)

func stateKey(userID string) string    { return statePrefix + userID }
func decisionKey(userID string) string { return decisionPrefix + userID }
func summaryKey(id string) string      { return summaryPrefix + id }

// PutEdge inserts an edge into the graph hash, returning the existing edge
// unchanged on duplicates.
func (s *Store) PutEdge(ctx context.Context, edge domain.DependencyEdge) (domain.DependencyEdge, error) {
	field := fmt.Sprintf("%s->%s", edge.Source, edge.Target)

	data, err := json.Marshal(edge)
	if err != nil {
		return edge, fmt.Errorf("failed to marshal edge: %w", err)
	}

	// HSETNX keeps the first registration; duplicates are a no-op.
	set, err := s.client.HSetNX(ctx, graphKey, field, data).Result()
	if err != nil {
		return edge, fmt.Errorf("failed to store edge: %w", err)
	}
	if set {
		return edge, nil
	}

	existing, err := s.client.HGet(ctx, graphKey, field).Bytes()
	if err != nil {
		return edge, fmt.Errorf("failed to read existing edge: %w", err)
	}
	var out domain.DependencyEdge
	if err := json.Unmarshal(existing, &out); err != nil {
		return edge, fmt.Errorf("failed to unmarshal existing edge: %w", err)
	}
	return out, nil
}

// Edges returns every stored edge.
func (s *Store) Edges(ctx context.Context) ([]domain.DependencyEdge, error) {
	raw, err := s.client.HGetAll(ctx, graphKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load graph edges: %w", err)
	}

	edges := make([]domain.DependencyEdge, 0, len(raw))
	for field, data := range raw {
		var e domain.DependencyEdge
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			s.logger.Warn("skipping unreadable graph edge",
				zap.String("field", field),
				zap.Error(err))
			continue
		}
		edges = append(edges, e)
	}
	return edges, nil
}

// GetState retrieves a user's ecosystem state.
func (s *Store) GetState(ctx context.Context, userID string) (*domain.EcosystemState, error) {
	data, err := s.client.Get(ctx, stateKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrStateNotFound
		}
		return nil, fmt.Errorf("failed to get state: %w", err)
	}

	var state domain.EcosystemState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

// SaveState writes the state inside a WATCH transaction so the version
// check and the write are atomic. Losing the race returns
// domain.ErrVersionMismatch.
func (s *Store) SaveState(ctx context.Context, state *domain.EcosystemState, expectedVersion int64) error {
	key := stateKey(state.UserID)

	txn := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if expectedVersion != 0 {
				return domain.ErrVersionMismatch
			}
		case err != nil:
			return fmt.Errorf("failed to read current state: %w", err)
		default:
			var stored domain.EcosystemState
			if err := json.Unmarshal(current, &stored); err != nil {
				return fmt.Errorf("failed to unmarshal current state: %w", err)
			}
			if stored.Version != expectedVersion {
				return domain.ErrVersionMismatch
			}
		}

		data, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("failed to marshal state: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txn, key)
	if errors.Is(err, redis.TxFailedErr) {
		// Another writer touched the key between WATCH and EXEC.
		return domain.ErrVersionMismatch
	}
	if err != nil {
		return err
	}

	s.logger.Debug("ecosystem state saved",
		zap.String("user_id", state.UserID),
		zap.Int64("version", state.Version))
	return nil
}

// Append adds a decision log entry to the user's list.
func (s *Store) Append(ctx context.Context, entry *domain.DecisionLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal decision entry: %w", err)
	}

	if err := s.client.RPush(ctx, decisionKey(entry.UserID), data).Err(); err != nil {
		return fmt.Errorf("failed to append decision entry: %w", err)
	}
	return nil
}

// ListByUser returns the newest entries for a user, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.DecisionLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	raw, err := s.client.LRange(ctx, decisionKey(userID), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read decision entries: %w", err)
	}

	out := make([]*domain.DecisionLogEntry, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var entry domain.DecisionLogEntry
		if err := json.Unmarshal([]byte(raw[i]), &entry); err != nil {
			s.logger.Warn("skipping unreadable decision entry",
				zap.String("user_id", userID),
				zap.Error(err))
			continue
		}
		out = append(out, &entry)
	}
	return out, nil
}

// SaveSummary retains a run summary with the configured TTL.
func (s *Store) SaveSummary(ctx context.Context, summary *domain.OrchestrationSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	if err := s.client.Set(ctx, summaryKey(summary.OrchestrationID), data, s.summaryTTL).Err(); err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	return nil
}

// GetSummary returns a retained run summary.
func (s *Store) GetSummary(ctx context.Context, orchestrationID string) (*domain.OrchestrationSummary, error) {
	data, err := s.client.Get(ctx, summaryKey(orchestrationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, orchestrationID)
		}
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}

	var summary domain.OrchestrationSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}
	return &summary, nil
}
