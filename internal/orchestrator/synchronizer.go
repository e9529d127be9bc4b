package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/learnloop/ecosync/internal/domain"
	"github.com/learnloop/ecosync/internal/ports"
	"go.uber.org/zap"
)

// Synchronizer folds a run's execution results into the persisted per-user
// EcosystemState. Writes for the same user serialize behind a per-user
// mutex; different users never share a lock. The store's version check
// covers writers outside this process, with bounded retries on conflict.
type Synchronizer struct {
	store      ports.StateStore
	logger     *zap.Logger
	maxRetries int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSynchronizer creates a state synchronizer. maxRetries bounds optimistic
// write retries before the conflict is surfaced.
func NewSynchronizer(store ports.StateStore, logger *zap.Logger, maxRetries int) *Synchronizer {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Synchronizer{
		store:      store,
		logger:     logger,
		maxRetries: maxRetries,
		locks:      make(map[string]*sync.Mutex),
	}
}

// userLock returns the mutex for a user, creating it on first use.
func (s *Synchronizer) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// Synchronize applies the results of one run to the user's ecosystem state.
// It is idempotent under replay of the same result set. An empty result set
// preserves the prior state untouched. Exhausted conflict retries return
// domain.ErrSyncConflict; the caller's results remain valid either way.
func (s *Synchronizer) Synchronize(ctx context.Context, userID string, results []domain.ExecutionResult) (*domain.EcosystemState, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		state, err := s.store.GetState(ctx, userID)
		switch {
		case errors.Is(err, domain.ErrStateNotFound):
			state = domain.NewEcosystemState(userID)
		case err != nil:
			return nil, fmt.Errorf("failed to load ecosystem state: %w", err)
		default:
			state = state.Clone()
		}

		if len(results) == 0 {
			return state, nil
		}

		expected := state.Version
		for _, r := range results {
			state.SynchronizationStatus[r.Module] = r.Succeeded()
		}
		state.Version = expected + 1
		state.UpdatedAt = time.Now()

		err = s.store.SaveState(ctx, state, expected)
		if err == nil {
			s.logger.Debug("ecosystem state synchronized",
				zap.String("user_id", userID),
				zap.Int64("version", state.Version),
				zap.Int("modules", len(results)))
			return state, nil
		}
		if !errors.Is(err, domain.ErrVersionMismatch) {
			return nil, fmt.Errorf("failed to save ecosystem state: %w", err)
		}

		lastErr = err
		s.logger.Warn("ecosystem state write conflict, retrying",
			zap.String("user_id", userID),
			zap.Int("attempt", attempt+1))
	}

	return nil, fmt.Errorf("%w for user %s: %v", domain.ErrSyncConflict, userID, lastErr)
}
