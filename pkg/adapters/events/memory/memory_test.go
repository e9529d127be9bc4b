package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/learnloop/ecosync/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOutToTopicSubscribers(t *testing.T) {
	b := NewBus()
	ctx := context.Background()

	var got []string
	require.NoError(t, b.Subscribe(ctx, "runs", func(ctx context.Context, e ports.Event) error {
		got = append(got, e.Type)
		return nil
	}))
	require.NoError(t, b.Subscribe(ctx, "runs", func(ctx context.Context, e ports.Event) error {
		got = append(got, e.Type)
		return nil
	}))
	require.NoError(t, b.Subscribe(ctx, "modules", func(ctx context.Context, e ports.Event) error {
		t.Error("wrong topic delivered")
		return nil
	}))

	require.NoError(t, b.Publish(ctx, "runs", ports.Event{Type: "run.started"}))
	assert.Equal(t, []string{"run.started", "run.started"}, got)
}

func TestHandlerErrorDoesNotBlockOthers(t *testing.T) {
	b := NewBus()
	ctx := context.Background()

	delivered := false
	require.NoError(t, b.Subscribe(ctx, "runs", func(ctx context.Context, e ports.Event) error {
		return errors.New("consumer broken")
	}))
	require.NoError(t, b.Subscribe(ctx, "runs", func(ctx context.Context, e ports.Event) error {
		delivered = true
		return nil
	}))

	require.NoError(t, b.Publish(ctx, "runs", ports.Event{Type: "run.completed"}))
	assert.True(t, delivered)
}

func TestCloseDropsSubscriptions(t *testing.T) {
	b := NewBus()
	ctx := context.Background()

	require.NoError(t, b.Subscribe(ctx, "runs", func(ctx context.Context, e ports.Event) error {
		t.Error("delivered after close")
		return nil
	}))
	require.NoError(t, b.Close())
	require.NoError(t, b.Publish(ctx, "runs", ports.Event{Type: "run.started"}))
}
