package outbox_test

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dashcrm/flowsaga/pkg/outbox"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisOutbox_EnqueueOrder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	t.Cleanup(func() { _ = client.Close() })

	box := outbox.NewRedisOutbox(client)
	ctx := t.Context()

	firstID, err := box.Enqueue(ctx, "emails", outbox.Message{Kind: outbox.KindSend, Payload: map[string]any{"to": "a@b.c"}})
	require.NoError(t, err)
	assert.NotEmpty(t, firstID)

	_, err = box.Enqueue(ctx, "emails", outbox.Message{ID: "fixed", Kind: outbox.KindCancel})
	require.NoError(t, err)

	pending, err := box.Pending(ctx, "emails")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, firstID, pending[0].ID)
	assert.Equal(t, "a@b.c", pending[0].Payload["to"])
	assert.Equal(t, "fixed", pending[1].ID)
	assert.False(t, pending[1].CreatedAt.IsZero())

	empty, err := box.Pending(ctx, "tasks")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
