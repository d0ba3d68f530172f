package redis_test

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dashcrm/flowsaga/pkg/log"
	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/persistence"
	redisstore "github.com/dashcrm/flowsaga/pkg/persistence/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*redisstore.ExecutionStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := redisstore.NewExecutionStore(client, log.Discard())

	t.Cleanup(func() {
		_ = store.Close(t.Context())
		mr.Close()
	})

	return store, mr
}

func TestExecutionStore_RoundTrip(t *testing.T) {
	store, _ := setupStore(t)
	ctx := t.Context()

	_, err := store.CreateExecution(ctx, persistence.NewExecution{
		ID:         "exec-1",
		Variant:    models.VariantWorkflow,
		WorkflowID: "wf",
		Payload:    models.Payload{"k": "v"},
	})
	require.NoError(t, err)

	_, err = store.CreateExecution(ctx, persistence.NewExecution{ID: "exec-1"})
	require.ErrorIs(t, err, persistence.ErrExecutionAlreadyExists)

	pending, err := store.ExecutionsByStatus(ctx, models.ExecutionStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, store.UpdateExecutionStatus(ctx, "exec-1", models.ExecutionStatusInProgress, persistence.Update{
		CurrentNode: "second",
		Step:        &models.StepRecord{Node: "start", Action: "noop", Status: models.StepStatusCompleted},
	}))

	require.NoError(t, store.UpdateExecutionStatus(ctx, "exec-1", models.ExecutionStatusCompleted, persistence.Update{
		Payload: models.Payload{"k": "v", "done": true},
	}))

	record, err := store.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, record.Status)
	assert.Equal(t, "second", record.CurrentNode)
	assert.Equal(t, true, record.Payload["done"])
	assert.Len(t, record.Steps, 1)
	assert.NotNil(t, record.CompletedAt)

	pending, err = store.ExecutionsByStatus(ctx, models.ExecutionStatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	completed, err := store.ExecutionsByStatus(ctx, models.ExecutionStatusCompleted)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "exec-1", completed[0].ID)
}

func TestExecutionStore_Errors(t *testing.T) {
	store, mr := setupStore(t)
	ctx := t.Context()

	_, err := store.GetExecution(ctx, "missing")
	require.ErrorIs(t, err, persistence.ErrExecutionNotFound)

	err = store.UpdateExecutionStatus(ctx, "missing", models.ExecutionStatusFailed, persistence.Update{})
	require.ErrorIs(t, err, persistence.ErrExecutionNotFound)

	err = store.UpdateExecutionStatus(ctx, "missing", models.ExecutionStatus("bogus"), persistence.Update{})
	require.ErrorIs(t, err, persistence.ErrInvalidStatus)

	require.NoError(t, store.HealthCheck(ctx))

	mr.SetError("LOADING server is loading")
	assert.Error(t, store.HealthCheck(ctx))
	mr.SetError("")
}
