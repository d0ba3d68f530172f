package email_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dashcrm/flowsaga/pkg/actions/email"
	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/outbox"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOutbox(t *testing.T) *outbox.RedisOutbox {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return outbox.NewRedisOutbox(client)
}

func TestAction_QueuesAndCancels(t *testing.T) {
	ob := newOutbox(t)
	factory := email.NewActionFactory[models.LeadContext](ob, slog.New(slog.DiscardHandler))
	assert.Equal(t, "send_email", factory.ID())

	action, err := factory.Create(map[string]any{"from": "sales@example.com"})
	require.NoError(t, err)

	lead := models.LeadContext{ExecutionID: "exec-1", Lead: &models.Lead{ID: "lead-1", Name: "Ada", Email: "ada@example.com"}}

	result, err := action.Execute(context.Background(), map[string]any{
		"subject": "Welcome {{ .entity.name }}",
		"body":    "Thanks for signing up",
	}, models.Payload{}, lead)
	require.NoError(t, err)

	assert.Equal(t, "email_queued", result["action_result"])
	assert.Equal(t, "ada@example.com", result["email_to"])

	pending, err := ob.Pending(context.Background(), email.Queue)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, outbox.KindSend, pending[0].Kind)
	assert.Equal(t, "exec-1", pending[0].ExecutionID)
	assert.Equal(t, "lead:lead-1", pending[0].EntityRef)
	assert.Equal(t, "Welcome Ada", pending[0].Payload["subject"])
	assert.Equal(t, "sales@example.com", pending[0].Payload["from"])
	assert.Equal(t, result["email_id"], pending[0].ID)

	compensator, ok := action.(interface {
		Compensate(ctx context.Context, step models.StepRecord, entity models.LeadContext) error
	})
	require.True(t, ok)

	undo := result[models.CompensationKey].(map[string]any)
	require.NoError(t, compensator.Compensate(context.Background(), models.StepRecord{Compensation: undo}, lead))

	pending, err = ob.Pending(context.Background(), email.Queue)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, outbox.KindCancel, pending[1].Kind)
	assert.Equal(t, pending[0].ID, pending[1].Payload["message_id"])
}

func TestAction_Recipient(t *testing.T) {
	tests := []struct {
		name       string
		parameters map[string]any
		expected   string
		err        error
	}{
		{name: "explicit recipient", parameters: map[string]any{"to": "ops@example.com"}, expected: "ops@example.com"},
		{name: "workflow context has no contact", parameters: map[string]any{}, err: email.ErrNoRecipient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, err := email.NewActionFactory[models.WorkflowContext](newOutbox(t), slog.New(slog.DiscardHandler)).Create(nil)
			require.NoError(t, err)

			result, err := action.Execute(context.Background(), tt.parameters, models.Payload{}, models.WorkflowContext{WorkflowID: "wf"})
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, result["email_to"])
		})
	}
}

type brokenOutbox struct{}

func (brokenOutbox) Enqueue(context.Context, string, outbox.Message) (string, error) {
	return "", errors.New("redis unavailable")
}

func TestAction_OutboxFailure(t *testing.T) {
	action, err := email.NewActionFactory[models.WorkflowContext](brokenOutbox{}, slog.New(slog.DiscardHandler)).Create(nil)
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), map[string]any{"to": "a@example.com"}, models.Payload{}, models.WorkflowContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis unavailable")
}
