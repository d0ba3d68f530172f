package cmd

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dashcrm/flowsaga/pkg/log"
	"github.com/dashcrm/flowsaga/pkg/mocks"
	"github.com/dashcrm/flowsaga/pkg/outbox"
	"github.com/dashcrm/flowsaga/pkg/persistence/file"
	"github.com/dashcrm/flowsaga/pkg/persistence/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePersistenceProvider(t *testing.T) {
	tests := map[string]string{
		"postgres://user@localhost/flowsaga":   "postgresql",
		"postgresql://user@localhost/flowsaga": "postgresql",
		"file:///var/lib/flowsaga":             "file",
		"./data":                               "file",
		"mysql://localhost/db":                 "file",
	}

	for url, expected := range tests {
		t.Run(url, func(t *testing.T) {
			assert.Equal(t, expected, parsePersistenceProvider(url))
		})
	}
}

func TestNewPersistence_File(t *testing.T) {
	dir := t.TempDir()

	p, err := NewPersistence(context.Background(), log.Discard(), "file://"+dir)
	require.NoError(t, err)
	assert.IsType(t, &file.Persistence{}, p)

	assert.Same(t, p, NewExecutionStore(log.Discard(), p, nil))
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	p := file.NewPersistence(t.TempDir())
	assert.IsType(t, &redis.ExecutionStore{}, NewExecutionStore(log.Discard(), p, client))

	_, err = NewRedisClient(context.Background(), "not-a-url")
	require.Error(t, err)
}

func TestNewEventBus(t *testing.T) {
	bus, err := NewEventBus("gochannel", "", "flowsaga-test", log.Discard())
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	_, err = NewEventBus("kafka", "", "flowsaga-test", log.Discard())
	require.Error(t, err)

	_, err = NewEventBus("nats", "", "flowsaga-test", log.Discard())
	require.Error(t, err)
}

type discardOutbox struct{}

func (discardOutbox) Enqueue(context.Context, string, outbox.Message) (string, error) {
	return "id", nil
}

func TestRegistries(t *testing.T) {
	workflows, err := NewWorkflowRegistry(log.Discard(), ActionDependencies{Outbox: discardOutbox{}}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"ai_generate", "create_task", "http_request", "log", "noop", "send_email", "transform",
	}, workflows.Actions())

	leads := NewLeadRegistry(log.Discard(), ActionDependencies{Leads: &mocks.MockLeadRepository{}})
	assert.Equal(t, []string{
		"ai_generate", "http_request", "log", "noop", "transform", "update_lead_field",
	}, leads.Actions())
}
