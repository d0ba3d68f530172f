// Package redis provides a Redis-backed execution store.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "flowsaga"

	// maxTxRetries bounds optimistic-lock retries of a status update.
	maxTxRetries = 5
)

// ExecutionStore keeps each record as a JSON string and indexes ids per status in sorted
// sets scored by creation time.
type ExecutionStore struct {
	client redis.UniversalClient
	logger *slog.Logger
	prefix string
	now    func() time.Time
}

var _ persistence.ExecutionStore = (*ExecutionStore)(nil)

// NewExecutionStore wraps an existing client.
func NewExecutionStore(client redis.UniversalClient, logger *slog.Logger) *ExecutionStore {
	return &ExecutionStore{
		client: client,
		logger: logger.With("module", "redis_execution_store"),
		prefix: defaultPrefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *ExecutionStore) executionKey(id string) string {
	return s.prefix + ":execution:" + id
}

func (s *ExecutionStore) statusKey(status models.ExecutionStatus) string {
	return s.prefix + ":executions:status:" + string(status)
}

// CreateExecution stores a new pending record, refusing to overwrite an existing one.
func (s *ExecutionStore) CreateExecution(ctx context.Context, execution persistence.NewExecution) (*models.ExecutionRecord, error) {
	record := persistence.NewRecord(execution, s.now())

	data, err := json.Marshal(record)
	if err != nil {
		return nil, persistence.NewExecutionError("Create", execution.ID, fmt.Errorf("failed to marshal execution: %w", err))
	}

	created, err := s.client.SetNX(ctx, s.executionKey(record.ID), data, 0).Result()
	if err != nil {
		return nil, persistence.NewExecutionError("Create", execution.ID, err)
	}

	if !created {
		return nil, persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionAlreadyExists)
	}

	err = s.client.ZAdd(ctx, s.statusKey(record.Status), redis.Z{
		Score:  float64(record.CreatedAt.UnixNano()),
		Member: record.ID,
	}).Err()
	if err != nil {
		return nil, persistence.NewExecutionError("Create", execution.ID, fmt.Errorf("failed to index execution: %w", err))
	}

	return record, nil
}

// UpdateExecutionStatus applies a transition inside a WATCH transaction, retrying when
// another writer touched the record in between.
func (s *ExecutionStore) UpdateExecutionStatus(ctx context.Context, id string, status models.ExecutionStatus, update persistence.Update) error {
	if !status.Valid() {
		return persistence.NewExecutionError("UpdateStatus", id, persistence.ErrInvalidStatus)
	}

	key := s.executionKey(id)

	txf := func(tx *redis.Tx) error {
		record, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}

		previous := record.Status
		persistence.Apply(record, status, update, s.now())

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal execution: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)

			if previous != record.Status {
				pipe.ZRem(ctx, s.statusKey(previous), id)
				pipe.ZAdd(ctx, s.statusKey(record.Status), redis.Z{
					Score:  float64(record.CreatedAt.UnixNano()),
					Member: id,
				})
			}

			return nil
		})

		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.DebugContext(ctx, "Execution changed during update, retrying", "execution_id", id, "attempt", attempt+1)

			continue
		}

		if err != nil {
			return persistence.NewExecutionError("UpdateStatus", id, err)
		}

		return nil
	}

	return persistence.NewExecutionError("UpdateStatus", id, redis.TxFailedErr)
}

// GetExecution returns an execution record by its ID.
func (s *ExecutionStore) GetExecution(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	record, err := s.load(ctx, s.client, id)
	if err != nil {
		return nil, persistence.NewExecutionError("Get", id, err)
	}

	return record, nil
}

// ExecutionsByStatus returns the records in the given status, oldest first.
func (s *ExecutionStore) ExecutionsByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.ExecutionRecord, error) {
	ids, err := s.client.ZRange(ctx, s.statusKey(status), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read status index: %w", err)
	}

	records := make([]*models.ExecutionRecord, 0, len(ids))
	if len(ids) == 0 {
		return records, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.executionKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load executions: %w", err)
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			s.logger.WarnContext(ctx, "Indexed execution is missing", "execution_id", ids[i])

			continue
		}

		var record models.ExecutionRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution %s: %w", ids[i], err)
		}

		if record.Status == status {
			records = append(records, &record)
		}
	}

	return records, nil
}

// HealthCheck pings the server.
func (s *ExecutionStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (s *ExecutionStore) Close(_ context.Context) error {
	return s.client.Close()
}

func (s *ExecutionStore) load(ctx context.Context, client redis.Cmdable, id string) (*models.ExecutionRecord, error) {
	data, err := client.Get(ctx, s.executionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, persistence.ErrExecutionNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read execution: %w", err)
	}

	var record models.ExecutionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
	}

	return &record, nil
}
