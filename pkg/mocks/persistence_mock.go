package mocks

import (
	"context"

	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockExecutionStore is a mock implementation of persistence.ExecutionStore.
type MockExecutionStore struct {
	mock.Mock
}

var _ persistence.ExecutionStore = (*MockExecutionStore)(nil)

func (m *MockExecutionStore) CreateExecution(ctx context.Context, execution persistence.NewExecution) (*models.ExecutionRecord, error) {
	args := m.Called(ctx, execution)

	record, _ := args.Get(0).(*models.ExecutionRecord)

	return record, args.Error(1)
}

func (m *MockExecutionStore) UpdateExecutionStatus(ctx context.Context, id string, status models.ExecutionStatus, update persistence.Update) error {
	args := m.Called(ctx, id, status, update)

	return args.Error(0)
}

func (m *MockExecutionStore) GetExecution(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	args := m.Called(ctx, id)

	record, _ := args.Get(0).(*models.ExecutionRecord)

	return record, args.Error(1)
}

func (m *MockExecutionStore) ExecutionsByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.ExecutionRecord, error) {
	args := m.Called(ctx, status)

	records, _ := args.Get(0).([]*models.ExecutionRecord)

	return records, args.Error(1)
}

func (m *MockExecutionStore) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockExecutionStore) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockLeadRepository is a mock implementation of persistence.LeadRepository.
type MockLeadRepository struct {
	mock.Mock
}

var _ persistence.LeadRepository = (*MockLeadRepository)(nil)

func (m *MockLeadRepository) LeadByID(ctx context.Context, id string) (*models.Lead, error) {
	args := m.Called(ctx, id)

	lead, _ := args.Get(0).(*models.Lead)

	return lead, args.Error(1)
}

func (m *MockLeadRepository) UpdateLeadAttribute(ctx context.Context, id, field string, value any) error {
	args := m.Called(ctx, id, field, value)

	return args.Error(0)
}
