package tracking

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockBackend is a mock implementation of Backend using testify/mock.
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Name() string { return "mock" }

func (m *MockBackend) StartRun(ctx context.Context, p Params) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

func (m *MockBackend) LogRun(ctx context.Context, runID string, p Params, o Outcome) error {
	args := m.Called(ctx, runID, p, o)
	return args.Error(0)
}

func (m *MockBackend) EndRun(ctx context.Context, runID string, status Status) error {
	args := m.Called(ctx, runID, status)
	return args.Error(0)
}
