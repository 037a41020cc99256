package orchestrator

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockService is a mock implementation of Service using testify/mock.
type MockService struct {
	mock.Mock
}

func (m *MockService) Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(GenerationResult), args.Error(1)
}

func (m *MockService) Reject(ctx context.Context, req GenerationRequest, cause error) error {
	args := m.Called(ctx, req, cause)
	return args.Error(0)
}
