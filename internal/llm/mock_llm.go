package llm

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockGenerator is a mock implementation of Generator using testify/mock.
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string, s Settings) (Response, error) {
	args := m.Called(ctx, prompt, s)
	return args.Get(0).(Response), args.Error(1)
}

func (m *MockGenerator) GenerateStructured(ctx context.Context, prompt string, s Settings, schemaHint string) (StructuredResponse, error) {
	args := m.Called(ctx, prompt, s, schemaHint)
	return args.Get(0).(StructuredResponse), args.Error(1)
}

// MockBackend is a mock implementation of Backend using testify/mock.
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Complete(ctx context.Context, req Request) (Response, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(Response), args.Error(1)
}

func (m *MockBackend) Name() string { return "mock" }
