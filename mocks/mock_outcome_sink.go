package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"fraclaims/internal/domain"
)

// MockOutcomeSink is a mock implementation of port.OutcomeSink.
type MockOutcomeSink struct {
	mock.Mock
}

func (m *MockOutcomeSink) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockOutcomeSink) Deliver(ctx context.Context, outcome *domain.ProcessingOutcome) error {
	args := m.Called(ctx, outcome)
	return args.Error(0)
}
