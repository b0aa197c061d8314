package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"fraclaims/internal/domain"
	"fraclaims/internal/port"
)

// MockStatusListener is a mock implementation of port.StatusListener.
type MockStatusListener struct {
	mock.Mock
}

func (m *MockStatusListener) Subscribe(ctx context.Context, documentID string) (port.EventStream, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(port.EventStream), args.Error(1)
}

// MockEventStream is a mock implementation of port.EventStream.
type MockEventStream struct {
	mock.Mock
}

func (m *MockEventStream) Next() (domain.ProgressEvent, error) {
	args := m.Called()
	return args.Get(0).(domain.ProgressEvent), args.Error(1)
}

func (m *MockEventStream) Close() error {
	args := m.Called()
	return args.Error(0)
}
