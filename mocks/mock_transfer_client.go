package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"fraclaims/internal/domain"
	"fraclaims/internal/port"
)

// MockTransferClient is a mock implementation of port.TransferClient.
type MockTransferClient struct {
	mock.Mock
}

func (m *MockTransferClient) Submit(ctx context.Context, req domain.ProcessingRequest) (*port.EngineResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.EngineResponse), args.Error(1)
}
