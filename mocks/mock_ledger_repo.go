package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"fraclaims/internal/domain"
)

// MockLedgerRepo is a mock implementation of port.LedgerRepository.
type MockLedgerRepo struct {
	mock.Mock
}

func (m *MockLedgerRepo) Create(ctx context.Context, rec *domain.LedgerRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockLedgerRepo) ListByDocument(ctx context.Context, documentID string) ([]domain.LedgerRecord, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LedgerRecord), args.Error(1)
}
