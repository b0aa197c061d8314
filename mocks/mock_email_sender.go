package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"fraclaims/internal/domain"
)

// MockEmailSender is a mock implementation of port.EmailSender.
type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) SendReviewRequest(ctx context.Context, toEmail string, outcome *domain.ProcessingOutcome) error {
	args := m.Called(ctx, toEmail, outcome)
	return args.Error(0)
}
