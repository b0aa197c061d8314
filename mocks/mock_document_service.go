package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"fraclaims/internal/domain"
	"fraclaims/internal/service"
)

// MockDocumentService is a mock implementation of service.DocumentService.
type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) Upload(ctx context.Context, input service.UploadDocumentInput) (*domain.ClaimDocument, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ClaimDocument), args.Error(1)
}

func (m *MockDocumentService) GetByID(ctx context.Context, docID uuid.UUID) (*domain.ClaimDocument, error) {
	args := m.Called(ctx, docID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ClaimDocument), args.Error(1)
}

func (m *MockDocumentService) Process(ctx context.Context, docID uuid.UUID) (*domain.ProcessingOutcome, error) {
	args := m.Called(ctx, docID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessingOutcome), args.Error(1)
}

func (m *MockDocumentService) Enqueue(ctx context.Context, docID uuid.UUID) (*domain.ClaimDocument, error) {
	args := m.Called(ctx, docID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ClaimDocument), args.Error(1)
}

func (m *MockDocumentService) ListLedger(ctx context.Context, docID uuid.UUID) ([]domain.LedgerRecord, error) {
	args := m.Called(ctx, docID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LedgerRecord), args.Error(1)
}

func (m *MockDocumentService) VerifyLedger(ctx context.Context, docID uuid.UUID) ([]service.LedgerCheck, error) {
	args := m.Called(ctx, docID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.LedgerCheck), args.Error(1)
}

func (m *MockDocumentService) ProcessDocument(ctx context.Context, doc *domain.ClaimDocument) (*domain.ProcessingOutcome, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessingOutcome), args.Error(1)
}

// MockProcessor is a mock implementation of service.Processor.
type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) Process(ctx context.Context, req domain.ProcessingRequest) (*domain.ProcessingOutcome, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessingOutcome), args.Error(1)
}
