package mocks

import (
	"context"

	"github.com/orbenz/movie-booking-system/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockTicketClient struct {
	mock.Mock
	domain.TicketClient
}

func (m *MockTicketClient) Reserve(
	ctx context.Context,
	order domain.TicketOrder) (*domain.TicketReceipt, error) {

	args := m.Called(ctx, order)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TicketReceipt), args.Error(1)
}

func (m *MockTicketClient) Cancel(
	ctx context.Context,
	cancellation domain.TicketCancellation) (*domain.TicketCancellation, error) {

	args := m.Called(ctx, cancellation)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TicketCancellation), args.Error(1)
}

type MockPaymentProcessor struct {
	mock.Mock
	domain.PaymentProcessor
}

func (m *MockPaymentProcessor) Charge(ctx context.Context, order domain.TicketOrder) (string, error) {
	args := m.Called(ctx, order)
	return args.String(0), args.Error(1)
}

func (m *MockPaymentProcessor) Refund(ctx context.Context, cancellation domain.TicketCancellation) error {
	args := m.Called(ctx, cancellation)
	return args.Error(0)
}
