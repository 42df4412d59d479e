package mocks

import (
	"context"

	"github.com/orbenz/movie-booking-system/internal/messaging"
	"github.com/stretchr/testify/mock"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, msg messaging.Outbound) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
