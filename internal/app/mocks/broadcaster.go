package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"lantern-quiz-service/internal/domain"
)

// MockBroadcaster is a mock implementation of app.Broadcaster
type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) Announce(ctx context.Context, event domain.WinnerEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
