package guestws

import (
	"context"
	"sync/atomic"

	"github.com/stretchr/testify/mock"
)

type mockBroker struct {
	mock.Mock

	calls atomic.Int32
}

func (m *mockBroker) Connect(ctx context.Context, identity string) (ConnectionDescriptor, error) {
	m.calls.Add(1)
	args := m.Called(ctx, identity)
	return args.Get(0).(ConnectionDescriptor), args.Error(1)
}

func (m *mockBroker) Calls() int {
	return int(m.calls.Load())
}
