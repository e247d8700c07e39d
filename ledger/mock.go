package ledger

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/yakrover/agent-registry/interfaces"
)

// MockLedger mocks the interfaces.Ledger interface with testify
// expectations, for unit tests that need scripted ledger behavior.
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) ChainID() uint64 {
	args := m.Called()
	return args.Get(0).(uint64)
}

func (m *MockLedger) OwnerOf(ctx context.Context, id interfaces.EntityID) (interfaces.Account, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(interfaces.Account), args.Error(1)
}

func (m *MockLedger) GetAttribute(ctx context.Context, id interfaces.EntityID, key interfaces.AttributeKey) (interfaces.AttributeValue, error) {
	args := m.Called(ctx, id, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(interfaces.AttributeValue), args.Error(1)
}

func (m *MockLedger) GetContentPointer(ctx context.Context, id interfaces.EntityID) (interfaces.ContentPointer, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(interfaces.ContentPointer), args.Error(1)
}

func (m *MockLedger) ListEntitiesByAttribute(ctx context.Context, key interfaces.AttributeKey, value interfaces.AttributeValue) ([]interfaces.EntityID, error) {
	args := m.Called(ctx, key, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]interfaces.EntityID), args.Error(1)
}

func (m *MockLedger) FindEntityByPointer(ctx context.Context, owner interfaces.Account, pointer interfaces.ContentPointer) (interfaces.EntityID, bool, error) {
	args := m.Called(ctx, owner, pointer)
	return args.Get(0).(interfaces.EntityID), args.Bool(1), args.Error(2)
}

func (m *MockLedger) SubmitMint(ctx context.Context, owner interfaces.Account, pointer interfaces.ContentPointer) (interfaces.PendingWrite, error) {
	args := m.Called(ctx, owner, pointer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(interfaces.PendingWrite), args.Error(1)
}

func (m *MockLedger) SubmitSetAttribute(ctx context.Context, id interfaces.EntityID, key interfaces.AttributeKey, value interfaces.AttributeValue) (interfaces.PendingWrite, error) {
	args := m.Called(ctx, id, key, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(interfaces.PendingWrite), args.Error(1)
}

func (m *MockLedger) SubmitSetContentPointer(ctx context.Context, id interfaces.EntityID, pointer interfaces.ContentPointer) (interfaces.PendingWrite, error) {
	args := m.Called(ctx, id, pointer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(interfaces.PendingWrite), args.Error(1)
}

func (m *MockLedger) Confirm(ctx context.Context, pending interfaces.PendingWrite) (*interfaces.WriteReceipt, error) {
	args := m.Called(ctx, pending)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.WriteReceipt), args.Error(1)
}
