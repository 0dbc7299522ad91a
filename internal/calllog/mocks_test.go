package calllog_test

import (
	"context"
	"encoding/json"

	"chatcall/backend/internal/gateway"

	"github.com/stretchr/testify/mock"
)

// MockGateway is a testify mock of gateway.Gateway for failure paths.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Create(ctx context.Context, collection string, doc any) (string, error) {
	args := m.Called(ctx, collection, doc)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	args := m.Called(ctx, collection, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *MockGateway) Query(ctx context.Context, collection string, q gateway.Query) (*gateway.QueryResult, error) {
	args := m.Called(ctx, collection, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.QueryResult), args.Error(1)
}

func (m *MockGateway) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	args := m.Called(ctx, collection, id, patch)
	return args.Error(0)
}

func (m *MockGateway) Delete(ctx context.Context, collection, id string) error {
	args := m.Called(ctx, collection, id)
	return args.Error(0)
}
