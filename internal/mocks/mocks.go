// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/relock/api/schemas"
)

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) GenerateResponse(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// -- Suggestion Oracle Mock --

// MockSuggestionOracle mocks the schemas.SuggestionOracle interface.
type MockSuggestionOracle struct {
	mock.Mock
}

func (m *MockSuggestionOracle) Suggest(ctx context.Context, req schemas.SuggestionRequest) (schemas.Locator, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(schemas.Locator), args.Error(1)
}

// -- Memory Store Mock --

// MockMemoryStore mocks the schemas.MemoryStore interface.
type MockMemoryStore struct {
	mock.Mock
}

func (m *MockMemoryStore) SaveSnapshot(ctx context.Context, sessionID string, entries []schemas.MemoryEntry) error {
	args := m.Called(ctx, sessionID, entries)
	return args.Error(0)
}

func (m *MockMemoryStore) LoadSnapshot(ctx context.Context, sessionID string) ([]schemas.MemoryEntry, error) {
	args := m.Called(ctx, sessionID)
	if entries := args.Get(0); entries != nil {
		return entries.([]schemas.MemoryEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

// -- Element Handle Mock --

// MockElementHandle mocks the schemas.ElementHandle interface. Tests use it
// to simulate stale handles whose accessors fail mid-extraction.
type MockElementHandle struct {
	mock.Mock
}

func (m *MockElementHandle) TagName(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockElementHandle) Text(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockElementHandle) Attributes(ctx context.Context) (map[string]string, error) {
	args := m.Called(ctx)
	if attrs := args.Get(0); attrs != nil {
		return attrs.(map[string]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockElementHandle) BoundingBox(ctx context.Context) (schemas.Point, schemas.Size, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.Point), args.Get(1).(schemas.Size), args.Error(2)
}

func (m *MockElementHandle) Parent(ctx context.Context) (schemas.ElementHandle, error) {
	args := m.Called(ctx)
	if parent := args.Get(0); parent != nil {
		return parent.(schemas.ElementHandle), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockElementHandle) SiblingIndex(ctx context.Context) (int, int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Int(1), args.Error(2)
}

func (m *MockElementHandle) AssociatedLabel(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
