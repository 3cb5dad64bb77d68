package middleware

import (
	"context"

	"github.com/rootline-io/rootline/internal/storage"
)

// MockKeyStore is a function-field fake for storage.KeyStore. Tests set only
// the funcs they care about; unset funcs behave like an empty store.
type MockKeyStore struct {
	FindByKeyFunc    func(ctx context.Context, key string) (*storage.APIKey, bool)
	AddFunc          func(ctx context.Context, apiKey *storage.APIKey) error
	UpdateFunc       func(ctx context.Context, apiKey *storage.APIKey) error
	DeleteFunc       func(ctx context.Context, keyID string) error
	ListByClientFunc func(ctx context.Context, clientID string) ([]*storage.APIKey, error)
}

var _ storage.KeyStore = (*MockKeyStore)(nil)

func (m *MockKeyStore) FindByKey(ctx context.Context, key string) (*storage.APIKey, bool) {
	if m.FindByKeyFunc == nil {
		return nil, false
	}

	return m.FindByKeyFunc(ctx, key)
}

func (m *MockKeyStore) Add(ctx context.Context, apiKey *storage.APIKey) error {
	if m.AddFunc == nil {
		return nil
	}

	return m.AddFunc(ctx, apiKey)
}

func (m *MockKeyStore) Update(ctx context.Context, apiKey *storage.APIKey) error {
	if m.UpdateFunc == nil {
		return nil
	}

	return m.UpdateFunc(ctx, apiKey)
}

func (m *MockKeyStore) Delete(ctx context.Context, keyID string) error {
	if m.DeleteFunc == nil {
		return nil
	}

	return m.DeleteFunc(ctx, keyID)
}

func (m *MockKeyStore) ListByClient(ctx context.Context, clientID string) ([]*storage.APIKey, error) {
	if m.ListByClientFunc == nil {
		return []*storage.APIKey{}, nil
	}

	return m.ListByClientFunc(ctx, clientID)
}
