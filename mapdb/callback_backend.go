package mapdb

import (
	"context"

	"go.mapshift.dev/core/mapblock"
)

// CallbackBackend implements Backend for testing with customizable behavior.
// It allows tests to provide callback functions for each Backend method.
type CallbackBackend struct {
	ProviderFunc  func() string
	ListFunc      func(ctx context.Context) ([]mapblock.Pos, error)
	LoadFunc      func(ctx context.Context, pos mapblock.Pos) ([]byte, error)
	SaveFunc      func(ctx context.Context, pos mapblock.Pos, data []byte) error
	BeginSaveFunc func(ctx context.Context) error
	EndSaveFunc   func(ctx context.Context) error
	CloseFunc     func() error
}

// Provider returns the provider name, or "callback" if ProviderFunc is nil.
func (c *CallbackBackend) Provider() string {
	if c.ProviderFunc != nil {
		return c.ProviderFunc()
	}
	return "callback"
}

// ListAllLoadableBlocks calls ListFunc if set, otherwise returns nil.
func (c *CallbackBackend) ListAllLoadableBlocks(ctx context.Context) ([]mapblock.Pos, error) {
	if c.ListFunc != nil {
		return c.ListFunc(ctx)
	}
	return nil, nil
}

// LoadBlock calls LoadFunc if set, otherwise returns nil.
func (c *CallbackBackend) LoadBlock(ctx context.Context, pos mapblock.Pos) ([]byte, error) {
	if c.LoadFunc != nil {
		return c.LoadFunc(ctx, pos)
	}
	return nil, nil
}

// SaveBlock calls SaveFunc if set, otherwise returns nil.
func (c *CallbackBackend) SaveBlock(ctx context.Context, pos mapblock.Pos, data []byte) error {
	if c.SaveFunc != nil {
		return c.SaveFunc(ctx, pos, data)
	}
	return nil
}

// BeginSave calls BeginSaveFunc if set, otherwise returns nil.
func (c *CallbackBackend) BeginSave(ctx context.Context) error {
	if c.BeginSaveFunc != nil {
		return c.BeginSaveFunc(ctx)
	}
	return nil
}

// EndSave calls EndSaveFunc if set, otherwise returns nil.
func (c *CallbackBackend) EndSave(ctx context.Context) error {
	if c.EndSaveFunc != nil {
		return c.EndSaveFunc(ctx)
	}
	return nil
}

// Close calls CloseFunc if set, otherwise returns nil.
func (c *CallbackBackend) Close() error {
	if c.CloseFunc != nil {
		return c.CloseFunc()
	}
	return nil
}
