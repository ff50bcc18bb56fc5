package objectstore

import (
	"context"
	"io"
)

// FallbackStore tries a primary backend first and falls through to a
// secondary on ErrNotFound, writing through to the primary only: try
// each store in turn, stop at the first non-NotFound result. Useful
// for fronting S3 with a local filesystem cache.
type FallbackStore struct {
	primary   Store
	secondary Store
}

func NewFallbackStore(primary, secondary Store) *FallbackStore {
	return &FallbackStore{primary: primary, secondary: secondary}
}

func (c *FallbackStore) Exists(ctx context.Context, path string) (bool, error) {
	ok, err := c.primary.Exists(ctx, path)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	return c.secondary.Exists(ctx, path)
}

func (c *FallbackStore) GetContent(ctx context.Context, path string) ([]byte, error) {
	data, err := c.primary.GetContent(ctx, path)
	if err == nil {
		return data, nil
	}
	if err != ErrNotFound {
		return nil, err
	}
	return c.secondary.GetContent(ctx, path)
}

func (c *FallbackStore) PutContent(ctx context.Context, path string, data []byte) error {
	return c.primary.PutContent(ctx, path, data)
}

func (c *FallbackStore) StreamRead(ctx context.Context, path string) (io.ReadCloser, error) {
	r, err := c.primary.StreamRead(ctx, path)
	if err == nil {
		return r, nil
	}
	if err != ErrNotFound {
		return nil, err
	}
	return c.secondary.StreamRead(ctx, path)
}

func (c *FallbackStore) StreamWrite(ctx context.Context, path string, r io.Reader) error {
	return c.primary.StreamWrite(ctx, path, r)
}

func (c *FallbackStore) GetSize(ctx context.Context, path string) (int64, error) {
	size, err := c.primary.GetSize(ctx, path)
	if err == nil {
		return size, nil
	}
	if err != ErrNotFound {
		return 0, err
	}
	return c.secondary.GetSize(ctx, path)
}

func (c *FallbackStore) Remove(ctx context.Context, path string) error {
	if err := c.primary.Remove(ctx, path); err != nil {
		return err
	}
	return c.secondary.Remove(ctx, path)
}

func (c *FallbackStore) IsPrivate(ctx context.Context, namespace, name string) (bool, error) {
	return c.primary.IsPrivate(ctx, namespace, name)
}
