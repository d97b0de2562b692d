package state

import "context"

// Store is a small durable kv surface; the sqlite implementation backs it
// in production and tests use :memory:.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}
