package storage

import (
	"context"
	"fmt"
	"sync"
)

// Store is a key-value persistence capability for serialized collections.
// Load returns nil data and a nil error when the key has never been saved.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Close() error
}

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and configures a Store implementation.
type Options struct {
	Driver      string
	Dir         string // file driver
	SQLitePath  string // sqlite driver
	PostgresDSN string // postgres driver
}

// Open creates the Store named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverFile:
		return NewFileStore(opts.Dir)
	case DriverSQLite:
		return NewSQLiteStore(opts.SQLitePath)
	case DriverPostgres:
		pool, err := NewPool(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(ctx, pool)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", opts.Driver)
	}
}

// MemoryStore keeps data in process memory. Used by tests and as the
// default driver when nothing should survive a restart.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryStore) Save(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := make([]byte, len(data))
	copy(v, data)
	m.data[key] = v
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
