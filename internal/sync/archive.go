package sync

import (
	"context"
	"errors"
	"sync"
)

// ErrObjectNotFound is returned by ObjectStore implementations that can
// tell a missing key apart from other failures.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore stores generated documents by key.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// DocumentKey is the object key of a certificate's rendered PDF.
func DocumentKey(certificateID string) string {
	return "certificates/" + certificateID + ".pdf"
}

// MemoryObjects is an ObjectStore kept in process memory. Documents do not
// survive a restart.
type MemoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemoryObjects creates an empty in-memory object store.
func NewMemoryObjects() *MemoryObjects {
	return &MemoryObjects{objects: make(map[string][]byte)}
}

func (m *MemoryObjects) Put(_ context.Context, key, _ string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryObjects) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return append([]byte(nil), data...), nil
}
