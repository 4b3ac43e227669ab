package persistence

import (
	"context"
	"sync"
)

// MemoryProvider keeps values in process memory. State is lost on exit, so it
// suits tests and short-lived processes that re-activate on start.
type MemoryProvider struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{values: make(map[string]string)}
}

func (p *MemoryProvider) Store(_ context.Context, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.values == nil {
		return ErrClosed
	}
	p.values[key] = value
	return nil
}

func (p *MemoryProvider) Read(_ context.Context, key string) (string, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.values == nil {
		return "", false, ErrClosed
	}
	v, ok := p.values[key]
	return v, ok, nil
}

// Len returns the number of stored keys.
func (p *MemoryProvider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.values)
}

func (p *MemoryProvider) Close(_ context.Context) error {
	p.mu.Lock()
	p.values = nil
	p.mu.Unlock()
	return nil
}
