// Package store provides attachment sources: a directory, a SQL blob table
// and an in-memory map. Every source reports a missing reference as
// pdfreport.ErrAttachmentNotFound and is safe for concurrent use.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/digitorus/pdfreport"
)

// Memory holds attachments in a map keyed by reference.
type Memory struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemory returns an empty in-memory source.
func NewMemory() *Memory {
	return &Memory{files: make(map[string][]byte)}
}

// Put stores a copy of data under ref.
func (m *Memory) Put(ref string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[ref] = append([]byte(nil), data...)
}

// Fetch implements pdfreport.AttachmentSource.
func (m *Memory) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", pdfreport.ErrAttachmentNotFound, ref)
	}
	return append([]byte(nil), data...), nil
}
