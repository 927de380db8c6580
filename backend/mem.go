// backend/mem.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package backend

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

type memKey struct {
	kind Kind
	id   string
}

// Memory keeps all objects in RAM. It's really only useful for testing
// code built on top of Backend, where we may want to save the trouble of
// writing a bunch of stuff to disk.
type Memory struct {
	mu      sync.RWMutex
	objects map[memKey][]byte
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{objects: make(map[memKey][]byte)}
}

// Duplicate the provided byte slice.
func dupe(src []byte) []byte {
	d := make([]byte, len(src))
	copy(d, src)
	return d
}

func (m *Memory) Put(kind Kind, id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memKey{kind, id}
	if _, ok := m.objects[k]; ok {
		return errors.Wrapf(ErrExists, "%s/%s", kind, id)
	}
	m.objects[k] = dupe(data)
	return nil
}

func (m *Memory) Get(kind Kind, id string, offset, length int64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[memKey{kind, id}]
	if !ok {
		return nil, errors.Wrapf(ErrNotExist, "%s/%s", kind, id)
	}
	if length == 0 && offset == 0 {
		return dupe(b), nil
	}
	if offset+length > int64(len(b)) {
		return nil, errors.Errorf("%s/%s: read of %d bytes at %d beyond object size %d",
			kind, id, length, offset, len(b))
	}
	return dupe(b[offset : offset+length]), nil
}

func (m *Memory) List(kind Kind, fn func(id string) error) error {
	m.mu.RLock()
	var ids []string
	for k := range m.objects {
		if k.kind == kind {
			ids = append(ids, k.id)
		}
	}
	m.mu.RUnlock()

	sort.Strings(ids)
	for _, id := range ids {
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Remove(kind Kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memKey{kind, id}
	if _, ok := m.objects[k]; !ok {
		return errors.Wrapf(ErrNotExist, "%s/%s", kind, id)
	}
	delete(m.objects, k)
	return nil
}

func (m *Memory) Has(kind Kind, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[memKey{kind, id}]
	return ok, nil
}

func (m *Memory) Location() string {
	return "memory"
}

func (m *Memory) Close() error {
	return nil
}

// Corrupt flips one bit of a stored object. Only used by tests exercising
// tamper detection.
func (m *Memory) Corrupt(kind Kind, id string, byteOffset int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[memKey{kind, id}]
	if !ok || byteOffset >= len(b) {
		return false
	}
	b[byteOffset] ^= 0x40
	return true
}
