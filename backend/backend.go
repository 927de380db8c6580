// backend/backend.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

// Package backend provides the flat object namespace the repository engine
// stores everything in. A backend holds opaque files partitioned by Kind;
// it knows nothing about encryption, packing, or object contents.
package backend

import (
	"github.com/pkg/errors"
)

// Kind partitions the backend namespace. Each kind maps to one directory
// of the repository layout.
type Kind uint8

const (
	PackKind Kind = iota + 1
	IndexKind
	SnapshotKind
	KeyKind
	ConfigKind
	LockKind
)

// Dir returns the repository subdirectory holding objects of this kind.
func (k Kind) Dir() string {
	switch k {
	case PackKind:
		return "packs"
	case IndexKind:
		return "index"
	case SnapshotKind:
		return "snapshots"
	case KeyKind:
		return "keys"
	case ConfigKind:
		return ""
	case LockKind:
		return "locks"
	default:
		return "invalid"
	}
}

func (k Kind) String() string {
	switch k {
	case PackKind:
		return "pack"
	case IndexKind:
		return "index"
	case SnapshotKind:
		return "snapshot"
	case KeyKind:
		return "key"
	case ConfigKind:
		return "config"
	case LockKind:
		return "lock"
	default:
		return "invalid"
	}
}

// Sharded reports whether objects of this kind are spread over
// two-hex-digit subdirectories, as pack files are.
func (k Kind) Sharded() bool {
	return k == PackKind
}

var (
	// ErrExists is returned by Put when an object with the same kind and
	// id is already present.
	ErrExists = errors.New("object already exists")

	// ErrNotExist is returned when the requested object is not present.
	ErrNotExist = errors.New("object does not exist")
)

// Backend is the narrow storage contract the engine relies on.
//
// Put must be atomic: a reader either sees the complete object or no
// object at all. Implementations write to a temporary name and rename.
// Put fails with ErrExists if the object is already present; since objects
// are content-addressed and immutable, a caller retrying a Put may treat
// ErrExists as success.
//
// Get with length 0 reads the whole object; otherwise it reads length
// bytes starting at offset. Partial reads must be supported for PackKind
// so single blobs can be fetched without downloading whole packs.
type Backend interface {
	Put(kind Kind, id string, data []byte) error
	Get(kind Kind, id string, offset, length int64) ([]byte, error)
	List(kind Kind, fn func(id string) error) error
	Remove(kind Kind, id string) error

	// Location describes the backend for log messages.
	Location() string

	Close() error
}

// Has reports whether an object exists, in terms of List. Backends may
// provide something cheaper by implementing a Has method with the same
// kind and id parameters.
func Has(be Backend, kind Kind, id string) (bool, error) {
	if hb, ok := be.(interface {
		Has(kind Kind, id string) (bool, error)
	}); ok {
		return hb.Has(kind, id)
	}
	found := false
	err := be.List(kind, func(got string) error {
		if got == id {
			found = true
		}
		return nil
	})
	return found, err
}
