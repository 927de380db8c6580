// model/blob.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package model

import "fmt"

// BlobType identifies what kind of object a blob holds. The byte value is
// part of the associated data bound into each blob's AEAD ciphertext, so
// these values must never be renumbered.
type BlobType uint8

const (
	DataBlob     BlobType = 1
	TreeBlob     BlobType = 2
	SnapshotBlob BlobType = 3
	IndexBlob    BlobType = 4
	ConfigBlob   BlobType = 5
	KeyBlob      BlobType = 6
)

func (t BlobType) String() string {
	switch t {
	case DataBlob:
		return "data"
	case TreeBlob:
		return "tree"
	case SnapshotBlob:
		return "snapshot"
	case IndexBlob:
		return "index"
	case ConfigBlob:
		return "config"
	case KeyBlob:
		return "key"
	default:
		return fmt.Sprintf("blobtype(%d)", uint8(t))
	}
}

// ParseBlobType maps a user-facing name to a BlobType.
func ParseBlobType(s string) (BlobType, bool) {
	switch s {
	case "data":
		return DataBlob, true
	case "tree":
		return TreeBlob, true
	case "snapshot":
		return SnapshotBlob, true
	case "index":
		return IndexBlob, true
	case "config":
		return ConfigBlob, true
	case "key":
		return KeyBlob, true
	}
	return 0, false
}
