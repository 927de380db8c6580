// index/file.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package index

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"

	"github.com/strata-backup/strata/model"
	"github.com/strata-backup/strata/pack"
)

// File is the persisted form of index coverage: one or more packs'
// manifests, bundled so startup doesn't have to open every pack. The union
// of all index objects in a repository must cover every pack.
type File struct {
	Packs []PackIndex `msgpack:"packs"`
}

// PackIndex is one pack's manifest as recorded in an index object.
type PackIndex struct {
	ID    model.ID     `msgpack:"id"`
	Blobs []pack.Entry `msgpack:"blobs"`
}

// Encode serialises the index file for storage.
func (f *File) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(f); err != nil {
		return nil, errors.Wrap(err, "encoding index file")
	}
	return buf.Bytes(), nil
}

// DecodeFile parses a stored index object.
func DecodeFile(b []byte) (*File, error) {
	var f File
	if err := msgpack.NewDecoder(bytes.NewReader(b)).Decode(&f); err != nil {
		return nil, errors.Wrap(err, "decoding index file")
	}
	return &f, nil
}

// PackIDs lists the packs this file covers.
func (f *File) PackIDs() []model.ID {
	ids := make([]model.ID, len(f.Packs))
	for i, p := range f.Packs {
		ids[i] = p.ID
	}
	return ids
}
