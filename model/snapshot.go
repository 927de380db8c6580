// model/snapshot.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package model

import (
	"bytes"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"
)

// SnapshotVersion is the format version written into new snapshot records.
const SnapshotVersion = 1

// Snapshot is the root record of one backup run. It references the root
// tree and, optionally, the snapshot it was made incrementally against.
type Snapshot struct {
	Version     uint32
	Time        time.Time
	Hostname    string
	Paths       []string
	Tags        []string
	Description string
	Parent      *ID
	Tree        ID

	// id caches the snapshot's content address once computed. Not part of
	// the encoding; the id is derived from the encoded bytes.
	id ID
}

// snapshotWire is the canonical encoding of a snapshot: fields in fixed
// order, time rendered as RFC 3339 UTC so the bytes do not depend on the
// writer's timezone.
type snapshotWire struct {
	Version     uint32   `msgpack:"version"`
	Time        string   `msgpack:"time"`
	Hostname    string   `msgpack:"hostname"`
	Paths       []string `msgpack:"paths"`
	Tags        []string `msgpack:"tags"`
	Description string   `msgpack:"description"`
	Parent      *ID      `msgpack:"parent"`
	Tree        ID       `msgpack:"tree"`
}

// Encode produces the canonical encoding: paths and tags sorted, time in
// RFC 3339 UTC with nanoseconds.
func (s *Snapshot) Encode() ([]byte, error) {
	w := snapshotWire{
		Version:     s.Version,
		Time:        s.Time.UTC().Format(time.RFC3339Nano),
		Hostname:    s.Hostname,
		Paths:       append([]string(nil), s.Paths...),
		Tags:        append([]string(nil), s.Tags...),
		Description: s.Description,
		Parent:      s.Parent,
		Tree:        s.Tree,
	}
	sort.Strings(w.Paths)
	sort.Strings(w.Tags)

	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(&w); err != nil {
		return nil, errors.Wrap(err, "encoding snapshot")
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot parses an encoded snapshot and records its id, which is
// the content address of the encoded bytes.
func DecodeSnapshot(b []byte) (*Snapshot, error) {
	var w snapshotWire
	if err := msgpack.NewDecoder(bytes.NewReader(b)).Decode(&w); err != nil {
		return nil, errors.Wrap(err, "decoding snapshot")
	}
	t, err := time.Parse(time.RFC3339Nano, w.Time)
	if err != nil {
		return nil, errors.Wrap(err, "decoding snapshot time")
	}
	return &Snapshot{
		Version:     w.Version,
		Time:        t,
		Hostname:    w.Hostname,
		Paths:       w.Paths,
		Tags:        w.Tags,
		Description: w.Description,
		Parent:      w.Parent,
		Tree:        w.Tree,
		id:          Hash(b),
	}, nil
}

// ID returns the snapshot's content address, computing it if needed.
func (s *Snapshot) ID() ID {
	if s.id.IsNull() {
		b, err := s.Encode()
		if err != nil {
			// Encode only fails on msgpack internal errors, which can't
			// happen for this fixed shape.
			panic(err)
		}
		s.id = Hash(b)
	}
	return s.id
}

// SetID records the id a snapshot was loaded under.
func (s *Snapshot) SetID(id ID) { s.id = id }

// HasTag reports whether the snapshot carries the given tag.
func (s *Snapshot) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the snapshot carries at least one of the tags.
func (s *Snapshot) HasAnyTag(tags []string) bool {
	for _, t := range tags {
		if s.HasTag(t) {
			return true
		}
	}
	return false
}
