// model/id.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package model

import (
	"bytes"
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"
	"golang.org/x/crypto/blake2b"
)

// IDSize is the number of bytes in the identifiers used for all repository
// objects.
const IDSize = 32

// shortIDLen is the number of hex digits shown for abbreviated ids.
const shortIDLen = 8

// ID is the content address of a repository object: the BLAKE2b-256 hash of
// its plaintext bytes.
type ID [IDSize]byte

// Hash returns the ID for the given plaintext bytes.
func Hash(b []byte) ID {
	return ID(blake2b.Sum256(b))
}

// NewHasher returns a streaming hasher whose final sum is an ID. blake2b
// only fails for invalid key lengths, which can't happen here.
func NewHasher() *Hasher {
	h, _ := blake2b.New256(nil)
	return &Hasher{h: h}
}

// Hasher accumulates bytes and produces the ID of everything written to it.
type Hasher struct {
	h interface {
		Write(p []byte) (int, error)
		Sum(b []byte) []byte
	}
}

func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

func (h *Hasher) Sum() ID {
	var id ID
	copy(id[:], h.h.Sum(nil))
	return id
}

// ParseID decodes a full-length hex id string.
func ParseID(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, errors.Wrapf(err, "invalid id %q", s)
	}
	if len(b) != IDSize {
		return id, errors.Errorf("invalid id %q: want %d hex bytes, got %d",
			s, IDSize, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// String returns the id as a hex-encoded string.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns an abbreviated form of the id for display.
func (id ID) Short() string {
	return id.String()[:shortIDLen]
}

// IsNull reports whether the id is all zero bytes.
func (id ID) IsNull() bool {
	return id == ID{}
}

// Equal reports whether two ids are the same.
func (id ID) Equal(other ID) bool {
	return bytes.Equal(id[:], other[:])
}

// EncodeMsgpack stores ids as raw byte strings so the canonical encodings
// of trees and snapshots stay compact and stable.
func (id ID) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeBytes(id[:])
}

func (id *ID) DecodeMsgpack(dec *msgpack.Decoder) error {
	b, err := dec.DecodeBytes()
	if err != nil {
		return err
	}
	if len(b) != IDSize {
		return errors.Errorf("decoded id has %d bytes, want %d", len(b), IDSize)
	}
	copy(id[:], b)
	return nil
}

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *ID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
