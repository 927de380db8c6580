// pack/pack.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

// Package pack implements the on-disk pack file format. A pack groups many
// encrypted blobs into one backend object:
//
//	[ blob_1 ][ blob_2 ] ... [ blob_N ][ encrypted manifest ][ footer ]
//
// Each blob is nonce || ciphertext || tag. The manifest lists every blob's
// id, type, offset and lengths, and is itself encrypted, bound to the pack
// id. The fixed-size footer carries the manifest's position:
//
//	magic(4) || version(1) || manifest_offset(u64 LE) || manifest_length(u64 LE)
//
// The pack id is the content hash of the blob section, so a pack's
// integrity can be re-checked from its name alone.
package pack

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"

	"github.com/strata-backup/strata/crypto"
	"github.com/strata-backup/strata/model"
)

var PackMagic = [4]byte{'S', 'P', 'k', '1'}

const (
	FormatVersion = 1

	// FooterSize is the fixed length of the trailing footer.
	FooterSize = 4 + 1 + 8 + 8

	// DefaultMaxSize is the soft cap on the blob section of a pack. A
	// single blob larger than this still goes into a pack of its own.
	DefaultMaxSize = 16 * 1024 * 1024
)

var (
	ErrBadMagic   = errors.New("pack has incorrect magic number")
	ErrBadVersion = errors.New("pack has unsupported format version")
	ErrTruncated  = errors.New("pack is shorter than its footer claims")
)

// Entry describes one blob inside a pack.
type Entry struct {
	ID        model.ID       `msgpack:"id"`
	Type      model.BlobType `msgpack:"type"`
	Offset    uint64         `msgpack:"offset"`
	Length    uint32         `msgpack:"length"`
	RawLength uint32         `msgpack:"raw_length"`
}

// BlobAD is the associated data bound into a blob's ciphertext: its type
// byte and content hash. Decrypting a blob under the wrong id or type
// fails authentication.
func BlobAD(t model.BlobType, id model.ID) []byte {
	ad := make([]byte, 1+model.IDSize)
	ad[0] = byte(t)
	copy(ad[1:], id[:])
	return ad
}

// ManifestAD binds a pack's manifest ciphertext to the pack's storage name.
func ManifestAD(packID model.ID) []byte {
	ad := make([]byte, 1+model.IDSize)
	ad[0] = 'M'
	copy(ad[1:], packID[:])
	return ad
}

///////////////////////////////////////////////////////////////////////////
// Writer

// Writer accumulates encrypted blobs in memory until the pack is finished.
// A Writer exclusively owns its buffer; callers serialize access.
type Writer struct {
	key     *crypto.Key
	buf     bytes.Buffer
	entries []Entry
	hasher  *model.Hasher
}

// NewWriter returns an empty pack writer encrypting with the given key.
func NewWriter(key *crypto.Key) *Writer {
	return &Writer{
		key:    key,
		hasher: model.NewHasher(),
	}
}

// Add seals one plaintext blob into the pack. Returns the encrypted length
// added to the pack.
func (w *Writer) Add(t model.BlobType, id model.ID, plaintext []byte) (int, error) {
	sealed, err := w.key.Seal(plaintext, BlobAD(t, id))
	if err != nil {
		return 0, errors.Wrapf(err, "sealing blob %s", id)
	}
	w.entries = append(w.entries, Entry{
		ID:        id,
		Type:      t,
		Offset:    uint64(w.buf.Len()),
		Length:    uint32(len(sealed)),
		RawLength: uint32(len(plaintext)),
	})
	w.hasher.Write(sealed)
	w.buf.Write(sealed)
	return len(sealed), nil
}

// Size returns the current size of the blob section.
func (w *Writer) Size() int {
	return w.buf.Len()
}

// Count returns the number of blobs added so far.
func (w *Writer) Count() int {
	return len(w.entries)
}

// Entries returns the recorded blob descriptors.
func (w *Writer) Entries() []Entry {
	return w.entries
}

// Finish appends the encrypted manifest and the footer and returns the
// pack id (the hash of the blob section) together with the complete pack
// bytes. The writer must not be reused afterwards.
func (w *Writer) Finish() (model.ID, []byte, error) {
	id := w.hasher.Sum()

	var manifest bytes.Buffer
	if err := msgpack.NewEncoder(&manifest).Encode(w.entries); err != nil {
		return model.ID{}, nil, errors.Wrap(err, "encoding pack manifest")
	}
	sealed, err := w.key.Seal(manifest.Bytes(), ManifestAD(id))
	if err != nil {
		return model.ID{}, nil, errors.Wrap(err, "sealing pack manifest")
	}

	manifestOffset := uint64(w.buf.Len())
	w.buf.Write(sealed)

	var footer [FooterSize]byte
	copy(footer[:4], PackMagic[:])
	footer[4] = FormatVersion
	binary.LittleEndian.PutUint64(footer[5:13], manifestOffset)
	binary.LittleEndian.PutUint64(footer[13:21], uint64(len(sealed)))
	w.buf.Write(footer[:])

	return id, w.buf.Bytes(), nil
}

///////////////////////////////////////////////////////////////////////////
// Reader

// ParseManifest decodes the manifest from a complete pack's bytes.
func ParseManifest(data []byte, packID model.ID, key *crypto.Key) ([]Entry, error) {
	if len(data) < FooterSize {
		return nil, errors.Wrapf(ErrTruncated, "pack %s is %d bytes", packID, len(data))
	}
	footer := data[len(data)-FooterSize:]
	if !bytes.Equal(footer[:4], PackMagic[:]) {
		return nil, errors.Wrapf(ErrBadMagic, "pack %s", packID)
	}
	if footer[4] != FormatVersion {
		return nil, errors.Wrapf(ErrBadVersion, "pack %s has version %d", packID, footer[4])
	}
	offset := binary.LittleEndian.Uint64(footer[5:13])
	length := binary.LittleEndian.Uint64(footer[13:21])
	if offset+length > uint64(len(data)-FooterSize) {
		return nil, errors.Wrapf(ErrTruncated,
			"pack %s: manifest at %d+%d beyond pack size %d",
			packID, offset, length, len(data))
	}

	plaintext, err := key.Open(data[offset:offset+length], ManifestAD(packID))
	if err != nil {
		return nil, errors.Wrapf(err, "opening manifest of pack %s", packID)
	}

	var entries []Entry
	if err := msgpack.NewDecoder(bytes.NewReader(plaintext)).Decode(&entries); err != nil {
		return nil, errors.Wrapf(err, "decoding manifest of pack %s", packID)
	}
	return entries, nil
}

// OpenBlob decrypts one blob fetched from a pack and verifies that the
// plaintext hashes to the id it was requested under.
func OpenBlob(sealed []byte, t model.BlobType, id model.ID, key *crypto.Key) ([]byte, error) {
	plaintext, err := key.Open(sealed, BlobAD(t, id))
	if err != nil {
		return nil, errors.Wrapf(err, "opening blob %s", id)
	}
	if model.Hash(plaintext) != id {
		return nil, errors.Errorf("blob %s: decrypted plaintext hash mismatch", id)
	}
	return plaintext, nil
}

// VerifyBlobSection re-hashes a pack's blob section and compares it to the
// pack id. Used by deep verification.
func VerifyBlobSection(data []byte, packID model.ID) error {
	if len(data) < FooterSize {
		return errors.Wrapf(ErrTruncated, "pack %s is %d bytes", packID, len(data))
	}
	footer := data[len(data)-FooterSize:]
	if !bytes.Equal(footer[:4], PackMagic[:]) {
		return errors.Wrapf(ErrBadMagic, "pack %s", packID)
	}
	offset := binary.LittleEndian.Uint64(footer[5:13])
	if offset > uint64(len(data)-FooterSize) {
		return errors.Wrapf(ErrTruncated, "pack %s", packID)
	}
	if model.Hash(data[:offset]) != packID {
		return errors.Errorf("pack %s: blob section hash mismatch", packID)
	}
	return nil
}
