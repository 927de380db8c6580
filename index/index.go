// index/index.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

// Package index maintains the in-memory map from blob ids to pack
// locations, and the persisted index objects that let the repository start
// up without opening every pack.
package index

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/strata-backup/strata/model"
	"github.com/strata-backup/strata/pack"
)

// Location tells a reader where to fetch a blob.
type Location struct {
	PackID    model.ID
	Type      model.BlobType
	Offset    uint64
	Length    uint32
	RawLength uint32
}

// Internal representation of a blob location, using an integer rather than
// a 32-byte id to identify pack files, for compactness.
type blobLoc struct {
	packIdx   int
	typ       model.BlobType
	offset    uint64
	length    uint32
	rawLength uint32
}

// Index is the master index: read-mostly, guarded by a readers-writer
// lock. Writers are the pack flusher and the garbage collector.
type Index struct {
	mu sync.RWMutex

	byID    map[model.ID]blobLoc
	packs   []model.ID
	packIdx map[model.ID]int

	// entries is the authoritative per-pack manifest copy; byID is the
	// lookup view derived from it.
	entries map[model.ID][]pack.Entry

	// pending holds blob ids handed to a packer but not yet flushed, so
	// two workers can't both decide to store the same blob.
	pending map[model.ID]struct{}

	// files maps persisted index object ids to the packs they cover, and
	// unindexed tracks packs present in memory but not yet covered by a
	// durable index object.
	files     map[model.ID][]model.ID
	unindexed map[model.ID]struct{}
}

// New returns an empty index.
func New() *Index {
	return &Index{
		byID:      make(map[model.ID]blobLoc),
		packIdx:   make(map[model.ID]int),
		entries:   make(map[model.ID][]pack.Entry),
		pending:   make(map[model.ID]struct{}),
		files:     make(map[model.ID][]model.ID),
		unindexed: make(map[model.ID]struct{}),
	}
}

func (ix *Index) packIndex(id model.ID) int {
	i, ok := ix.packIdx[id]
	if !ok {
		i = len(ix.packs)
		ix.packs = append(ix.packs, id)
		ix.packIdx[id] = i
	}
	return i
}

// Has reports whether the blob is known, either flushed or pending.
func (ix *Index) Has(id model.ID) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if _, ok := ix.byID[id]; ok {
		return true
	}
	_, ok := ix.pending[id]
	return ok
}

// Lookup returns the stored location of a flushed blob.
func (ix *Index) Lookup(id model.ID) (Location, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	loc, ok := ix.byID[id]
	if !ok {
		return Location{}, false
	}
	return Location{
		PackID:    ix.packs[loc.packIdx],
		Type:      loc.typ,
		Offset:    loc.offset,
		Length:    loc.length,
		RawLength: loc.rawLength,
	}, true
}

// AddPending atomically claims a blob id for storage. It returns false if
// the blob is already stored or claimed by another worker; the caller must
// then skip storing it. This is the deduplication point for concurrent
// archiver workers.
func (ix *Index) AddPending(id model.ID) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.byID[id]; ok {
		return false
	}
	if _, ok := ix.pending[id]; ok {
		return false
	}
	ix.pending[id] = struct{}{}
	return true
}

// DropPending releases a pending claim without storing the blob (dry runs,
// failed reads).
func (ix *Index) DropPending(id model.ID) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.pending, id)
}

// AddPack records the contents of a flushed pack. Pending claims for its
// blobs are released. durable marks whether an index object covering this
// pack already exists on the backend.
//
// If a blob transiently exists in two packs (repacking, or a crash between
// upload and index write), the newest location wins; RemovePack only drops
// lookups still pointing at the removed pack, so repacked blobs stay
// resolvable throughout a GC.
func (ix *Index) AddPack(packID model.ID, entries []pack.Entry, durable bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	pi := ix.packIndex(packID)
	ix.entries[packID] = append([]pack.Entry(nil), entries...)
	for _, e := range entries {
		delete(ix.pending, e.ID)
		ix.byID[e.ID] = blobLoc{
			packIdx:   pi,
			typ:       e.Type,
			offset:    e.Offset,
			length:    e.Length,
			rawLength: e.RawLength,
		}
	}
	if !durable {
		ix.unindexed[packID] = struct{}{}
	}
}

// Covered reports whether the pack's contents are in the index.
func (ix *Index) Covered(packID model.ID) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.entries[packID]
	return ok
}

// Unindexed returns the packs that have no durable index coverage yet.
func (ix *Index) Unindexed() []model.ID {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	ids := make([]model.ID, 0, len(ix.unindexed))
	for id := range ix.unindexed {
		ids = append(ids, id)
	}
	return ids
}

// MarkIndexed records that the given index object now durably covers the
// given packs.
func (ix *Index) MarkIndexed(fileID model.ID, packs []model.ID) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.files[fileID] = append([]model.ID(nil), packs...)
	for _, p := range packs {
		delete(ix.unindexed, p)
	}
}

// Files returns the mapping from persisted index objects to the packs
// they cover.
func (ix *Index) Files() map[model.ID][]model.ID {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make(map[model.ID][]model.ID, len(ix.files))
	for f, ps := range ix.files {
		out[f] = append([]model.ID(nil), ps...)
	}
	return out
}

// DropFile forgets a persisted index object (after it has been deleted
// from the backend).
func (ix *Index) DropFile(fileID model.ID) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.files, fileID)
}

// Packs returns the ids of all packs currently present in the index.
func (ix *Index) Packs() []model.ID {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	ids := make([]model.ID, 0, len(ix.entries))
	for id := range ix.entries {
		ids = append(ids, id)
	}
	return ids
}

// PackEntries returns the recorded entry list of one pack.
func (ix *Index) PackEntries(packID model.ID) []pack.Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return append([]pack.Entry(nil), ix.entries[packID]...)
}

// RemovePack drops the pack and any lookups still pointing into it. Blobs
// that were repacked into a newer pack already resolve there and are
// unaffected.
func (ix *Index) RemovePack(packID model.ID) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	pi, ok := ix.packIdx[packID]
	if !ok {
		return
	}
	for id, loc := range ix.byID {
		if loc.packIdx == pi {
			delete(ix.byID, id)
		}
	}
	delete(ix.entries, packID)
	delete(ix.unindexed, packID)
}

// Each calls fn for every flushed blob.
func (ix *Index) Each(fn func(id model.ID, loc Location)) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for id, loc := range ix.byID {
		fn(id, Location{
			PackID:    ix.packs[loc.packIdx],
			Type:      loc.typ,
			Offset:    loc.offset,
			Length:    loc.length,
			RawLength: loc.rawLength,
		})
	}
}

// Len returns the number of flushed blobs.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byID)
}

// Validate checks internal consistency; used by tests.
func (ix *Index) Validate() error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for id, loc := range ix.byID {
		if loc.packIdx >= len(ix.packs) {
			return errors.Errorf("blob %s points at pack %d of %d",
				id, loc.packIdx, len(ix.packs))
		}
	}
	return nil
}
