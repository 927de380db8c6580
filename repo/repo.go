// repo/repo.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

// Package repo ties the backend, crypto, pack, and index layers together
// into the typed object store the archiver, restorer, and garbage
// collector are built on.
package repo

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/strata-backup/strata/backend"
	"github.com/strata-backup/strata/chunker"
	"github.com/strata-backup/strata/crypto"
	"github.com/strata-backup/strata/index"
	"github.com/strata-backup/strata/model"
	"github.com/strata-backup/strata/pack"
	"github.com/strata-backup/strata/util"
)

const (
	// MaxPackSize is the soft cap on a pack's blob section; the current
	// pack is flushed once it grows past this.
	MaxPackSize = pack.DefaultMaxSize

	// indexFlushSizeHint is roughly how many pack bytes may accumulate
	// before an index object covering them is written. Flushing
	// periodically commits finished packs early, so an interrupted
	// snapshot doesn't lose them. Each flush writes its own index object;
	// the garbage collector rewrites only index objects whose packs it
	// removes and does not merge small ones.
	indexFlushSizeHint = 4 * 1024 * 1024 * 1024
)

// Repository is an opened repository: the process-lifetime owner of the
// master key, the in-memory index, and the in-progress pack.
type Repository struct {
	be  backend.Backend
	key *crypto.Key
	cfg Config
	idx *index.Index

	gear *chunker.Gear

	// packMu guards the in-progress pack writer and the flush bookkeeping.
	packMu         sync.Mutex
	packer         *pack.Writer
	unindexedBytes uint64

	lockID string
}

// Init creates a new repository at the backend: a fresh master key wrapped
// under the passphrase, and the sealed config.
func Init(be backend.Backend, password string) (*Repository, error) {
	ok, err := backend.Has(be, backend.ConfigKind, "config")
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, ErrRepoExists
	}

	master, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}

	kf, err := crypto.NewKeyFile(password, master)
	if err != nil {
		return nil, err
	}
	kfb, err := kf.Marshal()
	if err != nil {
		return nil, err
	}
	keyID := model.Hash(kfb)
	if err := be.Put(backend.KeyKind, keyID.String(), kfb); err != nil {
		return nil, errors.Wrap(err, "writing key object")
	}

	cfg, err := NewConfig()
	if err != nil {
		return nil, err
	}
	cfgPlain, err := cfg.encode()
	if err != nil {
		return nil, err
	}
	sealed, err := master.Seal(cfgPlain, configAD)
	if err != nil {
		return nil, err
	}
	if err := be.Put(backend.ConfigKind, "config", sealed); err != nil {
		return nil, errors.Wrap(err, "writing config")
	}

	log.Infof("created repository %s at %s", cfg.ID, be.Location())
	return &Repository{
		be:   be,
		key:  master,
		cfg:  cfg,
		idx:  index.New(),
		gear: chunker.NewGear(cfg.ChunkerSeed),
	}, nil
}

// Open unlocks an existing repository and loads its index. Unlocking
// means trying the passphrase against every key object until one unwraps.
func Open(be backend.Backend, password string) (*Repository, error) {
	sealedCfg, err := be.Get(backend.ConfigKind, "config", 0, 0)
	if err != nil {
		if errors.Is(err, backend.ErrNotExist) {
			return nil, errors.Wrapf(ErrNoRepository, "at %s", be.Location())
		}
		return nil, err
	}

	master, err := unlock(be, password)
	if err != nil {
		return nil, err
	}

	cfgPlain, err := master.Open(sealedCfg, configAD)
	if err != nil {
		return nil, corruptf(model.ID{}, "config failed authentication")
	}
	cfg, err := decodeConfig(cfgPlain)
	if err != nil {
		return nil, err
	}

	r := &Repository{
		be:   be,
		key:  master,
		cfg:  cfg,
		idx:  index.New(),
		gear: chunker.NewGear(cfg.ChunkerSeed),
	}
	if err := r.loadIndex(); err != nil {
		return nil, err
	}
	log.Debugf("opened repository %s: %d blobs indexed", cfg.ID, r.idx.Len())
	return r, nil
}

func unlock(be backend.Backend, password string) (*crypto.Key, error) {
	var master *crypto.Key
	err := be.List(backend.KeyKind, func(id string) error {
		if master != nil {
			return nil
		}
		b, err := be.Get(backend.KeyKind, id, 0, 0)
		if err != nil {
			return err
		}
		kf, err := crypto.UnmarshalKeyFile(b)
		if err != nil {
			log.Warnf("skipping unparsable key object %s: %v", id, err)
			return nil
		}
		key, err := kf.Unwrap(password)
		if err != nil {
			// Wrong passphrase for this key object; maybe another one
			// matches.
			return nil
		}
		master = key
		return nil
	})
	if err != nil {
		return nil, err
	}
	if master == nil {
		return nil, ErrBadPassword
	}
	return master, nil
}

// loadIndex reads all index objects, then lists packs and rebuilds
// coverage for any pack no index mentions (e.g. after a crash between a
// pack upload and its index write). Rebuilt coverage is persisted
// immediately.
func (r *Repository) loadIndex() error {
	err := r.be.List(backend.IndexKind, func(name string) error {
		fileID, err := model.ParseID(name)
		if err != nil {
			log.Warnf("ignoring index object with invalid name %q", name)
			return nil
		}
		plain, err := r.loadSealed(backend.IndexKind, model.IndexBlob, fileID)
		if err != nil {
			return err
		}
		f, err := index.DecodeFile(plain)
		if err != nil {
			return corruptf(fileID, "undecodable index object")
		}
		for _, p := range f.Packs {
			r.idx.AddPack(p.ID, p.Blobs, true)
		}
		r.idx.MarkIndexed(fileID, f.PackIDs())
		return nil
	})
	if err != nil {
		return err
	}

	// Diff listed packs against index coverage.
	var uncovered []model.ID
	err = r.be.List(backend.PackKind, func(name string) error {
		packID, err := model.ParseID(name)
		if err != nil {
			log.Warnf("ignoring pack with invalid name %q", name)
			return nil
		}
		if !r.idx.Covered(packID) {
			uncovered = append(uncovered, packID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(uncovered) == 0 {
		return nil
	}

	log.Infof("rebuilding index coverage for %d packs", len(uncovered))
	for _, packID := range uncovered {
		data, err := r.be.Get(backend.PackKind, packID.String(), 0, 0)
		if err != nil {
			return errors.Wrapf(err, "reading pack %s", packID)
		}
		entries, err := pack.ParseManifest(data, packID, r.key)
		if err != nil {
			if errors.Is(err, crypto.ErrAuthFailed) {
				return corruptf(packID, "pack manifest failed authentication")
			}
			return err
		}
		r.idx.AddPack(packID, entries, false)
	}
	return r.flushIndexFiles()
}

// Config returns the repository parameters.
func (r *Repository) Config() Config { return r.cfg }

// Gear returns the chunker gear table for this repository.
func (r *Repository) Gear() *chunker.Gear { return r.gear }

// Index exposes the master index (read-mostly; GC also mutates it).
func (r *Repository) Index() *index.Index { return r.idx }

// Backend exposes the underlying storage.
func (r *Repository) Backend() backend.Backend { return r.be }

// Close releases the lock if held and closes the backend.
func (r *Repository) Close() error {
	if err := r.Unlock(); err != nil {
		log.Warnf("releasing lock: %v", err)
	}
	return r.be.Close()
}

///////////////////////////////////////////////////////////////////////////
// Typed blob store

// SaveBlob stores a plaintext blob of the given type, deduplicating
// against everything already indexed or in flight. Returns the blob's id
// and whether this call actually stored it.
func (r *Repository) SaveBlob(t model.BlobType, plaintext []byte) (model.ID, bool, error) {
	id := model.Hash(plaintext)
	if !r.idx.AddPending(id) {
		return id, false, nil
	}
	if err := r.packBlob(t, id, plaintext); err != nil {
		r.idx.DropPending(id)
		return id, false, err
	}
	return id, true, nil
}

// RepackBlob stores a blob even though the index already knows it; used by
// the garbage collector to move live blobs out of mostly-dead packs. The
// index resolves the blob to its newest location afterwards.
func (r *Repository) RepackBlob(t model.BlobType, plaintext []byte) (model.ID, error) {
	id := model.Hash(plaintext)
	return id, r.packBlob(t, id, plaintext)
}

func (r *Repository) packBlob(t model.BlobType, id model.ID, plaintext []byte) error {
	r.packMu.Lock()
	defer r.packMu.Unlock()

	if r.packer == nil {
		r.packer = pack.NewWriter(r.key)
	}
	if _, err := r.packer.Add(t, id, plaintext); err != nil {
		return err
	}
	if r.packer.Size() >= MaxPackSize {
		return r.flushPackLocked()
	}
	return nil
}

// flushPackLocked uploads the in-progress pack. Called with packMu held.
func (r *Repository) flushPackLocked() error {
	if r.packer == nil || r.packer.Count() == 0 {
		return nil
	}
	packID, data, err := r.packer.Finish()
	if err != nil {
		return err
	}
	entries := r.packer.Entries()
	r.packer = nil

	if err := r.be.Put(backend.PackKind, packID.String(), data); err != nil {
		return errors.Wrapf(err, "uploading pack %s", packID)
	}
	r.idx.AddPack(packID, entries, false)
	r.unindexedBytes += uint64(len(data))
	log.Debugf("flushed pack %s: %d blobs, %s", packID.Short(),
		len(entries), util.FmtBytes(int64(len(data))))

	if r.unindexedBytes >= indexFlushSizeHint {
		return r.flushIndexFiles()
	}
	return nil
}

// flushIndexFiles writes one index object covering all packs that lack
// durable coverage.
func (r *Repository) flushIndexFiles() error {
	packs := r.idx.Unindexed()
	if len(packs) == 0 {
		return nil
	}

	f := &index.File{}
	for _, p := range packs {
		f.Packs = append(f.Packs, index.PackIndex{
			ID:    p,
			Blobs: r.idx.PackEntries(p),
		})
	}
	plain, err := f.Encode()
	if err != nil {
		return err
	}
	fileID := model.Hash(plain)
	if err := r.putSealed(backend.IndexKind, model.IndexBlob, fileID, plain); err != nil {
		return errors.Wrap(err, "writing index object")
	}
	r.idx.MarkIndexed(fileID, packs)
	r.unindexedBytes = 0
	log.Debugf("wrote index object %s covering %d packs", fileID.Short(), len(packs))
	return nil
}

// Flush uploads the in-progress pack and makes index coverage for all
// flushed packs durable. After Flush returns, every blob stored so far is
// safely referenced on the backend; this must happen before a snapshot
// object is written.
func (r *Repository) Flush() error {
	r.packMu.Lock()
	defer r.packMu.Unlock()
	if err := r.flushPackLocked(); err != nil {
		return err
	}
	return r.flushIndexFiles()
}

// LoadBlob fetches, authenticates, and verifies one blob by id.
func (r *Repository) LoadBlob(t model.BlobType, id model.ID) ([]byte, error) {
	loc, ok := r.idx.Lookup(id)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s blob %s", t, id)
	}
	sealed, err := r.be.Get(backend.PackKind, loc.PackID.String(),
		int64(loc.Offset), int64(loc.Length))
	if err != nil {
		return nil, errors.Wrapf(err, "reading blob %s from pack %s", id, loc.PackID)
	}
	plain, err := pack.OpenBlob(sealed, t, id, r.key)
	if err != nil {
		if errors.Is(err, crypto.ErrAuthFailed) {
			return nil, corruptf(loc.PackID, "blob %s failed authentication", id)
		}
		return nil, corruptf(loc.PackID, "%v", err)
	}
	return plain, nil
}

// HasBlob reports whether the blob is stored or pending.
func (r *Repository) HasBlob(id model.ID) bool {
	return r.idx.Has(id)
}

///////////////////////////////////////////////////////////////////////////
// Trees

// SaveTree canonically encodes and stores a tree, returning its id.
func (r *Repository) SaveTree(t *model.Tree) (model.ID, error) {
	b, err := t.Encode()
	if err != nil {
		return model.ID{}, err
	}
	id, _, err := r.SaveBlob(model.TreeBlob, b)
	return id, err
}

// LoadTree fetches and decodes a tree by id.
func (r *Repository) LoadTree(id model.ID) (*model.Tree, error) {
	b, err := r.LoadBlob(model.TreeBlob, id)
	if err != nil {
		return nil, err
	}
	t, err := model.DecodeTree(b)
	if err != nil {
		return nil, corruptf(id, "undecodable tree")
	}
	return t, nil
}

///////////////////////////////////////////////////////////////////////////
// Sealed non-pack objects (snapshots, index objects)

// putSealed writes a content-addressed, individually sealed object of the
// given kind.
func (r *Repository) putSealed(kind backend.Kind, t model.BlobType, id model.ID, plain []byte) error {
	sealed, err := r.key.Seal(plain, pack.BlobAD(t, id))
	if err != nil {
		return err
	}
	err = r.be.Put(kind, id.String(), sealed)
	if errors.Is(err, backend.ErrExists) {
		// Content-addressed: same name means same bytes.
		return nil
	}
	return err
}

// loadSealed reads and authenticates a content-addressed sealed object.
func (r *Repository) loadSealed(kind backend.Kind, t model.BlobType, id model.ID) ([]byte, error) {
	sealed, err := r.be.Get(kind, id.String(), 0, 0)
	if err != nil {
		if errors.Is(err, backend.ErrNotExist) {
			return nil, errors.Wrapf(ErrNotFound, "%s %s", kind, id)
		}
		return nil, err
	}
	plain, err := r.key.Open(sealed, pack.BlobAD(t, id))
	if err != nil {
		return nil, corruptf(id, "%s failed authentication", kind)
	}
	if model.Hash(plain) != id {
		return nil, corruptf(id, "%s plaintext hash mismatch", kind)
	}
	return plain, nil
}
