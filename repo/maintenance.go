// repo/maintenance.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package repo

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/strata-backup/strata/backend"
	"github.com/strata-backup/strata/index"
	"github.com/strata-backup/strata/model"
)

// WriteIndex persists a fresh index object covering exactly the given
// packs and records the coverage. Used by the garbage collector when
// rewriting coverage after pack deletion.
func (r *Repository) WriteIndex(packs []model.ID) (model.ID, error) {
	f := &index.File{}
	for _, p := range packs {
		entries := r.idx.PackEntries(p)
		if len(entries) == 0 {
			return model.ID{}, errors.Errorf("pack %s has no index entries", p)
		}
		f.Packs = append(f.Packs, index.PackIndex{ID: p, Blobs: entries})
	}
	plain, err := f.Encode()
	if err != nil {
		return model.ID{}, err
	}
	fileID := model.Hash(plain)
	if err := r.putSealed(backend.IndexKind, model.IndexBlob, fileID, plain); err != nil {
		return model.ID{}, errors.Wrap(err, "writing index object")
	}
	r.idx.MarkIndexed(fileID, packs)
	return fileID, nil
}

// LoadIndexFile fetches and authenticates one persisted index object.
func (r *Repository) LoadIndexFile(fileID model.ID) (*index.File, error) {
	plain, err := r.loadSealed(backend.IndexKind, model.IndexBlob, fileID)
	if err != nil {
		return nil, err
	}
	f, err := index.DecodeFile(plain)
	if err != nil {
		return nil, corruptf(fileID, "undecodable index object")
	}
	return f, nil
}

// DeleteIndexFile removes a persisted index object.
func (r *Repository) DeleteIndexFile(fileID model.ID) error {
	err := r.be.Remove(backend.IndexKind, fileID.String())
	if err != nil && !errors.Is(err, backend.ErrNotExist) {
		return err
	}
	r.idx.DropFile(fileID)
	return nil
}

// RemovePack deletes a pack from the backend and drops its index entries.
// Only the garbage collector calls this, and only after every live blob
// of the pack is durable elsewhere.
func (r *Repository) RemovePack(packID model.ID) error {
	err := r.be.Remove(backend.PackKind, packID.String())
	if err != nil && !errors.Is(err, backend.ErrNotExist) {
		return err
	}
	r.idx.RemovePack(packID)
	log.Debugf("removed pack %s", packID.Short())
	return nil
}
