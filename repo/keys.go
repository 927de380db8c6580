// repo/keys.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package repo

import (
	"time"

	"github.com/pkg/errors"

	"github.com/strata-backup/strata/backend"
	"github.com/strata-backup/strata/crypto"
	"github.com/strata-backup/strata/model"
)

// KeyInfo describes one key object for listing.
type KeyInfo struct {
	ID       string
	Created  time.Time
	Hostname string
}

// AddKey wraps the master key under an additional passphrase, so several
// passphrases can unlock the same repository.
func (r *Repository) AddKey(password string) (string, error) {
	kf, err := crypto.NewKeyFile(password, r.key)
	if err != nil {
		return "", err
	}
	b, err := kf.Marshal()
	if err != nil {
		return "", err
	}
	id := model.Hash(b)
	if err := r.be.Put(backend.KeyKind, id.String(), b); err != nil {
		return "", errors.Wrap(err, "writing key object")
	}
	return id.String(), nil
}

// ListKeys enumerates the repository's key objects.
func (r *Repository) ListKeys() ([]KeyInfo, error) {
	var keys []KeyInfo
	err := r.be.List(backend.KeyKind, func(id string) error {
		b, err := r.be.Get(backend.KeyKind, id, 0, 0)
		if err != nil {
			return err
		}
		kf, err := crypto.UnmarshalKeyFile(b)
		if err != nil {
			keys = append(keys, KeyInfo{ID: id})
			return nil
		}
		keys = append(keys, KeyInfo{
			ID:       id,
			Created:  kf.Created,
			Hostname: kf.Hostname,
		})
		return nil
	})
	return keys, err
}

// RemoveKey deletes a key object. The last key cannot be removed: that
// would lock everyone out of the repository permanently.
func (r *Repository) RemoveKey(id string) error {
	keys, err := r.ListKeys()
	if err != nil {
		return err
	}
	if len(keys) <= 1 {
		return errors.New("refusing to remove the only key of the repository")
	}
	found := false
	for _, k := range keys {
		if k.ID == id {
			found = true
			break
		}
	}
	if !found {
		return errors.Wrapf(ErrNotFound, "key %s", id)
	}
	return r.be.Remove(backend.KeyKind, id)
}
