// repo/lock.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package repo

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/strata-backup/strata/backend"
)

// LockTTL is how old a lock may be before it is considered stale: a
// crashed process that never released it.
const LockTTL = 30 * time.Minute

// lockData is the advisory lock record. It is stored as plain JSON: locks
// must be inspectable (for error messages and --force decisions) without
// unlocking the repository.
type lockData struct {
	ID       string    `json:"id"`
	Hostname string    `json:"hostname"`
	PID      int       `json:"pid"`
	Created  time.Time `json:"created"`
}

func (l lockData) holder() string {
	return fmt.Sprintf("%s/%d", l.Hostname, l.PID)
}

// Lock takes the repository lock, serialising mutating operations. With
// force set, stale locks (older than LockTTL) are broken.
func (r *Repository) Lock(force bool) error {
	err := r.be.List(backend.LockKind, func(id string) error {
		b, err := r.be.Get(backend.LockKind, id, 0, 0)
		if err != nil {
			// A lock removed between list and read was just released.
			if errors.Is(err, backend.ErrNotExist) {
				return nil
			}
			return err
		}
		var ld lockData
		if err := json.Unmarshal(b, &ld); err != nil {
			log.Warnf("ignoring unparsable lock %s: %v", id, err)
			return nil
		}

		age := time.Since(ld.Created)
		if age > LockTTL {
			if force {
				log.Warnf("breaking stale lock held by %s (age %s)",
					ld.holder(), age.Round(time.Second))
				return r.be.Remove(backend.LockKind, id)
			}
			return &LockedError{
				Holder:  ld.holder(),
				Age:     age.Round(time.Second).String(),
				Expired: true,
			}
		}
		return &LockedError{
			Holder: ld.holder(),
			Age:    age.Round(time.Second).String(),
		}
	})
	if err != nil {
		return err
	}

	ld := lockData{
		ID:      uuid.NewString(),
		PID:     os.Getpid(),
		Created: time.Now().UTC(),
	}
	if hostname, err := os.Hostname(); err == nil {
		ld.Hostname = hostname
	}
	b, err := json.Marshal(ld)
	if err != nil {
		return errors.Wrap(err, "encoding lock")
	}
	if err := r.be.Put(backend.LockKind, ld.ID, b); err != nil {
		return errors.Wrap(err, "writing lock")
	}
	r.lockID = ld.ID
	log.Debugf("acquired repository lock %s", ld.ID)
	return nil
}

// Unlock releases the lock taken by Lock. Safe to call when no lock is
// held.
func (r *Repository) Unlock() error {
	if r.lockID == "" {
		return nil
	}
	err := r.be.Remove(backend.LockKind, r.lockID)
	if errors.Is(err, backend.ErrNotExist) {
		err = nil
	}
	r.lockID = ""
	return err
}
