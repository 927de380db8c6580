// repo/snapshots.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package repo

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/strata-backup/strata/backend"
	"github.com/strata-backup/strata/model"
)

// SaveSnapshot writes a snapshot object. The caller must have Flushed the
// repository first: the snapshot is the commit point and everything it
// references has to be durable already.
func (r *Repository) SaveSnapshot(sn *model.Snapshot) (model.ID, error) {
	b, err := sn.Encode()
	if err != nil {
		return model.ID{}, err
	}
	id := model.Hash(b)
	if err := r.putSealed(backend.SnapshotKind, model.SnapshotBlob, id, b); err != nil {
		return model.ID{}, errors.Wrap(err, "writing snapshot")
	}
	sn.SetID(id)
	return id, nil
}

// LoadSnapshot fetches a snapshot by its full id.
func (r *Repository) LoadSnapshot(id model.ID) (*model.Snapshot, error) {
	b, err := r.loadSealed(backend.SnapshotKind, model.SnapshotBlob, id)
	if err != nil {
		return nil, err
	}
	sn, err := model.DecodeSnapshot(b)
	if err != nil {
		return nil, corruptf(id, "undecodable snapshot")
	}
	return sn, nil
}

// ListSnapshots loads every snapshot object, ordered oldest first.
// Unreadable snapshots are reported and skipped so one bad object doesn't
// hide the rest.
func (r *Repository) ListSnapshots() ([]*model.Snapshot, error) {
	var snapshots []*model.Snapshot
	err := r.be.List(backend.SnapshotKind, func(name string) error {
		id, err := model.ParseID(name)
		if err != nil {
			log.Warnf("ignoring snapshot with invalid name %q", name)
			return nil
		}
		sn, err := r.LoadSnapshot(id)
		if err != nil {
			log.Errorf("skipping snapshot %s: %v", id.Short(), err)
			return nil
		}
		snapshots = append(snapshots, sn)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Time.Before(snapshots[j].Time)
	})
	return snapshots, nil
}

// ResolveSnapshot turns a user-supplied spec — a full id, an unambiguous
// hex prefix, or "latest" — into a loaded snapshot.
func (r *Repository) ResolveSnapshot(spec string) (*model.Snapshot, error) {
	if spec == "latest" {
		snapshots, err := r.ListSnapshots()
		if err != nil {
			return nil, err
		}
		if len(snapshots) == 0 {
			return nil, errors.Wrap(ErrNotFound, "repository has no snapshots")
		}
		return snapshots[len(snapshots)-1], nil
	}

	if id, err := model.ParseID(spec); err == nil {
		return r.LoadSnapshot(id)
	}

	var matches []string
	err := r.be.List(backend.SnapshotKind, func(name string) error {
		if strings.HasPrefix(name, spec) {
			matches = append(matches, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, errors.Wrapf(ErrNotFound, "no snapshot matches %q", spec)
	case 1:
		id, err := model.ParseID(matches[0])
		if err != nil {
			return nil, err
		}
		return r.LoadSnapshot(id)
	default:
		return nil, errors.Errorf("%q is ambiguous: matches %d snapshots", spec, len(matches))
	}
}

// DeleteSnapshot removes a snapshot object. The blobs it referenced stay
// until the next garbage collection.
func (r *Repository) DeleteSnapshot(id model.ID) error {
	err := r.be.Remove(backend.SnapshotKind, id.String())
	if errors.Is(err, backend.ErrNotExist) {
		return errors.Wrapf(ErrNotFound, "snapshot %s", id.Short())
	}
	return err
}

// ParentFor picks the parent snapshot for a new backup of the given paths:
// the most recent snapshot taken on this host with the same path set, or
// nil when there is none.
func (r *Repository) ParentFor(hostname string, paths []string) (*model.Snapshot, error) {
	snapshots, err := r.ListSnapshots()
	if err != nil {
		return nil, err
	}
	want := append([]string(nil), paths...)
	sort.Strings(want)

	for i := len(snapshots) - 1; i >= 0; i-- {
		sn := snapshots[i]
		if sn.Hostname != hostname {
			continue
		}
		got := append([]string(nil), sn.Paths...)
		sort.Strings(got)
		if len(got) != len(want) {
			continue
		}
		same := true
		for j := range got {
			if got[j] != want[j] {
				same = false
				break
			}
		}
		if same {
			return sn, nil
		}
	}
	return nil, nil
}
