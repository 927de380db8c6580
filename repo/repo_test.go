// repo/repo_test.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package repo

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/strata-backup/strata/backend"
	"github.com/strata-backup/strata/model"
)

const testPassword = "test password"

func testRepo(t *testing.T) (*Repository, *backend.Memory) {
	t.Helper()
	be := backend.NewMemory()
	r, err := Init(be, testPassword)
	if err != nil {
		t.Fatal(err)
	}
	return r, be
}

func randomBytes(n int, seed int64) []byte {
	rng := rand.New(rand.NewSource(seed))
	b := make([]byte, n)
	rng.Read(b)
	return b
}

func TestInitOpen(t *testing.T) {
	r, be := testRepo(t)

	// A second init on the same backend must refuse.
	if _, err := Init(be, "other"); !errors.Is(err, ErrRepoExists) {
		t.Fatalf("double init: %v", err)
	}

	reopened, err := Open(be, testPassword)
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Config().ID != r.Config().ID {
		t.Error("reopened repository has a different id")
	}
	if reopened.Config().ChunkerSeed != r.Config().ChunkerSeed {
		t.Error("chunker seed not preserved")
	}

	if _, err := Open(be, "wrong password"); !errors.Is(err, ErrBadPassword) {
		t.Fatalf("wrong password: %v", err)
	}

	if _, err := Open(backend.NewMemory(), testPassword); !errors.Is(err, ErrNoRepository) {
		t.Fatalf("open of empty backend: %v", err)
	}
}

func TestSaveLoadBlob(t *testing.T) {
	r, _ := testRepo(t)

	data := randomBytes(10000, 1)
	id, stored, err := r.SaveBlob(model.DataBlob, data)
	if err != nil {
		t.Fatal(err)
	}
	if !stored {
		t.Fatal("first save did not store")
	}
	if id != model.Hash(data) {
		t.Error("blob id is not the content hash")
	}

	// Storing the same content again is the dedup no-op.
	_, stored, err = r.SaveBlob(model.DataBlob, data)
	if err != nil {
		t.Fatal(err)
	}
	if stored {
		t.Error("duplicate save stored again")
	}

	if err := r.Flush(); err != nil {
		t.Fatal(err)
	}

	got, err := r.LoadBlob(model.DataBlob, id)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("loaded blob differs")
	}

	if _, err := r.LoadBlob(model.DataBlob, model.Hash([]byte("missing"))); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing blob: %v", err)
	}
}

func TestReopenSeesBlobs(t *testing.T) {
	r, be := testRepo(t)
	data := randomBytes(5000, 2)
	id, _, err := r.SaveBlob(model.DataBlob, data)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Flush(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(be, testPassword)
	if err != nil {
		t.Fatal(err)
	}
	got, err := reopened.LoadBlob(model.DataBlob, id)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("blob lost across reopen")
	}
}

// A pack uploaded without its index object (crash between the two) must be
// re-indexed on the next open.
func TestOpenRebuildsMissingIndex(t *testing.T) {
	r, be := testRepo(t)
	data := randomBytes(5000, 3)
	id, _, err := r.SaveBlob(model.DataBlob, data)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Flush(); err != nil {
		t.Fatal(err)
	}

	// Simulate the crash by deleting every index object.
	var indexIDs []string
	be.List(backend.IndexKind, func(name string) error {
		indexIDs = append(indexIDs, name)
		return nil
	})
	if len(indexIDs) == 0 {
		t.Fatal("no index objects were written")
	}
	for _, name := range indexIDs {
		if err := be.Remove(backend.IndexKind, name); err != nil {
			t.Fatal(err)
		}
	}

	reopened, err := Open(be, testPassword)
	if err != nil {
		t.Fatal(err)
	}
	got, err := reopened.LoadBlob(model.DataBlob, id)
	if err != nil {
		t.Fatalf("blob unreachable after index rebuild: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("blob content wrong after rebuild")
	}

	// The rebuilt coverage must now be durable.
	var count int
	be.List(backend.IndexKind, func(string) error { count++; return nil })
	if count == 0 {
		t.Error("rebuilt index coverage was not persisted")
	}
}

func TestTamperedPackDetected(t *testing.T) {
	r, be := testRepo(t)
	data := randomBytes(5000, 4)
	id, _, err := r.SaveBlob(model.DataBlob, data)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Flush(); err != nil {
		t.Fatal(err)
	}

	var packName string
	be.List(backend.PackKind, func(name string) error {
		packName = name
		return nil
	})
	if !be.Corrupt(backend.PackKind, packName, 50) {
		t.Fatal("could not corrupt pack")
	}

	if _, err := r.LoadBlob(model.DataBlob, id); !IsCorrupt(err) {
		t.Errorf("tampered pack read: %v", err)
	}
}

func TestSnapshotLifecycle(t *testing.T) {
	r, _ := testRepo(t)

	tree := &model.Tree{}
	tree.Insert(model.Node{Name: "f", Type: model.NodeFile, Mode: 0644})
	treeID, err := r.SaveTree(tree)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Flush(); err != nil {
		t.Fatal(err)
	}

	mkSnap := func(offset time.Duration) model.ID {
		sn := &model.Snapshot{
			Version:  model.SnapshotVersion,
			Time:     time.Now().Add(offset),
			Hostname: "host",
			Paths:    []string{"/data"},
			Tree:     treeID,
		}
		id, err := r.SaveSnapshot(sn)
		if err != nil {
			t.Fatal(err)
		}
		return id
	}
	first := mkSnap(-time.Hour)
	second := mkSnap(0)

	snapshots, err := r.ListSnapshots()
	if err != nil {
		t.Fatal(err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("listed %d snapshots", len(snapshots))
	}
	if snapshots[0].ID() != first || snapshots[1].ID() != second {
		t.Error("snapshots not ordered oldest first")
	}

	latest, err := r.ResolveSnapshot("latest")
	if err != nil {
		t.Fatal(err)
	}
	if latest.ID() != second {
		t.Error("latest resolved to the wrong snapshot")
	}

	byPrefix, err := r.ResolveSnapshot(first.String()[:10])
	if err != nil {
		t.Fatal(err)
	}
	if byPrefix.ID() != first {
		t.Error("prefix resolved to the wrong snapshot")
	}

	if err := r.DeleteSnapshot(first); err != nil {
		t.Fatal(err)
	}
	if _, err := r.LoadSnapshot(first); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted snapshot still loads: %v", err)
	}
	if err := r.DeleteSnapshot(first); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete: %v", err)
	}
}

func TestLocking(t *testing.T) {
	r, be := testRepo(t)
	if err := r.Lock(false); err != nil {
		t.Fatal(err)
	}

	// A second handle can't lock while the first holds it.
	other, err := Open(be, testPassword)
	if err != nil {
		t.Fatal(err)
	}
	err = other.Lock(false)
	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("concurrent lock: %v", err)
	}
	// Fresh lock: force must not break it.
	if err := other.Lock(true); err == nil {
		t.Fatal("force broke a live lock")
	}

	if err := r.Unlock(); err != nil {
		t.Fatal(err)
	}
	if err := other.Lock(false); err != nil {
		t.Fatalf("lock after unlock: %v", err)
	}
}

func TestKeyManagement(t *testing.T) {
	r, be := testRepo(t)

	id, err := r.AddKey("second password")
	if err != nil {
		t.Fatal(err)
	}

	// Both passphrases open the repository now.
	if _, err := Open(be, "second password"); err != nil {
		t.Fatalf("open with added key: %v", err)
	}
	if _, err := Open(be, testPassword); err != nil {
		t.Fatalf("open with original key: %v", err)
	}

	keys, err := r.ListKeys()
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("listed %d keys", len(keys))
	}

	if err := r.RemoveKey(id); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(be, "second password"); !errors.Is(err, ErrBadPassword) {
		t.Errorf("open with removed key: %v", err)
	}

	keys, _ = r.ListKeys()
	if err := r.RemoveKey(keys[0].ID); err == nil {
		t.Error("last key removal allowed")
	}
}
