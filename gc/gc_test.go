// gc/gc_test.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package gc

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/strata-backup/strata/backend"
	"github.com/strata-backup/strata/model"
	"github.com/strata-backup/strata/repo"
)

func testRepo(t *testing.T) (*repo.Repository, *backend.Memory) {
	t.Helper()
	be := backend.NewMemory()
	r, err := repo.Init(be, "pw")
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

// makeSnapshot stores the given chunks as one file and commits a snapshot
// referencing them.
func makeSnapshot(t *testing.T, r *repo.Repository, name string, chunks ...[]byte) (*model.Snapshot, []model.ID) {
	t.Helper()
	var content []model.ID
	var size uint64
	for _, c := range chunks {
		id, _, err := r.SaveBlob(model.DataBlob, c)
		if err != nil {
			t.Fatal(err)
		}
		content = append(content, id)
		size += uint64(len(c))
	}

	tree := &model.Tree{}
	tree.Insert(model.Node{
		Name: name, Type: model.NodeFile, Mode: 0644, Size: size, Content: content,
	})
	treeID, err := r.SaveTree(tree)
	if err != nil {
		t.Fatal(err)
	}

	if err := r.Flush(); err != nil {
		t.Fatal(err)
	}
	sn := &model.Snapshot{
		Version:  model.SnapshotVersion,
		Time:     time.Now(),
		Hostname: "host",
		Paths:    []string{"/" + name},
		Tree:     treeID,
	}
	if _, err := r.SaveSnapshot(sn); err != nil {
		t.Fatal(err)
	}
	return sn, content
}

func TestGCKeepsLiveRemovesDead(t *testing.T) {
	r, _ := testRepo(t)

	shared := randomBytes(150_000, 1)
	onlyA := randomBytes(150_000, 2)
	onlyB := randomBytes(150_000, 3)

	snA, chunksA := makeSnapshot(t, r, "a", shared, onlyA)
	_, chunksB := makeSnapshot(t, r, "b", shared, onlyB)

	// Forget snapshot A and collect.
	if err := r.DeleteSnapshot(snA.ID()); err != nil {
		t.Fatal(err)
	}
	res, err := Run(r, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Snapshots != 1 {
		t.Errorf("gc saw %d snapshots", res.Snapshots)
	}

	// A's unique chunk is gone; the shared chunk and B's chunks survive.
	if _, err := r.LoadBlob(model.DataBlob, chunksA[1]); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("dead chunk still present: %v", err)
	}
	for i, id := range chunksB {
		got, err := r.LoadBlob(model.DataBlob, id)
		if err != nil {
			t.Fatalf("live chunk %d lost: %v", i, err)
		}
		want := shared
		if i == 1 {
			want = onlyB
		}
		if !bytes.Equal(got, want) {
			t.Errorf("live chunk %d corrupted", i)
		}
	}
}

func TestGCSurvivorsRestorableAfterReopen(t *testing.T) {
	r, be := testRepo(t)

	shared := randomBytes(100_000, 4)
	snA, _ := makeSnapshot(t, r, "a", shared, randomBytes(100_000, 5))
	_, chunksB := makeSnapshot(t, r, "b", shared, randomBytes(300_000, 6))

	if err := r.DeleteSnapshot(snA.ID()); err != nil {
		t.Fatal(err)
	}
	if _, err := Run(r, Options{}); err != nil {
		t.Fatal(err)
	}

	// The index objects on the backend must cover exactly what's left: a
	// fresh open sees every surviving blob.
	reopened, err := repo.Open(be, "pw")
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range chunksB {
		if _, err := reopened.LoadBlob(model.DataBlob, id); err != nil {
			t.Errorf("survivor unreachable after reopen: %v", err)
		}
	}

	snapshots, err := reopened.ListSnapshots()
	if err != nil {
		t.Fatal(err)
	}
	if len(snapshots) != 1 {
		t.Errorf("%d snapshots after gc", len(snapshots))
	}
}

func TestGCEmptyRepositoryRemovesEverything(t *testing.T) {
	r, be := testRepo(t)
	sn, _ := makeSnapshot(t, r, "only", randomBytes(200_000, 7))
	if err := r.DeleteSnapshot(sn.ID()); err != nil {
		t.Fatal(err)
	}

	res, err := Run(r, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.LiveBlobs != 0 {
		t.Errorf("live blobs = %d", res.LiveBlobs)
	}

	var packs, indexes int
	be.List(backend.PackKind, func(string) error { packs++; return nil })
	be.List(backend.IndexKind, func(string) error { indexes++; return nil })
	if packs != 0 {
		t.Errorf("%d packs left in an empty repository", packs)
	}
	if indexes != 0 {
		t.Errorf("%d orphan index objects left", indexes)
	}
}

func TestGCIdempotent(t *testing.T) {
	r, _ := testRepo(t)
	makeSnapshot(t, r, "keep", randomBytes(100_000, 8))

	first, err := Run(r, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if first.PacksDeleted != 0 || first.PacksRepacked != 0 {
		t.Errorf("gc of a fully-live repository changed packs: %+v", first)
	}

	second, err := Run(r, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if second.PacksDeleted != 0 || second.BytesReclaimed != 0 {
		t.Errorf("second gc found work: %+v", second)
	}
}

func TestApplyPolicyKeepLast(t *testing.T) {
	snapshots := makeDated(t, 10)
	keep, forget, _ := ApplyPolicy(snapshots, Policy{KeepLast: 3})
	if len(keep) != 3 || len(forget) != 7 {
		t.Fatalf("keep=%d forget=%d", len(keep), len(forget))
	}
	// The newest three survive.
	for _, sn := range keep {
		if sn.Time.Before(snapshots[7].Time) {
			t.Errorf("kept an old snapshot from %v", sn.Time)
		}
	}
}

func TestApplyPolicyDaily(t *testing.T) {
	// Three snapshots on each of four days.
	var snapshots []*model.Snapshot
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	for day := 0; day < 4; day++ {
		for i := 0; i < 3; i++ {
			snapshots = append(snapshots, datedSnapshot(
				base.AddDate(0, 0, day).Add(time.Duration(i)*time.Hour), nil))
		}
	}

	keep, _, reasons := ApplyPolicy(snapshots, Policy{KeepDaily: 2})
	if len(keep) != 2 {
		t.Fatalf("kept %d, want 2", len(keep))
	}
	// The newest snapshot of each of the two most recent days.
	for _, sn := range keep {
		if reasons[sn.ID()] != "daily" {
			t.Errorf("reason = %q", reasons[sn.ID()])
		}
		if sn.Time.Hour() != 10 {
			t.Errorf("kept %v, not the newest of its day", sn.Time)
		}
	}
}

func TestApplyPolicyTags(t *testing.T) {
	snapshots := makeDated(t, 5)
	snapshots[0].Tags = []string{"archive"}

	keep, forget, reasons := ApplyPolicy(snapshots, Policy{KeepLast: 1, KeepTags: []string{"archive"}})
	if len(keep) != 2 || len(forget) != 3 {
		t.Fatalf("keep=%d forget=%d", len(keep), len(forget))
	}
	if reasons[snapshots[0].ID()] != "tag" {
		t.Error("tagged snapshot not kept by tag")
	}
}

func TestPolicyEmpty(t *testing.T) {
	if !(Policy{}).Empty() {
		t.Error("zero policy not Empty")
	}
	if (Policy{KeepLast: 1}).Empty() {
		t.Error("non-zero policy Empty")
	}
}

func datedSnapshot(ts time.Time, tags []string) *model.Snapshot {
	return &model.Snapshot{
		Version:  model.SnapshotVersion,
		Time:     ts,
		Hostname: "host",
		Paths:    []string{"/data"},
		Tags:     tags,
		Tree:     model.Hash([]byte(ts.String())),
	}
}

func makeDated(t *testing.T, n int) []*model.Snapshot {
	t.Helper()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var out []*model.Snapshot
	for i := 0; i < n; i++ {
		out = append(out, datedSnapshot(base.AddDate(0, 0, i), nil))
	}
	return out
}
