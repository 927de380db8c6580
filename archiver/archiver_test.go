// archiver/archiver_test.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package archiver

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/strata-backup/strata/backend"
	"github.com/strata-backup/strata/model"
	"github.com/strata-backup/strata/repo"
	"github.com/strata-backup/strata/restorer"
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

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func randomBytes(n int, seed int64) []byte {
	rng := rand.New(rand.NewSource(seed))
	b := make([]byte, n)
	rng.Read(b)
	return b
}

// sourceTree builds a small filesystem tree with a mix of node types.
func sourceTree(t *testing.T) string {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "small.txt"), []byte("hello world\n"))
	writeFile(t, filepath.Join(src, "big.bin"), randomBytes(600_000, 1))
	writeFile(t, filepath.Join(src, "empty"), nil)
	writeFile(t, filepath.Join(src, "sub", "nested.dat"), randomBytes(10_000, 2))
	writeFile(t, filepath.Join(src, "sub", "deep", "leaf"), []byte("leaf\n"))
	if err := os.Symlink("small.txt", filepath.Join(src, "link")); err != nil {
		t.Fatal(err)
	}
	return src
}

func snapshot(t *testing.T, r *repo.Repository, opts Options, paths []string, parent *model.Snapshot) (*model.Snapshot, *Summary) {
	t.Helper()
	a, err := New(r, opts)
	if err != nil {
		t.Fatal(err)
	}
	sn, sum, err := a.Snapshot(paths, parent)
	if err != nil {
		t.Fatal(err)
	}
	return sn, sum
}

func restore(t *testing.T, r *repo.Repository, sn *model.Snapshot) string {
	t.Helper()
	target := t.TempDir()
	rst, err := restorer.New(r, restorer.Options{})
	if err != nil {
		t.Fatal(err)
	}
	sum, err := rst.Restore(sn, target)
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Errors) > 0 {
		t.Fatalf("restore errors: %v", sum.Errors)
	}
	return target
}

// restoredPath maps a source path to where a restore of it lands under
// target: the full original path is recreated below the target.
func restoredPath(target, src string) string {
	return filepath.Join(target, src)
}

func TestRoundTrip(t *testing.T) {
	r, _ := testRepo(t)
	src := sourceTree(t)

	sn, sum := snapshot(t, r, Options{}, []string{src}, nil)
	if sum.FilesNew != 5 {
		t.Errorf("new files = %d, want 5", sum.FilesNew)
	}
	if len(sum.Skipped) != 0 {
		t.Errorf("skipped: %v", sum.Skipped)
	}

	target := restore(t, r, sn)
	base := restoredPath(target, src)

	for _, f := range []string{"small.txt", "big.bin", "empty",
		"sub/nested.dat", "sub/deep/leaf"} {
		want, err := os.ReadFile(filepath.Join(src, f))
		if err != nil {
			t.Fatal(err)
		}
		got, err := os.ReadFile(filepath.Join(base, f))
		if err != nil {
			t.Fatalf("%s: %v", f, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("%s: content mismatch", f)
		}

		si, _ := os.Lstat(filepath.Join(src, f))
		gi, _ := os.Lstat(filepath.Join(base, f))
		if si.Mode() != gi.Mode() {
			t.Errorf("%s: mode %v, want %v", f, gi.Mode(), si.Mode())
		}
		if !si.ModTime().Equal(gi.ModTime()) {
			t.Errorf("%s: mtime %v, want %v", f, gi.ModTime(), si.ModTime())
		}
	}

	link, err := os.Readlink(filepath.Join(base, "link"))
	if err != nil {
		t.Fatal(err)
	}
	if link != "small.txt" {
		t.Errorf("symlink target %q", link)
	}
}

func TestDeduplication(t *testing.T) {
	r, _ := testRepo(t)
	src := t.TempDir()
	content := randomBytes(400_000, 3)
	writeFile(t, filepath.Join(src, "a.bin"), content)

	_, sum1 := snapshot(t, r, Options{}, []string{src}, nil)
	if sum1.BlobsAdded == 0 {
		t.Fatal("first snapshot stored nothing")
	}

	// An identical copy under another name adds no data blobs.
	writeFile(t, filepath.Join(src, "b.bin"), content)
	_, sum2 := snapshot(t, r, Options{}, []string{src}, nil)
	if sum2.BlobsAdded != 0 {
		t.Errorf("identical content stored %d new blobs", sum2.BlobsAdded)
	}
	if sum2.BytesStored != 0 {
		t.Errorf("identical content stored %d bytes", sum2.BytesStored)
	}
}

func TestIncremental(t *testing.T) {
	r, _ := testRepo(t)
	src := sourceTree(t)

	sn1, _ := snapshot(t, r, Options{}, []string{src}, nil)

	// Nothing changed: everything is reused from the parent.
	sn2, sum2 := snapshot(t, r, Options{}, []string{src}, sn1)
	if sum2.FilesUnchanged != 5 || sum2.FilesNew != 0 || sum2.FilesChanged != 0 {
		t.Errorf("unchanged run: %+v", sum2)
	}
	if sum2.BlobsAdded != 0 {
		t.Errorf("unchanged run stored %d blobs", sum2.BlobsAdded)
	}
	if sn2.Parent == nil || *sn2.Parent != sn1.ID() {
		t.Error("parent link not recorded")
	}

	// Touch one file: only that file is re-read.
	writeFile(t, filepath.Join(src, "small.txt"), []byte("changed content\n"))
	_, sum3 := snapshot(t, r, Options{}, []string{src}, sn2)
	if sum3.FilesChanged != 1 || sum3.FilesUnchanged != 4 {
		t.Errorf("changed run: %+v", sum3)
	}

	// The changed file restores with its new content.
	sn4, _ := snapshot(t, r, Options{}, []string{src}, nil)
	target := restore(t, r, sn4)
	got, err := os.ReadFile(filepath.Join(restoredPath(target, src), "small.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "changed content\n" {
		t.Errorf("restored %q", got)
	}
}

func TestFullScanStillDedups(t *testing.T) {
	r, _ := testRepo(t)
	src := sourceTree(t)

	sn1, _ := snapshot(t, r, Options{}, []string{src}, nil)
	_, sum := snapshot(t, r, Options{FullScan: true}, []string{src}, sn1)
	if sum.FilesUnchanged != 0 {
		t.Error("full scan reused parent entries")
	}
	if sum.BlobsAdded != 0 {
		t.Errorf("full scan of identical content stored %d blobs", sum.BlobsAdded)
	}
}

func TestExclude(t *testing.T) {
	r, _ := testRepo(t)
	src := sourceTree(t)

	sn, _ := snapshot(t, r, Options{Exclude: []string{"*.bin", "deep"}},
		[]string{src}, nil)
	target := restore(t, r, sn)
	base := restoredPath(target, src)

	if _, err := os.Lstat(filepath.Join(base, "big.bin")); !os.IsNotExist(err) {
		t.Error("excluded file was archived")
	}
	if _, err := os.Lstat(filepath.Join(base, "sub", "deep")); !os.IsNotExist(err) {
		t.Error("excluded directory was archived")
	}
	if _, err := os.Lstat(filepath.Join(base, "sub", "nested.dat")); err != nil {
		t.Error("non-excluded sibling missing")
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	r, be := testRepo(t)
	src := sourceTree(t)

	_, sum := snapshot(t, r, Options{DryRun: true}, []string{src}, nil)
	if sum.BlobsAdded == 0 {
		t.Error("dry run planned no work")
	}

	var packs, snapshots int
	be.List(backend.PackKind, func(string) error { packs++; return nil })
	be.List(backend.SnapshotKind, func(string) error { snapshots++; return nil })
	if packs != 0 || snapshots != 0 {
		t.Errorf("dry run wrote %d packs, %d snapshots", packs, snapshots)
	}
}

func TestSkippedFileDoesNotAbort(t *testing.T) {
	r, _ := testRepo(t)
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "readable"), []byte("ok"))
	writeFile(t, filepath.Join(src, "unreadable"), []byte("secret"))
	if err := os.Chmod(filepath.Join(src, "unreadable"), 0); err != nil {
		t.Fatal(err)
	}
	if os.Getuid() == 0 {
		t.Skip("running as root, everything is readable")
	}

	sn, sum := snapshot(t, r, Options{}, []string{src}, nil)
	if len(sum.Skipped) != 1 {
		t.Fatalf("skipped = %v", sum.Skipped)
	}

	// The snapshot still committed and the readable file is in it.
	target := restore(t, r, sn)
	if _, err := os.Lstat(filepath.Join(restoredPath(target, src), "readable")); err != nil {
		t.Error("readable file missing from committed snapshot")
	}
}

func TestHardlinksRestored(t *testing.T) {
	r, _ := testRepo(t)
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "one"), []byte("linked content"))
	if err := os.Link(filepath.Join(src, "one"), filepath.Join(src, "two")); err != nil {
		t.Fatal(err)
	}

	sn, _ := snapshot(t, r, Options{}, []string{src}, nil)
	target := restore(t, r, sn)
	base := restoredPath(target, src)

	a, err := os.Stat(filepath.Join(base, "one"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.Stat(filepath.Join(base, "two"))
	if err != nil {
		t.Fatal(err)
	}
	if !os.SameFile(a, b) {
		t.Error("hardlinked files restored as separate inodes")
	}
}

func TestRestoreInclude(t *testing.T) {
	r, _ := testRepo(t)
	src := sourceTree(t)
	sn, _ := snapshot(t, r, Options{}, []string{src}, nil)

	target := t.TempDir()
	rst, err := restorer.New(r, restorer.Options{Include: []string{"*.txt"}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rst.Restore(sn, target); err != nil {
		t.Fatal(err)
	}
	base := restoredPath(target, src)
	if _, err := os.Lstat(filepath.Join(base, "small.txt")); err != nil {
		t.Error("included file missing")
	}
	if _, err := os.Lstat(filepath.Join(base, "big.bin")); !os.IsNotExist(err) {
		t.Error("non-included file restored")
	}
}

func TestUnchangedPredicate(t *testing.T) {
	base := &model.Node{
		Type: model.NodeFile, Size: 10, MTime: 1000, Mode: 0644, UID: 1, GID: 1,
	}
	same := *base
	if !unchanged(&same, base) {
		t.Error("identical metadata considered changed")
	}
	for _, mutate := range []func(n *model.Node){
		func(n *model.Node) { n.Size++ },
		func(n *model.Node) { n.MTime++ },
		func(n *model.Node) { n.Mode = 0600 },
		func(n *model.Node) { n.UID++ },
		func(n *model.Node) { n.GID++ },
	} {
		n := *base
		mutate(&n)
		if unchanged(&n, base) {
			t.Errorf("mutation not detected: %+v", n)
		}
	}
}

func TestCancel(t *testing.T) {
	r, _ := testRepo(t)
	src := sourceTree(t)

	a, err := New(r, Options{})
	if err != nil {
		t.Fatal(err)
	}
	a.Cancel()
	if _, _, err := a.Snapshot([]string{src}, nil); err != ErrCancelled {
		t.Errorf("cancelled snapshot: %v", err)
	}

	// A cancelled run must not have committed a snapshot.
	snapshots, err := r.ListSnapshots()
	if err != nil {
		t.Fatal(err)
	}
	if len(snapshots) != 0 {
		t.Error("cancelled run committed a snapshot")
	}
}
