// index/index_test.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package index

import (
	"testing"

	"github.com/strata-backup/strata/model"
	"github.com/strata-backup/strata/pack"
)

func id(s string) model.ID {
	return model.Hash([]byte(s))
}

func entry(name string, offset uint64) pack.Entry {
	return pack.Entry{
		ID:        id(name),
		Type:      model.DataBlob,
		Offset:    offset,
		Length:    100,
		RawLength: 72,
	}
}

func TestAddPackLookup(t *testing.T) {
	ix := New()
	p := id("pack1")
	ix.AddPack(p, []pack.Entry{entry("a", 0), entry("b", 100)}, false)

	loc, ok := ix.Lookup(id("a"))
	if !ok {
		t.Fatal("stored blob not found")
	}
	if loc.PackID != p || loc.Offset != 0 || loc.Length != 100 {
		t.Errorf("wrong location: %+v", loc)
	}
	if !ix.Has(id("b")) {
		t.Error("Has missed a stored blob")
	}
	if ix.Has(id("c")) {
		t.Error("Has invented a blob")
	}
	if err := ix.Validate(); err != nil {
		t.Error(err)
	}
}

func TestPending(t *testing.T) {
	ix := New()
	if !ix.AddPending(id("x")) {
		t.Fatal("first claim refused")
	}
	if ix.AddPending(id("x")) {
		t.Fatal("double claim allowed")
	}
	if !ix.Has(id("x")) {
		t.Error("pending blob not visible to Has")
	}

	// Flushing the pack converts the claim into a real entry.
	ix.AddPack(id("pack1"), []pack.Entry{entry("x", 0)}, false)
	if _, ok := ix.Lookup(id("x")); !ok {
		t.Error("flushed blob not resolvable")
	}

	ix.AddPending(id("y"))
	ix.DropPending(id("y"))
	if ix.Has(id("y")) {
		t.Error("dropped pending claim still visible")
	}
	if !ix.AddPending(id("y")) {
		t.Error("re-claim after drop refused")
	}
}

func TestAddPending_AlreadyStored(t *testing.T) {
	ix := New()
	ix.AddPack(id("pack1"), []pack.Entry{entry("a", 0)}, true)
	if ix.AddPending(id("a")) {
		t.Error("claim allowed for an already-stored blob")
	}
}

func TestRepackKeepsNewestLocation(t *testing.T) {
	ix := New()
	oldPack, newPack := id("old"), id("new")
	ix.AddPack(oldPack, []pack.Entry{entry("a", 0), entry("dead", 100)}, true)
	// Blob "a" is repacked into a new pack.
	ix.AddPack(newPack, []pack.Entry{entry("a", 0)}, false)

	loc, ok := ix.Lookup(id("a"))
	if !ok || loc.PackID != newPack {
		t.Fatalf("lookup after repack: %+v ok=%v", loc, ok)
	}

	ix.RemovePack(oldPack)
	if _, ok := ix.Lookup(id("a")); !ok {
		t.Error("repacked blob lost when old pack removed")
	}
	if _, ok := ix.Lookup(id("dead")); ok {
		t.Error("dead blob still resolvable after pack removal")
	}
	if len(ix.PackEntries(oldPack)) != 0 {
		t.Error("removed pack still has entries")
	}
}

func TestCoverageTracking(t *testing.T) {
	ix := New()
	p1, p2 := id("p1"), id("p2")
	ix.AddPack(p1, []pack.Entry{entry("a", 0)}, false)
	ix.AddPack(p2, []pack.Entry{entry("b", 0)}, false)

	un := ix.Unindexed()
	if len(un) != 2 {
		t.Fatalf("unindexed = %v", un)
	}

	file := id("indexfile")
	ix.MarkIndexed(file, []model.ID{p1, p2})
	if len(ix.Unindexed()) != 0 {
		t.Error("packs still unindexed after MarkIndexed")
	}
	files := ix.Files()
	if len(files[file]) != 2 {
		t.Errorf("file coverage = %v", files)
	}

	ix.DropFile(file)
	if len(ix.Files()) != 0 {
		t.Error("dropped file still tracked")
	}
}

func TestFileEncoding(t *testing.T) {
	f := &File{Packs: []PackIndex{
		{ID: id("p1"), Blobs: []pack.Entry{entry("a", 0), entry("b", 100)}},
		{ID: id("p2"), Blobs: []pack.Entry{entry("c", 0)}},
	}}

	b, err := f.Encode()
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeFile(b)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Packs) != 2 || len(got.Packs[0].Blobs) != 2 {
		t.Fatalf("decoded %+v", got)
	}
	if got.Packs[0].Blobs[1] != f.Packs[0].Blobs[1] {
		t.Error("entry did not survive the round trip")
	}
	ids := got.PackIDs()
	if len(ids) != 2 || ids[0] != id("p1") {
		t.Errorf("PackIDs = %v", ids)
	}
}
