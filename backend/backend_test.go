// backend/backend_test.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package backend

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/pkg/errors"
)

// getBackends returns one of each testable backend implementation.
func getBackends(t *testing.T) []Backend {
	local, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return []Backend{NewMemory(), local}
}

const packID = "00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff"

func TestPutGet(t *testing.T) {
	for _, be := range getBackends(t) {
		data := []byte{0, 1, 2, 3, 4, 5, 6, 7}
		if err := be.Put(PackKind, packID, data); err != nil {
			t.Fatalf("%s: put: %v", be.Location(), err)
		}

		got, err := be.Get(PackKind, packID, 0, 0)
		if err != nil {
			t.Fatalf("%s: get: %v", be.Location(), err)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("%s: got %v, want %v", be.Location(), got, data)
		}

		// Ranged read, required for pack blobs.
		got, err = be.Get(PackKind, packID, 2, 3)
		if err != nil {
			t.Fatalf("%s: ranged get: %v", be.Location(), err)
		}
		if !bytes.Equal(got, []byte{2, 3, 4}) {
			t.Errorf("%s: ranged got %v", be.Location(), got)
		}
	}
}

func TestPutRefusesOverwrite(t *testing.T) {
	for _, be := range getBackends(t) {
		if err := be.Put(SnapshotKind, "aabb", []byte("one")); err != nil {
			t.Fatal(err)
		}
		err := be.Put(SnapshotKind, "aabb", []byte("two"))
		if !errors.Is(err, ErrExists) {
			t.Errorf("%s: second put of same id: %v", be.Location(), err)
		}
	}
}

func TestGetMissing(t *testing.T) {
	for _, be := range getBackends(t) {
		_, err := be.Get(SnapshotKind, "feed", 0, 0)
		if !errors.Is(err, ErrNotExist) {
			t.Errorf("%s: get of missing object: %v", be.Location(), err)
		}
	}
}

func TestListAndRemove(t *testing.T) {
	for _, be := range getBackends(t) {
		for i := 0; i < 3; i++ {
			id := fmt.Sprintf("%02x%062x", i, i)
			if err := be.Put(IndexKind, id, []byte{byte(i)}); err != nil {
				t.Fatal(err)
			}
		}

		var ids []string
		err := be.List(IndexKind, func(id string) error {
			ids = append(ids, id)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(ids) != 3 {
			t.Errorf("%s: listed %d ids, want 3", be.Location(), len(ids))
		}

		if err := be.Remove(IndexKind, ids[0]); err != nil {
			t.Fatal(err)
		}
		if ok, _ := Has(be, IndexKind, ids[0]); ok {
			t.Errorf("%s: removed object still present", be.Location())
		}
		if err := be.Remove(IndexKind, ids[0]); !errors.Is(err, ErrNotExist) {
			t.Errorf("%s: double remove: %v", be.Location(), err)
		}
	}
}

func TestShardedLayout(t *testing.T) {
	for _, be := range getBackends(t) {
		if err := be.Put(PackKind, packID, []byte("pack")); err != nil {
			t.Fatal(err)
		}
		var found bool
		err := be.List(PackKind, func(id string) error {
			if id == packID {
				found = true
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if !found {
			t.Errorf("%s: sharded pack not listed", be.Location())
		}
	}
}

func TestConfigSingleton(t *testing.T) {
	for _, be := range getBackends(t) {
		ok, err := Has(be, ConfigKind, "config")
		if err != nil || ok {
			t.Fatalf("%s: fresh backend claims a config (%v)", be.Location(), err)
		}
		if err := be.Put(ConfigKind, "config", []byte("cfg")); err != nil {
			t.Fatal(err)
		}
		ok, err = Has(be, ConfigKind, "config")
		if err != nil || !ok {
			t.Errorf("%s: config not found after put (%v)", be.Location(), err)
		}
	}
}
