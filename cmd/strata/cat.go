// cmd/strata/cat.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/docopt/docopt-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/strata-backup/strata/backend"
	"github.com/strata-backup/strata/model"
	"github.com/strata-backup/strata/repo"
)

// cmdCat dumps one repository object: decoded where the object has a
// structured form, raw bytes for data blobs.
func cmdCat(opts docopt.Opts) int {
	kind, _ := opts.String("<kind>")
	spec, _ := opts.String("<id>")

	r, err := openRepo(opts)
	if err != nil {
		return fail(err)
	}
	defer r.Close()

	err = catObject(r, kind, spec)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) || errors.Is(err, backend.ErrNotExist) {
			log.Errorf("%v", err)
			return 2
		}
		return fail(err)
	}
	return 0
}

func catObject(r *repo.Repository, kind, spec string) error {
	switch kind {
	case "config":
		return printJSON(r.Config())

	case "snapshot":
		sn, err := r.ResolveSnapshot(spec)
		if err != nil {
			return err
		}
		return printJSON(struct {
			ID string `json:"id"`
			*model.Snapshot
		}{sn.ID().String(), sn})

	case "tree":
		id, err := model.ParseID(spec)
		if err != nil {
			return err
		}
		tree, err := r.LoadTree(id)
		if err != nil {
			return err
		}
		return printJSON(tree)

	case "data":
		id, err := model.ParseID(spec)
		if err != nil {
			return err
		}
		b, err := r.LoadBlob(model.DataBlob, id)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(b)
		return err

	case "index":
		id, err := model.ParseID(spec)
		if err != nil {
			return err
		}
		f, err := r.LoadIndexFile(id)
		if err != nil {
			return err
		}
		return printJSON(f)

	case "key", "lock":
		k := backend.KeyKind
		if kind == "lock" {
			k = backend.LockKind
		}
		b, err := r.Backend().Get(k, spec, 0, 0)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(b)
		return err

	default:
		return errors.Errorf("unknown object kind %q", kind)
	}
}

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
