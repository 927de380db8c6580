// cmd/strata/restore.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package main

import (
	"fmt"

	"github.com/docopt/docopt-go"

	"github.com/strata-backup/strata/restorer"
	"github.com/strata-backup/strata/util"
)

func cmdRestore(opts docopt.Opts) int {
	spec, _ := opts.String("<id>")
	target, _ := opts.String("<target>")

	// Restores don't take the repository lock: content addressing and the
	// late commit of snapshot objects make concurrent writers harmless to
	// readers.
	r, err := openRepo(opts)
	if err != nil {
		return fail(err)
	}
	defer r.Close()

	sn, err := r.ResolveSnapshot(spec)
	if err != nil {
		return fail(err)
	}

	rst, err := restorer.New(r, restorer.Options{
		Include: stringList(opts, "--include"),
		Exclude: stringList(opts, "--exclude"),
	})
	if err != nil {
		return fail(err)
	}

	sum, err := rst.Restore(sn, target)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("restored snapshot %s to %s: %d files, %d dirs, %s\n",
		sn.ID().Short(), target, sum.Files, sum.Dirs, util.FmtBytes(sum.Bytes))
	if len(sum.Errors) > 0 {
		fmt.Printf("%d errors during restore\n", len(sum.Errors))
		return 1
	}
	return 0
}
