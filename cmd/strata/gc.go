// cmd/strata/gc.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package main

import (
	"fmt"

	"github.com/docopt/docopt-go"

	"github.com/strata-backup/strata/gc"
	"github.com/strata-backup/strata/util"
)

func cmdGC(opts docopt.Opts) int {
	r, err := openRepo(opts)
	if err != nil {
		return fail(err)
	}
	defer r.Close()

	if err := r.Lock(boolOpt(opts, "--force")); err != nil {
		return fail(err)
	}

	res, err := gc.Run(r, gc.Options{})
	if err != nil {
		return fail(err)
	}
	printGCResult(res)
	return 0
}

func printGCResult(res *gc.Result) {
	fmt.Printf("gc: %d snapshots, %d live blobs; deleted %d packs, repacked %d packs (%d blobs), reclaimed %s\n",
		res.Snapshots, res.LiveBlobs, res.PacksDeleted, res.PacksRepacked,
		res.BlobsRepacked, util.FmtBytes(res.BytesReclaimed))
}
