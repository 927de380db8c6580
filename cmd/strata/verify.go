// cmd/strata/verify.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package main

import (
	"fmt"

	"github.com/docopt/docopt-go"
)

func cmdVerify(opts docopt.Opts) int {
	r, err := openRepo(opts)
	if err != nil {
		return fail(err)
	}
	defer r.Close()

	report, err := r.Verify(boolOpt(opts, "--deep"))
	if err != nil {
		return fail(err)
	}

	fmt.Printf("verified %d snapshots, %d trees, %d data blobs",
		report.Snapshots, report.Trees, report.DataBlobs)
	if report.Packs > 0 {
		fmt.Printf(", %d packs", report.Packs)
	}
	fmt.Println()

	if !report.OK() {
		fmt.Printf("%d problems found\n", len(report.Problems))
		return 1
	}
	fmt.Println("no problems found")
	return 0
}
