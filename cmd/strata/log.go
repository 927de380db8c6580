// cmd/strata/log.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package main

import (
	"fmt"
	"strings"

	"github.com/docopt/docopt-go"
)

func cmdLog(opts docopt.Opts) int {
	r, err := openRepo(opts)
	if err != nil {
		return fail(err)
	}
	defer r.Close()

	snapshots, err := r.ListSnapshots()
	if err != nil {
		return fail(err)
	}

	tags := stringList(opts, "--tag")
	for _, sn := range snapshots {
		if len(tags) > 0 && !sn.HasAnyTag(tags) {
			continue
		}
		line := fmt.Sprintf("%s  %s  %s  %s",
			sn.ID().Short(),
			sn.Time.Local().Format("2006-01-02 15:04:05"),
			sn.Hostname,
			strings.Join(sn.Paths, " "))
		if len(sn.Tags) > 0 {
			line += "  [" + strings.Join(sn.Tags, ",") + "]"
		}
		if sn.Description != "" {
			line += "  " + sn.Description
		}
		fmt.Println(line)
	}
	return 0
}
