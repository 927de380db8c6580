// cmd/strata/snapshot.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/docopt/docopt-go"
	log "github.com/sirupsen/logrus"

	"github.com/strata-backup/strata/archiver"
	"github.com/strata-backup/strata/model"
	"github.com/strata-backup/strata/util"
)

func cmdSnapshot(opts docopt.Opts) int {
	paths := stringList(opts, "<path>")
	dryRun, _ := opts.Bool("--dry-run")

	r, err := openRepo(opts)
	if err != nil {
		return fail(err)
	}
	defer r.Close()

	if !dryRun {
		if err := r.Lock(boolOpt(opts, "--force")); err != nil {
			return fail(err)
		}
	}

	desc, _ := opts.String("--description")
	a, err := archiver.New(r, archiver.Options{
		Tags:        stringList(opts, "--tag"),
		Description: desc,
		Include:     stringList(opts, "--include"),
		Exclude:     stringList(opts, "--exclude"),
		DryRun:      dryRun,
		FullScan:    boolOpt(opts, "--full-scan"),
	})
	if err != nil {
		return fail(err)
	}

	// A first interrupt stops the archiver at the next queue boundary;
	// in-flight pack uploads finish and a later gc removes the orphans.
	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigch)
	go func() {
		if _, ok := <-sigch; ok {
			log.Warn("interrupted, stopping after in-flight uploads")
			a.Cancel()
		}
	}()

	parent, err := pickParent(r, opts, paths)
	if err != nil {
		return fail(err)
	}
	if parent != nil {
		log.Infof("using parent snapshot %s", parent.ID().Short())
	}

	sn, sum, err := a.Snapshot(paths, parent)
	if err != nil {
		return fail(err)
	}

	for _, sk := range sum.Skipped {
		log.Warnf("skipped %s: %v", sk.Path, sk.Err)
	}
	if dryRun {
		fmt.Printf("dry run: %d new, %d changed, %d unchanged files; would store %d blobs (%s)\n",
			sum.FilesNew, sum.FilesChanged, sum.FilesUnchanged,
			sum.BlobsAdded, util.FmtBytes(sum.BytesStored))
		return 0
	}
	fmt.Printf("snapshot %s: %d new, %d changed, %d unchanged files; stored %s\n",
		sn.ID().Short(), sum.FilesNew, sum.FilesChanged, sum.FilesUnchanged,
		util.FmtBytes(sum.BytesStored))
	if len(sum.Skipped) > 0 {
		fmt.Printf("%d files were skipped\n", len(sum.Skipped))
	}
	return 0
}

func pickParent(r interface {
	ResolveSnapshot(string) (*model.Snapshot, error)
	ParentFor(string, []string) (*model.Snapshot, error)
}, opts docopt.Opts, paths []string) (*model.Snapshot, error) {
	spec, _ := opts.String("--parent")
	switch spec {
	case "none":
		return nil, nil
	case "":
		hostname, err := os.Hostname()
		if err != nil {
			return nil, nil
		}
		abs := make([]string, 0, len(paths))
		for _, p := range paths {
			if ap, err := absClean(p); err == nil {
				abs = append(abs, ap)
			}
		}
		return r.ParentFor(hostname, abs)
	default:
		return r.ResolveSnapshot(spec)
	}
}
