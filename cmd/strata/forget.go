// cmd/strata/forget.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package main

import (
	"fmt"

	"github.com/docopt/docopt-go"
	log "github.com/sirupsen/logrus"

	"github.com/strata-backup/strata/gc"
	"github.com/strata-backup/strata/model"
)

func cmdForget(opts docopt.Opts) int {
	ids := stringList(opts, "<id>")
	policy := gc.Policy{
		KeepLast:    intOpt(opts, "--keep-last"),
		KeepHourly:  intOpt(opts, "--keep-hourly"),
		KeepDaily:   intOpt(opts, "--keep-daily"),
		KeepWeekly:  intOpt(opts, "--keep-weekly"),
		KeepMonthly: intOpt(opts, "--keep-monthly"),
		KeepYearly:  intOpt(opts, "--keep-yearly"),
		KeepTags:    stringList(opts, "--keep-tag"),
	}
	if len(ids) == 0 && policy.Empty() {
		log.Error("forget needs snapshot ids or a retention policy")
		return 1
	}

	r, err := openRepo(opts)
	if err != nil {
		return fail(err)
	}
	defer r.Close()

	if err := r.Lock(boolOpt(opts, "--force")); err != nil {
		return fail(err)
	}

	var forget []*model.Snapshot
	if len(ids) > 0 {
		for _, spec := range ids {
			sn, err := r.ResolveSnapshot(spec)
			if err != nil {
				return fail(err)
			}
			forget = append(forget, sn)
		}
	} else {
		snapshots, err := r.ListSnapshots()
		if err != nil {
			return fail(err)
		}
		var keep []*model.Snapshot
		var reasons map[model.ID]gc.KeepReason
		keep, forget, reasons = gc.ApplyPolicy(snapshots, policy)
		for _, sn := range keep {
			log.Infof("keeping %s (%s)", sn.ID().Short(), reasons[sn.ID()])
		}
	}

	for _, sn := range forget {
		if err := r.DeleteSnapshot(sn.ID()); err != nil {
			return fail(err)
		}
		fmt.Printf("forgot snapshot %s\n", sn.ID().Short())
	}

	if boolOpt(opts, "--gc") {
		res, err := gc.Run(r, gc.Options{})
		if err != nil {
			return fail(err)
		}
		printGCResult(res)
	}
	return 0
}

func intOpt(opts docopt.Opts, key string) int {
	n, err := opts.Int(key)
	if err != nil {
		return 0
	}
	return n
}
