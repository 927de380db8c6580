// gc/forget.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

// Package gc removes snapshots by id or retention policy and reclaims the
// space their blobs occupied, by mark-and-sweep over the snapshot graph
// with repacking of mostly-dead packs.
package gc

import (
	"fmt"

	"github.com/strata-backup/strata/model"
)

// Policy is a snapshot retention policy: how many of the most recent
// snapshots to keep in each calendar bucket, plus tags that always keep a
// snapshot.
type Policy struct {
	KeepLast    int
	KeepHourly  int
	KeepDaily   int
	KeepWeekly  int
	KeepMonthly int
	KeepYearly  int
	KeepTags    []string
}

// Empty reports whether the policy keeps nothing by rule.
func (p Policy) Empty() bool {
	return p.KeepLast == 0 && p.KeepHourly == 0 && p.KeepDaily == 0 &&
		p.KeepWeekly == 0 && p.KeepMonthly == 0 && p.KeepYearly == 0 &&
		len(p.KeepTags) == 0
}

// KeepReason names the first rule that kept a snapshot.
type KeepReason string

// ApplyPolicy partitions snapshots (given oldest first, as ListSnapshots
// returns them) into kept and forgotten. Newest snapshots win bucket
// slots: a snapshot is kept when it is within the last-N window, is the
// newest of a still-open hour/day/week/month/year bucket, or carries a
// keep tag.
func ApplyPolicy(snapshots []*model.Snapshot, p Policy) (keep, forget []*model.Snapshot, reasons map[model.ID]KeepReason) {
	reasons = make(map[model.ID]KeepReason)

	type bucket struct {
		remaining int
		seen      map[string]bool
		key       func(sn *model.Snapshot) string
		name      string
	}
	buckets := []*bucket{
		{p.KeepHourly, map[string]bool{}, func(sn *model.Snapshot) string {
			return sn.Time.Format("2006-01-02 15")
		}, "hourly"},
		{p.KeepDaily, map[string]bool{}, func(sn *model.Snapshot) string {
			return sn.Time.Format("2006-01-02")
		}, "daily"},
		{p.KeepWeekly, map[string]bool{}, func(sn *model.Snapshot) string {
			y, w := sn.Time.ISOWeek()
			return fmt.Sprintf("%04d-w%02d", y, w)
		}, "weekly"},
		{p.KeepMonthly, map[string]bool{}, func(sn *model.Snapshot) string {
			return sn.Time.Format("2006-01")
		}, "monthly"},
		{p.KeepYearly, map[string]bool{}, func(sn *model.Snapshot) string {
			return sn.Time.Format("2006")
		}, "yearly"},
	}

	lastRemaining := p.KeepLast

	// Newest first, so the most recent snapshot of each bucket claims the
	// slot.
	for i := len(snapshots) - 1; i >= 0; i-- {
		sn := snapshots[i]
		var reason KeepReason

		if sn.HasAnyTag(p.KeepTags) {
			reason = "tag"
		}
		if reason == "" && lastRemaining > 0 {
			lastRemaining--
			reason = "last"
		}
		if reason == "" {
			for _, b := range buckets {
				if b.remaining <= 0 {
					continue
				}
				key := b.key(sn)
				if b.seen[key] {
					continue
				}
				b.seen[key] = true
				b.remaining--
				reason = KeepReason(b.name)
				break
			}
		}

		if reason != "" {
			reasons[sn.ID()] = reason
			keep = append(keep, sn)
		} else {
			forget = append(forget, sn)
		}
	}
	return keep, forget, reasons
}
