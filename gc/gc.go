// gc/gc.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package gc

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/strata-backup/strata/model"
	"github.com/strata-backup/strata/repo"
	"github.com/strata-backup/strata/util"
)

// DefaultRepackThreshold is the live fraction below which a pack is
// rewritten rather than kept.
const DefaultRepackThreshold = 0.6

// repackWorkers bounds concurrent blob fetches while repacking.
const repackWorkers = 4

// Options tunes a collection run.
type Options struct {
	// RepackThreshold is the live-bytes fraction under which a partially
	// dead pack is repacked. Zero means DefaultRepackThreshold.
	RepackThreshold float64
}

// Result summarises a collection run.
type Result struct {
	Snapshots        int
	LiveBlobs        int
	PacksKept        int
	PacksDeleted     int
	PacksRepacked    int
	BlobsRepacked    int
	BytesReclaimed   int64
	IndexesRewritten int
}

// Run garbage-collects the repository: everything reachable from a
// snapshot stays, fully dead packs are deleted, and packs whose live
// fraction is under the threshold are repacked. The caller must hold the
// repository lock.
//
// Interruption safety: old packs and old index objects are deleted only
// after the new packs and the index objects covering them are durable on
// the backend. A crash mid-run leaves duplicate blobs at worst, which the
// next run collects.
func Run(r *repo.Repository, opts Options) (*Result, error) {
	threshold := opts.RepackThreshold
	if threshold == 0 {
		threshold = DefaultRepackThreshold
	}

	res := &Result{}

	// Mark. Roots are the snapshot objects; the live set is every tree
	// and data blob reachable from them.
	live, nsnap, err := mark(r)
	if err != nil {
		return nil, err
	}
	res.Snapshots = nsnap
	res.LiveBlobs = len(live)

	// Sweep: classify each pack by its live fraction. A blob that exists
	// in several packs only counts as live where the index resolves it.
	var deadPacks, repackPacks []model.ID
	idx := r.Index()
	for _, packID := range idx.Packs() {
		entries := idx.PackEntries(packID)
		var total, liveBytes int64
		for _, e := range entries {
			total += int64(e.Length)
			if _, ok := live[e.ID]; !ok {
				continue
			}
			if loc, ok := idx.Lookup(e.ID); ok && loc.PackID == packID {
				liveBytes += int64(e.Length)
			}
		}

		switch {
		case liveBytes == 0:
			deadPacks = append(deadPacks, packID)
			res.BytesReclaimed += total
		case float64(liveBytes)/float64(total) < threshold:
			repackPacks = append(repackPacks, packID)
			res.BytesReclaimed += total - liveBytes
		default:
			res.PacksKept++
		}
	}

	// Repack: stream live blobs of mostly-dead packs into fresh packs.
	// The index then resolves those blobs to their new location. Fetches
	// run in parallel; the pack writer itself serialises appends.
	g := new(errgroup.Group)
	g.SetLimit(repackWorkers)
	for _, packID := range repackPacks {
		for _, e := range idx.PackEntries(packID) {
			if _, ok := live[e.ID]; !ok {
				continue
			}
			loc, ok := idx.Lookup(e.ID)
			if !ok || loc.PackID != packID {
				continue
			}
			res.BlobsRepacked++
			e := e
			g.Go(func() error {
				plain, err := r.LoadBlob(e.Type, e.ID)
				if err != nil {
					return errors.Wrapf(err, "repacking blob %s", e.ID)
				}
				_, err = r.RepackBlob(e.Type, plain)
				return errors.Wrapf(err, "repacking blob %s", e.ID)
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Make the new packs and their index coverage durable before touching
	// anything old.
	if err := r.Flush(); err != nil {
		return nil, err
	}

	// Rewrite index objects whose packs are going away, covering only the
	// survivors, then drop the old objects and finally the packs.
	removed := make(map[model.ID]bool)
	for _, p := range deadPacks {
		removed[p] = true
	}
	for _, p := range repackPacks {
		removed[p] = true
	}

	for fileID, packs := range idx.Files() {
		touched := false
		var surviving []model.ID
		for _, p := range packs {
			if removed[p] {
				touched = true
			} else {
				surviving = append(surviving, p)
			}
		}
		if !touched {
			continue
		}
		if len(surviving) > 0 {
			if _, err := r.WriteIndex(surviving); err != nil {
				return nil, err
			}
			res.IndexesRewritten++
		}
		if err := r.DeleteIndexFile(fileID); err != nil {
			return nil, err
		}
	}

	for _, packID := range deadPacks {
		if err := r.RemovePack(packID); err != nil {
			return nil, err
		}
		res.PacksDeleted++
	}
	for _, packID := range repackPacks {
		if err := r.RemovePack(packID); err != nil {
			return nil, err
		}
		res.PacksRepacked++
	}

	log.Infof("gc: %d snapshots, %d live blobs; deleted %d packs, repacked %d, reclaimed %s",
		res.Snapshots, res.LiveBlobs, res.PacksDeleted, res.PacksRepacked,
		util.FmtBytes(res.BytesReclaimed))
	return res, nil
}

// mark walks the snapshot graph breadth-first and returns the set of
// reachable blob ids. A referenced blob missing from the index aborts the
// collection: deleting anything in that state could destroy data.
func mark(r *repo.Repository) (map[model.ID]struct{}, int, error) {
	snapshots, err := r.ListSnapshots()
	if err != nil {
		return nil, 0, err
	}

	live := make(map[model.ID]struct{})
	var queue []model.ID
	for _, sn := range snapshots {
		if _, ok := live[sn.Tree]; !ok {
			live[sn.Tree] = struct{}{}
			queue = append(queue, sn.Tree)
		}
	}

	for len(queue) > 0 {
		treeID := queue[0]
		queue = queue[1:]

		tree, err := r.LoadTree(treeID)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "marking tree %s", treeID.Short())
		}
		for _, node := range tree.Nodes {
			switch node.Type {
			case model.NodeDir:
				if _, ok := live[node.Subtree]; !ok {
					live[node.Subtree] = struct{}{}
					queue = append(queue, node.Subtree)
				}
			case model.NodeFile:
				for _, chunk := range node.Content {
					if _, ok := live[chunk]; ok {
						continue
					}
					if !r.HasBlob(chunk) {
						return nil, 0, errors.Errorf(
							"snapshot references missing blob %s; refusing to collect", chunk)
					}
					live[chunk] = struct{}{}
				}
			}
		}
	}
	return live, len(snapshots), nil
}
