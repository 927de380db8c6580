// repo/verify.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package repo

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/strata-backup/strata/backend"
	"github.com/strata-backup/strata/model"
	"github.com/strata-backup/strata/pack"
)

// VerifyReport summarises a verification run.
type VerifyReport struct {
	Snapshots int
	Trees     int
	DataBlobs int
	Packs     int
	Problems  []string
}

func (v *VerifyReport) problemf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Error(msg)
	v.Problems = append(v.Problems, msg)
}

// OK reports whether verification found no problems.
func (v *VerifyReport) OK() bool { return len(v.Problems) == 0 }

// Verify walks every snapshot's tree graph, re-fetches every referenced
// blob, and checks authentication and plaintext hashes. With deep set it
// additionally downloads every pack in full, re-hashes its blob section
// against the pack id, and re-opens its manifest.
func (r *Repository) Verify(deep bool) (*VerifyReport, error) {
	report := &VerifyReport{}

	snapshots, err := r.ListSnapshots()
	if err != nil {
		return nil, err
	}
	report.Snapshots = len(snapshots)

	seenTrees := make(map[model.ID]struct{})
	seenData := make(map[model.ID]struct{})

	for _, sn := range snapshots {
		log.Infof("verifying snapshot %s", sn.ID().Short())
		r.verifyTree(sn.Tree, seenTrees, seenData, report)
	}

	if deep {
		err := r.be.List(backend.PackKind, func(name string) error {
			packID, err := model.ParseID(name)
			if err != nil {
				report.problemf("pack with invalid name %q", name)
				return nil
			}
			report.Packs++
			data, err := r.be.Get(backend.PackKind, name, 0, 0)
			if err != nil {
				report.problemf("pack %s unreadable: %v", packID.Short(), err)
				return nil
			}
			if err := pack.VerifyBlobSection(data, packID); err != nil {
				report.problemf("%v", err)
			}
			if _, err := pack.ParseManifest(data, packID, r.key); err != nil {
				report.problemf("%v", err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return report, nil
}

func (r *Repository) verifyTree(id model.ID, seenTrees, seenData map[model.ID]struct{}, report *VerifyReport) {
	if _, ok := seenTrees[id]; ok {
		return
	}
	seenTrees[id] = struct{}{}
	report.Trees++

	tree, err := r.LoadTree(id)
	if err != nil {
		report.problemf("tree %s: %v", id.Short(), err)
		return
	}

	for _, node := range tree.Nodes {
		switch node.Type {
		case model.NodeDir:
			r.verifyTree(node.Subtree, seenTrees, seenData, report)
		case model.NodeFile:
			for _, chunk := range node.Content {
				if _, ok := seenData[chunk]; ok {
					continue
				}
				seenData[chunk] = struct{}{}
				report.DataBlobs++
				// LoadBlob authenticates and re-hashes the plaintext.
				if _, err := r.LoadBlob(model.DataBlob, chunk); err != nil {
					report.problemf("file %s chunk %s: %v", node.Name, chunk.Short(), err)
				}
			}
		}
	}
}
