// restorer/meta_other.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

//go:build !linux

package restorer

import (
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/strata-backup/strata/model"
)

// applyMetadata restores mode and mtime. Ownership and symlink timestamps
// are not portable beyond Linux and are skipped here.
func applyMetadata(path string, node *model.Node, symlink bool) error {
	if symlink {
		return nil
	}
	if err := os.Chmod(path, os.FileMode(node.Mode&07777)); err != nil {
		return err
	}
	mtime := time.Unix(0, node.MTime)
	atime := mtime
	if node.ATime != 0 {
		atime = time.Unix(0, node.ATime)
	}
	return os.Chtimes(path, atime, mtime)
}

// restoreSpecial is unsupported off Linux.
func restoreSpecial(path string, node *model.Node) error {
	return errors.Errorf("%s nodes are not restorable on this platform", node.Type)
}
