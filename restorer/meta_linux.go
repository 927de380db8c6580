// restorer/meta_linux.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

//go:build linux

package restorer

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/strata-backup/strata/model"
)

// applyMetadata restores mode, ownership, and timestamps. Ownership is
// best-effort: without privileges chown fails with EPERM and the restore
// carries on.
func applyMetadata(path string, node *model.Node, symlink bool) error {
	if err := unix.Lchown(path, int(node.UID), int(node.GID)); err != nil {
		if err != unix.EPERM && err != unix.EINVAL {
			return err
		}
		log.Debugf("%s: cannot restore ownership: %v", path, err)
	}

	if !symlink {
		if err := os.Chmod(path, os.FileMode(node.Mode&07777)); err != nil {
			return err
		}
	}

	mtime := time.Unix(0, node.MTime)
	atime := mtime
	if node.ATime != 0 {
		atime = time.Unix(0, node.ATime)
	}
	times := []unix.Timespec{
		unix.NsecToTimespec(atime.UnixNano()),
		unix.NsecToTimespec(mtime.UnixNano()),
	}
	return unix.UtimesNanoAt(unix.AT_FDCWD, path, times, unix.AT_SYMLINK_NOFOLLOW)
}

// restoreSpecial recreates fifos and device nodes. Device creation needs
// privileges; failures are surfaced to the caller.
func restoreSpecial(path string, node *model.Node) error {
	if _, err := os.Lstat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return err
		}
	}

	mode := node.Mode & 07777
	switch node.Type {
	case model.NodeFifo:
		if err := unix.Mkfifo(path, mode); err != nil {
			return err
		}
	case model.NodeDevice:
		if err := unix.Mknod(path, mode|unix.S_IFBLK, int(node.Rdev)); err != nil {
			return err
		}
	case model.NodeCharDevice:
		if err := unix.Mknod(path, mode|unix.S_IFCHR, int(node.Rdev)); err != nil {
			return err
		}
	}
	return applyMetadata(path, node, false)
}
