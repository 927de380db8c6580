// archiver/node_other.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

//go:build !linux

package archiver

import (
	"os"

	"github.com/strata-backup/strata/model"
)

// newNode builds a tree node from lstat metadata. Platforms without
// syscall.Stat_t support carry mode and mtime only.
func (a *Archiver) newNode(name string, fi os.FileInfo) *model.Node {
	node := &model.Node{
		Name:  name,
		Mode:  uint32(fi.Mode().Perm()),
		MTime: fi.ModTime().UnixNano(),
	}

	switch {
	case fi.Mode().IsRegular():
		node.Type = model.NodeFile
		node.Size = uint64(fi.Size())
	case fi.IsDir():
		node.Type = model.NodeDir
	case fi.Mode()&os.ModeSymlink != 0:
		node.Type = model.NodeSymlink
	case fi.Mode()&os.ModeCharDevice != 0:
		node.Type = model.NodeCharDevice
	case fi.Mode()&os.ModeDevice != 0:
		node.Type = model.NodeDevice
	case fi.Mode()&os.ModeNamedPipe != 0:
		node.Type = model.NodeFifo
	case fi.Mode()&os.ModeSocket != 0:
		node.Type = model.NodeSocket
	default:
		node.Type = model.NodeFile
	}

	return node
}
