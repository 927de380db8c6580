// archiver/node_linux.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

//go:build linux

package archiver

import (
	"os"
	"os/user"
	"strconv"
	"syscall"

	"github.com/strata-backup/strata/model"
)

// newNode builds a tree node from lstat metadata. name is the in-snapshot
// name (the entry name, or the full path for snapshot roots).
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

	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		node.Mode = uint32(st.Mode) & 07777
		node.UID = st.Uid
		node.GID = st.Gid
		node.ATime = st.Atim.Nano()
		node.CTime = st.Ctim.Nano()
		node.Inode = uint64(st.Ino)
		node.Device = uint64(st.Dev)
		node.Links = uint64(st.Nlink)
		if node.Type == model.NodeDevice || node.Type == model.NodeCharDevice {
			node.Rdev = uint64(st.Rdev)
		}
		node.User = a.lookupUser(st.Uid)
		node.Group = a.lookupGroup(st.Gid)
	}

	return node
}

func (a *Archiver) lookupUser(uid uint32) string {
	a.mu.Lock()
	name, ok := a.users[uid]
	a.mu.Unlock()
	if ok {
		return name
	}
	if u, err := user.LookupId(strconv.Itoa(int(uid))); err == nil {
		name = u.Username
	}
	a.mu.Lock()
	a.users[uid] = name
	a.mu.Unlock()
	return name
}

func (a *Archiver) lookupGroup(gid uint32) string {
	a.mu.Lock()
	name, ok := a.groups[gid]
	a.mu.Unlock()
	if ok {
		return name
	}
	if g, err := user.LookupGroupId(strconv.Itoa(int(gid))); err == nil {
		name = g.Name
	}
	a.mu.Lock()
	a.groups[gid] = name
	a.mu.Unlock()
	return name
}
