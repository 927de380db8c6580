// model/tree.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package model

import (
	"bytes"
	"sort"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"
)

// NodeType is the kind of filesystem entry a Node describes.
type NodeType uint8

const (
	NodeFile NodeType = iota + 1
	NodeDir
	NodeSymlink
	NodeDevice
	NodeCharDevice
	NodeFifo
	NodeSocket
)

func (t NodeType) String() string {
	switch t {
	case NodeFile:
		return "file"
	case NodeDir:
		return "dir"
	case NodeSymlink:
		return "symlink"
	case NodeDevice:
		return "dev"
	case NodeCharDevice:
		return "chardev"
	case NodeFifo:
		return "fifo"
	case NodeSocket:
		return "socket"
	default:
		return "invalid"
	}
}

// Node is one entry of a directory tree. Name holds the raw filesystem
// bytes of the entry name. For files, Content lists the chunk ids whose
// concatenation is the file's contents, in file-offset order. For
// directories, Subtree is the id of the child tree. Inode and Device
// identify hardlink groups within a single snapshot; a Links count above
// one marks the node as a hardlink candidate.
type Node struct {
	Name   string   `msgpack:"name"`
	Type   NodeType `msgpack:"type"`
	Mode   uint32   `msgpack:"mode"`
	UID    uint32   `msgpack:"uid"`
	GID    uint32   `msgpack:"gid"`
	User   string   `msgpack:"user,omitempty"`
	Group  string   `msgpack:"group,omitempty"`
	MTime  int64    `msgpack:"mtime"`
	ATime  int64    `msgpack:"atime"`
	CTime  int64    `msgpack:"ctime"`
	Size   uint64   `msgpack:"size,omitempty"`
	Target string   `msgpack:"target,omitempty"`
	Inode  uint64   `msgpack:"inode,omitempty"`
	Device uint64   `msgpack:"device,omitempty"`
	Links  uint64   `msgpack:"links,omitempty"`
	Rdev   uint64   `msgpack:"rdev,omitempty"`

	Content []ID `msgpack:"content,omitempty"`
	Subtree ID   `msgpack:"subtree,omitempty"`
}

// Tree is the canonical listing of one directory's entries.
type Tree struct {
	Nodes []Node `msgpack:"nodes"`
}

// Sort orders the entries byte-lexicographically by name, which the
// canonical encoding requires.
func (t *Tree) Sort() {
	sort.Slice(t.Nodes, func(i, j int) bool {
		return t.Nodes[i].Name < t.Nodes[j].Name
	})
}

// Insert adds a node, keeping the entries sorted.
func (t *Tree) Insert(n Node) {
	i := sort.Search(len(t.Nodes), func(i int) bool {
		return t.Nodes[i].Name >= n.Name
	})
	t.Nodes = append(t.Nodes, Node{})
	copy(t.Nodes[i+1:], t.Nodes[i:])
	t.Nodes[i] = n
}

// Find returns the node with the given name, or nil.
func (t *Tree) Find(name string) *Node {
	i := sort.Search(len(t.Nodes), func(i int) bool {
		return t.Nodes[i].Name >= name
	})
	if i < len(t.Nodes) && t.Nodes[i].Name == name {
		return &t.Nodes[i]
	}
	return nil
}

// Encode produces the canonical byte encoding of the tree. Entries are
// sorted by name; encoding the same logical tree always yields the same
// bytes, and therefore the same id.
func (t *Tree) Encode() ([]byte, error) {
	t.Sort()
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(t); err != nil {
		return nil, errors.Wrap(err, "encoding tree")
	}
	return buf.Bytes(), nil
}

// DecodeTree parses a canonically encoded tree.
func DecodeTree(b []byte) (*Tree, error) {
	var t Tree
	if err := msgpack.NewDecoder(bytes.NewReader(b)).Decode(&t); err != nil {
		return nil, errors.Wrap(err, "decoding tree")
	}
	return &t, nil
}
