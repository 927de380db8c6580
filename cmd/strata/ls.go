// cmd/strata/ls.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/docopt/docopt-go"

	"github.com/strata-backup/strata/model"
	"github.com/strata-backup/strata/repo"
)

func cmdLs(opts docopt.Opts) int {
	spec, _ := opts.String("<id>")
	prefix, _ := opts.String("<path>")

	r, err := openRepo(opts)
	if err != nil {
		return fail(err)
	}
	defer r.Close()

	sn, err := r.ResolveSnapshot(spec)
	if err != nil {
		return fail(err)
	}
	root, err := r.LoadTree(sn.Tree)
	if err != nil {
		return fail(err)
	}

	for _, node := range root.Nodes {
		if err := lsNode(r, node, node.Name, prefix); err != nil {
			return fail(err)
		}
	}
	return 0
}

func lsNode(r *repo.Repository, node model.Node, path, prefix string) error {
	show := prefix == "" || strings.HasPrefix(path, prefix) ||
		strings.HasPrefix(prefix, path)
	if !show {
		return nil
	}
	if prefix == "" || strings.HasPrefix(path, prefix) {
		printNode(node, path)
	}

	if node.Type != model.NodeDir {
		return nil
	}
	tree, err := r.LoadTree(node.Subtree)
	if err != nil {
		return err
	}
	for _, child := range tree.Nodes {
		if err := lsNode(r, child, path+"/"+child.Name, prefix); err != nil {
			return err
		}
	}
	return nil
}

func printNode(node model.Node, path string) {
	mode := os.FileMode(node.Mode & 07777)
	switch node.Type {
	case model.NodeDir:
		mode |= os.ModeDir
	case model.NodeSymlink:
		mode |= os.ModeSymlink
	case model.NodeFifo:
		mode |= os.ModeNamedPipe
	case model.NodeDevice:
		mode |= os.ModeDevice
	case model.NodeCharDevice:
		mode |= os.ModeDevice | os.ModeCharDevice
	case model.NodeSocket:
		mode |= os.ModeSocket
	}

	line := fmt.Sprintf("%s %10d %s  %s", mode,
		node.Size, time.Unix(0, node.MTime).Format("2006-01-02 15:04:05"), path)
	if node.Type == model.NodeSymlink {
		line += " -> " + node.Target
	}
	fmt.Println(line)
}
