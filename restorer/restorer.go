// restorer/restorer.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

// Package restorer materialises a snapshot back onto a filesystem:
// resolve the snapshot, traverse its trees depth-first, fetch and decrypt
// chunks with a bounded prefetch window, and apply metadata after content.
package restorer

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/strata-backup/strata/filter"
	"github.com/strata-backup/strata/model"
	"github.com/strata-backup/strata/repo"
	"github.com/strata-backup/strata/util"
)

// Options controls a restore run.
type Options struct {
	Include []string
	Exclude []string

	// ChunkFetchers bounds how many chunk fetches are in flight across
	// all files. Zero means the default of 16.
	ChunkFetchers int
}

// Summary reports what a restore did.
type Summary struct {
	Files    int
	Dirs     int
	Symlinks int
	Bytes    int64
	Errors   []error
}

// Restorer writes snapshots back to a target directory.
type Restorer struct {
	repo  *repo.Repository
	rules *filter.Rules
	gate  *util.Gate

	mu  sync.Mutex
	sum Summary

	// Hardlink groups are materialised after their first member's content
	// lands: the walker records the primary path per (device, inode) pair
	// and the remaining members become link() calls at the end.
	primaries map[hlKey]string
	links     []hlLink

	// Directory metadata is applied after all children exist, deepest
	// first, so restored mtimes aren't clobbered by writes inside.
	dirMeta []dirMeta

	wg sync.WaitGroup
}

type hlKey struct {
	device uint64
	inode  uint64
}

type hlLink struct {
	primary string
	path    string
	node    model.Node
}

type dirMeta struct {
	path string
	node model.Node
}

// New builds a restorer.
func New(r *repo.Repository, opts Options) (*Restorer, error) {
	rules, err := filter.New(opts.Include, opts.Exclude)
	if err != nil {
		return nil, err
	}
	if opts.ChunkFetchers <= 0 {
		opts.ChunkFetchers = 16
	}
	return &Restorer{
		repo:      r,
		rules:     rules,
		gate:      util.NewGate(opts.ChunkFetchers),
		primaries: make(map[hlKey]string),
	}, nil
}

func (r *Restorer) errorf(path string, err error) {
	log.Errorf("%s: %v", path, err)
	r.mu.Lock()
	r.sum.Errors = append(r.sum.Errors, errors.Wrap(err, path))
	r.mu.Unlock()
}

// Restore materialises the snapshot under target. Existing files are
// overwritten; existing directories are merged.
func (r *Restorer) Restore(sn *model.Snapshot, target string) (*Summary, error) {
	root, err := r.repo.LoadTree(sn.Tree)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(target, 0700); err != nil {
		return nil, errors.Wrapf(err, "creating target %s", target)
	}

	for _, node := range root.Nodes {
		// Root entries are named by their original absolute paths; they
		// are recreated as that directory structure under the target.
		dest := filepath.Join(target,
			filepath.FromSlash(strings.TrimPrefix(node.Name, "/")))
		if err := os.MkdirAll(filepath.Dir(dest), 0700); err != nil {
			r.errorf(dest, err)
			continue
		}
		r.restoreNode(node, node.Name, dest)
	}

	// Wait for all file content, then materialise hardlinks and finally
	// directory metadata, children before parents.
	r.wg.Wait()
	r.makeLinks()
	for i := len(r.dirMeta) - 1; i >= 0; i-- {
		dm := r.dirMeta[i]
		if err := applyMetadata(dm.path, &dm.node, false); err != nil {
			r.errorf(dm.path, err)
		}
	}

	log.Infof("restored %d files, %d dirs, %d symlinks, %s",
		r.sum.Files, r.sum.Dirs, r.sum.Symlinks, util.FmtBytes(r.sum.Bytes))
	return &r.sum, nil
}

func (r *Restorer) restoreNode(node model.Node, snapPath, dest string) {
	switch node.Type {
	case model.NodeDir:
		if !r.rules.TraverseDir(snapPath) {
			return
		}
		r.restoreDir(node, snapPath, dest)

	case model.NodeFile:
		if !r.rules.Selected(snapPath) {
			return
		}
		if node.Links > 1 {
			key := hlKey{node.Device, node.Inode}
			r.mu.Lock()
			primary, seen := r.primaries[key]
			if !seen {
				r.primaries[key] = dest
			} else {
				r.links = append(r.links, hlLink{primary: primary, path: dest, node: node})
			}
			r.mu.Unlock()
			if seen {
				return
			}
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.writeFile(node, dest); err != nil {
				r.errorf(dest, err)
			}
		}()

	case model.NodeSymlink:
		if !r.rules.Selected(snapPath) {
			return
		}
		r.restoreSymlink(node, dest)

	case model.NodeFifo, model.NodeDevice, model.NodeCharDevice:
		if !r.rules.Selected(snapPath) {
			return
		}
		if err := restoreSpecial(dest, &node); err != nil {
			r.errorf(dest, err)
		}

	default:
		log.Debugf("%s: skipping %s node", snapPath, node.Type)
	}
}

func (r *Restorer) restoreDir(node model.Node, snapPath, dest string) {
	// Merge into an existing directory; create with liberal permissions
	// first so children can be written, the stored mode lands with the
	// deferred metadata pass.
	if err := os.MkdirAll(dest, 0700); err != nil {
		r.errorf(dest, err)
		return
	}
	r.mu.Lock()
	r.sum.Dirs++
	r.dirMeta = append(r.dirMeta, dirMeta{path: dest, node: node})
	r.mu.Unlock()

	tree, err := r.repo.LoadTree(node.Subtree)
	if err != nil {
		r.errorf(dest, err)
		return
	}
	for _, child := range tree.Nodes {
		r.restoreNode(child, snapPath+"/"+child.Name, filepath.Join(dest, child.Name))
	}
}

func (r *Restorer) restoreSymlink(node model.Node, dest string) {
	// A stale entry at the destination would make Symlink fail.
	if _, err := os.Lstat(dest); err == nil {
		if err := os.Remove(dest); err != nil {
			r.errorf(dest, err)
			return
		}
	}
	if err := os.Symlink(node.Target, dest); err != nil {
		r.errorf(dest, err)
		return
	}
	if err := applyMetadata(dest, &node, true); err != nil {
		r.errorf(dest, err)
	}
	r.mu.Lock()
	r.sum.Symlinks++
	r.mu.Unlock()
}

// writeFile fetches the file's chunks in snapshot order, with prefetching
// bounded by the shared gate, and assembles them into the destination.
func (r *Restorer) writeFile(node model.Node, dest string) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}

	var written int64
	err = r.fetchChunks(node.Content, func(data []byte) error {
		n, err := f.Write(data)
		written += int64(n)
		return err
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	if err := applyMetadata(dest, &node, false); err != nil {
		return err
	}
	r.mu.Lock()
	r.sum.Files++
	r.sum.Bytes += written
	r.mu.Unlock()
	return nil
}

func (r *Restorer) makeLinks() {
	for _, l := range r.links {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			r.errorf(l.path, err)
			continue
		}
		if err := os.Link(l.primary, l.path); err == nil {
			r.mu.Lock()
			r.sum.Files++
			r.mu.Unlock()
			continue
		}
		// Filesystems without hardlink support get an independent copy.
		log.Debugf("%s: link failed, copying content instead", l.path)
		if err := r.writeFile(l.node, l.path); err != nil {
			r.errorf(l.path, err)
		}
	}
}
