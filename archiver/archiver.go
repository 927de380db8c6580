// archiver/archiver.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

// Package archiver turns a filesystem subtree into a snapshot: a single
// walker scans directories depth-first, unchanged files are reused from
// the parent snapshot, changed files are chunked and stored by a pool of
// workers, and trees are emitted bottom-up. The snapshot object is written
// only after all packs and their index coverage are durable.
package archiver

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/strata-backup/strata/chunker"
	"github.com/strata-backup/strata/filter"
	"github.com/strata-backup/strata/model"
	"github.com/strata-backup/strata/repo"
	"github.com/strata-backup/strata/util"
)

// Options controls one snapshot run.
type Options struct {
	Tags        []string
	Description string
	Include     []string
	Exclude     []string

	// DryRun walks, diffs, and chunks changed files to report planned
	// work, but writes nothing to the backend.
	DryRun bool

	// FullScan re-chunks every file even when the parent snapshot entry
	// looks unchanged. Chunk-level dedup still avoids storage cost.
	FullScan bool

	// FileWorkers is the number of concurrent chunk-and-store workers.
	// Zero means one per CPU.
	FileWorkers int
}

// SkippedFile records a path that could not be archived. The snapshot
// still commits with the file omitted.
type SkippedFile struct {
	Path string
	Err  error
}

// Summary reports what one snapshot run did.
type Summary struct {
	FilesNew       int
	FilesChanged   int
	FilesUnchanged int
	Dirs           int
	BlobsAdded     int
	BytesProcessed int64
	BytesStored    int64
	Skipped        []SkippedFile
}

// ErrCancelled is returned when the run was cancelled. In-flight pack
// uploads run to completion; any orphaned blobs are removed by a later gc.
var ErrCancelled = errors.New("snapshot cancelled")

// Archiver creates snapshots in a repository.
type Archiver struct {
	repo  *repo.Repository
	opts  Options
	rules *filter.Rules

	jobs   chan *fileJob
	cancel chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	sum     Summary
	fatal   error
	drySeen map[model.ID]struct{}

	users  map[uint32]string
	groups map[uint32]string
}

// New builds an archiver for one snapshot run.
func New(r *repo.Repository, opts Options) (*Archiver, error) {
	rules, err := filter.New(opts.Include, opts.Exclude)
	if err != nil {
		return nil, err
	}
	if opts.FileWorkers <= 0 {
		opts.FileWorkers = runtime.GOMAXPROCS(0)
	}
	return &Archiver{
		repo:    r,
		opts:    opts,
		rules:   rules,
		cancel:  make(chan struct{}),
		drySeen: make(map[model.ID]struct{}),
		users:   make(map[uint32]string),
		groups:  make(map[uint32]string),
	}, nil
}

// Cancel asks a running snapshot to stop at the next queue boundary.
func (a *Archiver) Cancel() {
	select {
	case <-a.cancel:
	default:
		close(a.cancel)
	}
}

func (a *Archiver) cancelled() bool {
	select {
	case <-a.cancel:
		return true
	default:
		return false
	}
}

func (a *Archiver) setFatal(err error) {
	a.mu.Lock()
	if a.fatal == nil {
		a.fatal = err
	}
	a.mu.Unlock()
	a.Cancel()
}

func (a *Archiver) skip(path string, err error) {
	log.Errorf("%s: %v", path, err)
	a.mu.Lock()
	a.sum.Skipped = append(a.sum.Skipped, SkippedFile{Path: path, Err: err})
	a.mu.Unlock()
}

// Snapshot archives the given paths and commits a snapshot referencing
// them. parent may be nil for a full (non-incremental) run.
func (a *Archiver) Snapshot(paths []string, parent *model.Snapshot) (*model.Snapshot, *Summary, error) {
	start := time.Now()

	abs := make([]string, 0, len(paths))
	for _, p := range paths {
		ap, err := filepath.Abs(p)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "resolving %s", p)
		}
		abs = append(abs, filepath.Clean(ap))
	}
	sort.Strings(abs)

	// Parent root tree, for the differ.
	var parentRoot *model.Tree
	if parent != nil {
		var err error
		parentRoot, err = a.repo.LoadTree(parent.Tree)
		if err != nil {
			log.Warnf("parent snapshot tree unusable, doing full scan: %v", err)
			parentRoot = nil
		}
	}

	a.jobs = make(chan *fileJob, 2*a.opts.FileWorkers)
	for i := 0; i < a.opts.FileWorkers; i++ {
		a.wg.Add(1)
		go a.fileWorker()
	}

	root := &model.Tree{}
	walkErr := func() error {
		defer close(a.jobs)
		for _, p := range abs {
			if a.cancelled() {
				return ErrCancelled
			}
			fi, err := os.Lstat(p)
			if err != nil {
				a.skip(p, err)
				continue
			}
			node := a.newNode(filepath.ToSlash(p), fi)
			var parentNode *model.Node
			if parentRoot != nil {
				parentNode = parentRoot.Find(node.Name)
			}
			if err := a.archiveNode(p, node, parentNode, root); err != nil {
				return err
			}
		}
		return nil
	}()
	a.wg.Wait()

	a.mu.Lock()
	fatal := a.fatal
	a.mu.Unlock()
	if walkErr == nil && fatal != nil {
		walkErr = fatal
	}
	if walkErr != nil {
		return nil, nil, walkErr
	}

	rootID, err := a.saveTree(root)
	if err != nil {
		return nil, nil, err
	}

	sn := &model.Snapshot{
		Version:     model.SnapshotVersion,
		Time:        time.Now(),
		Paths:       abs,
		Tags:        a.opts.Tags,
		Description: a.opts.Description,
		Tree:        rootID,
	}
	if hostname, err := os.Hostname(); err == nil {
		sn.Hostname = hostname
	}
	if parent != nil {
		pid := parent.ID()
		sn.Parent = &pid
	}

	if a.opts.DryRun {
		log.Infof("dry run finished in %s: %d new, %d changed, %d unchanged files, %s to store",
			time.Since(start).Round(time.Millisecond), a.sum.FilesNew,
			a.sum.FilesChanged, a.sum.FilesUnchanged,
			util.FmtBytes(a.sum.BytesStored))
		return sn, &a.sum, nil
	}

	// Commit point: packs and index coverage must be durable before the
	// snapshot object exists.
	if err := a.repo.Flush(); err != nil {
		return nil, nil, err
	}
	if _, err := a.repo.SaveSnapshot(sn); err != nil {
		return nil, nil, err
	}

	log.Infof("snapshot %s created in %s: %d new, %d changed, %d unchanged files, %s stored",
		sn.ID().Short(), time.Since(start).Round(time.Millisecond),
		a.sum.FilesNew, a.sum.FilesChanged, a.sum.FilesUnchanged,
		util.FmtBytes(a.sum.BytesStored))
	return sn, &a.sum, nil
}

// archiveNode dispatches one scanned entry into the output tree. fsPath is
// the on-disk path; node.Name is already set to the in-snapshot name.
func (a *Archiver) archiveNode(fsPath string, node *model.Node, parentNode *model.Node, out *model.Tree) error {
	switch node.Type {
	case model.NodeDir:
		var parentTree *model.Tree
		if parentNode != nil && parentNode.Type == model.NodeDir {
			t, err := a.repo.LoadTree(parentNode.Subtree)
			if err != nil {
				log.Warnf("%s: parent tree unusable: %v", fsPath, err)
			} else {
				parentTree = t
			}
		}
		subtree, err := a.archiveDir(fsPath, node.Name, parentTree)
		if err != nil {
			return err
		}
		node.Subtree = subtree
		a.mu.Lock()
		a.sum.Dirs++
		a.mu.Unlock()
		out.Insert(*node)

	case model.NodeFile:
		a.archiveFile(fsPath, node, parentNode, out)

	case model.NodeSymlink:
		target, err := os.Readlink(fsPath)
		if err != nil {
			a.skip(fsPath, err)
			return nil
		}
		node.Target = target
		out.Insert(*node)

	default:
		// Devices, fifos, and sockets carry metadata only.
		out.Insert(*node)
	}
	return nil
}

// archiveDir scans one directory, recursing into subdirectories and
// queueing changed files for the workers, then emits the directory's tree.
func (a *Archiver) archiveDir(fsPath, snap string, parentTree *model.Tree) (model.ID, error) {
	entries, err := os.ReadDir(fsPath)
	if err != nil {
		a.skip(fsPath, err)
		return a.saveTree(&model.Tree{})
	}

	tree := &model.Tree{}
	var pending []*fileJob

	for _, entry := range entries {
		if a.cancelled() {
			return model.ID{}, ErrCancelled
		}

		childFS := filepath.Join(fsPath, entry.Name())
		childSnap := snap + "/" + entry.Name()

		fi, err := entry.Info()
		if err != nil {
			a.skip(childFS, err)
			continue
		}
		node := a.newNode(entry.Name(), fi)

		if node.Type == model.NodeDir {
			if !a.rules.TraverseDir(childSnap) {
				log.Debugf("%s: excluded", childSnap)
				continue
			}
		} else if !a.rules.Selected(childSnap) {
			log.Debugf("%s: excluded", childSnap)
			continue
		}

		var parentNode *model.Node
		if parentTree != nil {
			parentNode = parentTree.Find(node.Name)
		}

		if node.Type == model.NodeFile {
			if job := a.queueFile(childFS, node, parentNode); job != nil {
				pending = append(pending, job)
			} else if node.Content != nil || node.Size == 0 {
				tree.Insert(*node)
			}
			continue
		}
		if err := a.archiveNode(childFS, node, parentNode, tree); err != nil {
			return model.ID{}, err
		}
	}

	// Wait for this directory's files before encoding its tree.
	for _, job := range pending {
		<-job.done
		if job.skipped != nil {
			a.skip(job.fsPath, job.skipped)
			continue
		}
		tree.Insert(*job.node)
	}

	if a.cancelled() {
		return model.ID{}, ErrCancelled
	}
	return a.saveTree(tree)
}

// queueFile decides between reuse and re-chunking. It returns a queued job
// for files that need reading, or nil when the parent entry was reused (or
// the file is empty).
func (a *Archiver) queueFile(fsPath string, node *model.Node, parentNode *model.Node) *fileJob {
	if parentNode != nil && !a.opts.FullScan && unchanged(node, parentNode) {
		node.Content = parentNode.Content
		a.mu.Lock()
		a.sum.FilesUnchanged++
		a.mu.Unlock()
		return nil
	}

	a.mu.Lock()
	if parentNode != nil {
		a.sum.FilesChanged++
	} else {
		a.sum.FilesNew++
	}
	a.mu.Unlock()

	if node.Size == 0 {
		return nil
	}

	job := &fileJob{fsPath: fsPath, node: node, done: make(chan struct{})}
	a.jobs <- job
	return job
}

// unchanged is the incrementality predicate: a file is reused from the
// parent snapshot iff name, size, mtime (ns), mode, uid and gid all match.
func unchanged(node, parentNode *model.Node) bool {
	return parentNode.Type == model.NodeFile &&
		node.Size == parentNode.Size &&
		node.MTime == parentNode.MTime &&
		node.Mode == parentNode.Mode &&
		node.UID == parentNode.UID &&
		node.GID == parentNode.GID
}

///////////////////////////////////////////////////////////////////////////
// File workers

type fileJob struct {
	fsPath string
	node   *model.Node

	// skipped is set when the file could not be read; the file is then
	// omitted from the snapshot and reported. Partial content is never
	// committed.
	skipped error

	done chan struct{}
}

func (a *Archiver) fileWorker() {
	defer a.wg.Done()
	for job := range a.jobs {
		if a.cancelled() {
			job.skipped = ErrCancelled
			close(job.done)
			continue
		}
		a.processFile(job)
		close(job.done)
	}
}

// processFile streams one file through the chunker and stores its chunks.
func (a *Archiver) processFile(job *fileJob) {
	f, err := os.Open(job.fsPath)
	if err != nil {
		job.skipped = err
		return
	}
	defer f.Close()

	// The progress wrapper logs bytes and chunk counts for large files.
	src := newProgressReader(bufio.NewReaderSize(f, 1<<20), job.fsPath)
	ch := chunker.New(src, a.repo.Gear())
	var content []model.ID
	for {
		chunk, err := ch.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			job.skipped = err
			return
		}
		src.chunkCut()

		a.mu.Lock()
		a.sum.BytesProcessed += int64(len(chunk.Data))
		a.mu.Unlock()

		id, err := a.saveChunk(chunk.Data)
		if err != nil {
			a.setFatal(err)
			job.skipped = err
			return
		}
		content = append(content, id)
	}
	job.node.Content = content
}

func (a *Archiver) saveChunk(data []byte) (model.ID, error) {
	if a.opts.DryRun {
		id := model.Hash(data)
		a.mu.Lock()
		if _, seen := a.drySeen[id]; !seen && !a.repo.HasBlob(id) {
			a.drySeen[id] = struct{}{}
			a.sum.BlobsAdded++
			a.sum.BytesStored += int64(len(data))
		}
		a.mu.Unlock()
		return id, nil
	}

	id, stored, err := a.repo.SaveBlob(model.DataBlob, data)
	if err != nil {
		return model.ID{}, err
	}
	if stored {
		a.mu.Lock()
		a.sum.BlobsAdded++
		a.sum.BytesStored += int64(len(data))
		a.mu.Unlock()
	}
	return id, nil
}

// saveTree stores a tree, or just derives its id during a dry run.
func (a *Archiver) saveTree(t *model.Tree) (model.ID, error) {
	if a.opts.DryRun {
		b, err := t.Encode()
		if err != nil {
			return model.ID{}, err
		}
		return model.Hash(b), nil
	}
	return a.repo.SaveTree(t)
}

// archiveFile queues one file and waits for its chunks; used for files
// given directly as snapshot roots.
func (a *Archiver) archiveFile(fsPath string, node, parentNode *model.Node, out *model.Tree) {
	job := a.queueFile(fsPath, node, parentNode)
	if job == nil {
		if node.Content != nil || node.Size == 0 {
			out.Insert(*node)
		}
		return
	}
	<-job.done
	if job.skipped != nil {
		a.skip(fsPath, job.skipped)
		return
	}
	out.Insert(*job.node)
}
