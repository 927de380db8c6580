// backend/local.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package backend

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/pkg/errors"
)

// Local stores repository objects in a directory tree on the local
// filesystem, laid out as
//
//	<root>/config
//	<root>/keys/<id>
//	<root>/snapshots/<id>
//	<root>/packs/<aa>/<id>
//	<root>/index/<id>
//	<root>/locks/<id>
type Local struct {
	root string
}

// NewLocal returns a backend rooted at the given directory. The directory
// is created if it does not exist.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, errors.Wrapf(err, "creating repository directory %s", root)
	}
	return &Local{root: root}, nil
}

func (l *Local) path(kind Kind, id string) string {
	if kind == ConfigKind {
		return filepath.Join(l.root, "config")
	}
	if kind.Sharded() {
		return filepath.Join(l.root, kind.Dir(), id[:2], id)
	}
	return filepath.Join(l.root, kind.Dir(), id)
}

func (l *Local) Put(kind Kind, id string, data []byte) error {
	path := l.path(kind, id)
	if _, err := os.Lstat(path); err == nil {
		return errors.Wrapf(ErrExists, "%s/%s", kind, id)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.Wrapf(err, "creating directory for %s/%s", kind, id)
	}
	// renameio lands the bytes under a temporary name in the same
	// directory and renames, so a crashed Put never leaves a partial
	// object under the final name.
	if err := renameio.WriteFile(path, data, 0600); err != nil {
		return errors.Wrapf(err, "writing %s/%s", kind, id)
	}
	return nil
}

func (l *Local) Get(kind Kind, id string, offset, length int64) ([]byte, error) {
	f, err := os.Open(l.path(kind, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotExist, "%s/%s", kind, id)
		}
		return nil, errors.Wrapf(err, "opening %s/%s", kind, id)
	}
	defer f.Close()

	if length == 0 && offset == 0 {
		b, err := io.ReadAll(f)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s/%s", kind, id)
		}
		return b, nil
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, errors.Wrapf(err, "seeking in %s/%s", kind, id)
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(f, b); err != nil {
		return nil, errors.Wrapf(err, "reading %d bytes at %d from %s/%s",
			length, offset, kind, id)
	}
	return b, nil
}

func (l *Local) List(kind Kind, fn func(id string) error) error {
	if kind == ConfigKind {
		if _, err := os.Lstat(l.path(kind, "")); err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		return fn("config")
	}

	dir := filepath.Join(l.root, kind.Dir())
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "listing %s", dir)
	}

	for _, e := range entries {
		if kind.Sharded() && e.IsDir() {
			sub, err := os.ReadDir(filepath.Join(dir, e.Name()))
			if err != nil {
				return errors.Wrapf(err, "listing %s/%s", dir, e.Name())
			}
			for _, se := range sub {
				if se.IsDir() {
					continue
				}
				if err := fn(se.Name()); err != nil {
					return err
				}
			}
			continue
		}
		if e.IsDir() {
			continue
		}
		if err := fn(e.Name()); err != nil {
			return err
		}
	}
	return nil
}

func (l *Local) Remove(kind Kind, id string) error {
	err := os.Remove(l.path(kind, id))
	if os.IsNotExist(err) {
		return errors.Wrapf(ErrNotExist, "%s/%s", kind, id)
	}
	return err
}

// Has avoids a directory listing for existence checks.
func (l *Local) Has(kind Kind, id string) (bool, error) {
	_, err := os.Lstat(l.path(kind, id))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (l *Local) Location() string {
	return "local:" + l.root
}

func (l *Local) Close() error {
	return nil
}
