// repo/errors.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package repo

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/strata-backup/strata/model"
)

var (
	// ErrNoRepository means the location holds no repository config.
	ErrNoRepository = errors.New("no repository found")

	// ErrRepoExists is returned by Init when the location already holds a
	// repository.
	ErrRepoExists = errors.New("repository already exists")

	// ErrBadPassword means no key object unwrapped with the supplied
	// passphrase. Indistinguishable from corruption of every key object,
	// which is why it is only reported after all keys were tried.
	ErrBadPassword = errors.New("wrong password or no usable key found")

	// ErrNotFound means a requested object is not in the repository.
	ErrNotFound = errors.New("object not found")
)

// LockedError reports that another process holds the repository lock.
type LockedError struct {
	Holder  string
	Age     string
	Expired bool
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("repository is locked by %s (age %s)", e.Holder, e.Age)
}

// CorruptError reports an object that failed authentication, hashing, or
// structural validation. The operation it surfaced from must be aborted.
type CorruptError struct {
	ID     model.ID
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("repository corrupt: object %s: %s", e.ID, e.Reason)
}

func corruptf(id model.ID, format string, args ...interface{}) error {
	return &CorruptError{ID: id, Reason: fmt.Sprintf(format, args...)}
}

// IsCorrupt reports whether err is (or wraps) a corruption error.
func IsCorrupt(err error) bool {
	var ce *CorruptError
	return errors.As(err, &ce)
}
