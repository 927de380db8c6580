// filter/filter.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

// Package filter evaluates include/exclude glob rules against slash-
// separated snapshot paths. Both the archiver and the restorer use it: the
// archiver against paths being scanned, the restorer against paths stored
// in a snapshot.
package filter

import (
	"path"
	"strings"

	"github.com/pkg/errors"
)

// Rules is a compiled include/exclude rule set. With no include patterns,
// everything not excluded is selected. With include patterns, only paths
// matching an include pattern (or contained in a matching directory) are
// selected; directories that might still lead to an included path are
// traversed.
type Rules struct {
	include []string
	exclude []string
}

// New validates the patterns and builds a rule set. Patterns containing a
// slash match against the whole path; bare patterns match against the
// final path element.
func New(include, exclude []string) (*Rules, error) {
	for _, p := range append(append([]string(nil), include...), exclude...) {
		if _, err := path.Match(p, "probe"); err != nil {
			return nil, errors.Wrapf(err, "invalid pattern %q", p)
		}
	}
	return &Rules{include: include, exclude: exclude}, nil
}

// Empty reports whether the rule set has no patterns at all.
func (r *Rules) Empty() bool {
	return len(r.include) == 0 && len(r.exclude) == 0
}

func match(pattern, p string) bool {
	p = strings.TrimPrefix(p, "/")
	if strings.Contains(pattern, "/") {
		ok, _ := path.Match(strings.TrimPrefix(pattern, "/"), p)
		return ok
	}
	ok, _ := path.Match(pattern, path.Base(p))
	return ok
}

// matchOrAncestor reports whether the pattern matches p or one of p's
// ancestor directories, i.e. whether p lives inside a matched directory.
func matchOrAncestor(pattern, p string) bool {
	for ; p != "" && p != "/" && p != "."; p = path.Dir(p) {
		if match(pattern, p) {
			return true
		}
	}
	return false
}

// mayDescend reports whether some path below the directory dir could still
// match the pattern. Patterns without a slash can match at any depth; for
// slash patterns the directory's elements must match a prefix of the
// pattern's elements.
func mayDescend(pattern, dir string) bool {
	if !strings.Contains(pattern, "/") {
		return true
	}
	pelems := strings.Split(strings.TrimPrefix(pattern, "/"), "/")
	delems := strings.Split(strings.TrimPrefix(dir, "/"), "/")
	if len(delems) > len(pelems) {
		return false
	}
	for i, d := range delems {
		ok, _ := path.Match(pelems[i], d)
		if !ok {
			return false
		}
	}
	return true
}

// Excluded reports whether the path is ruled out by an exclude pattern.
func (r *Rules) Excluded(p string) bool {
	for _, pattern := range r.exclude {
		if matchOrAncestor(pattern, p) {
			return true
		}
	}
	return false
}

// Selected reports whether a non-directory path should be processed.
func (r *Rules) Selected(p string) bool {
	if r.Excluded(p) {
		return false
	}
	if len(r.include) == 0 {
		return true
	}
	for _, pattern := range r.include {
		if matchOrAncestor(pattern, p) {
			return true
		}
	}
	return false
}

// TraverseDir reports whether a directory should be descended into: it is
// selected itself, or some include pattern could still match below it.
func (r *Rules) TraverseDir(p string) bool {
	if r.Excluded(p) {
		return false
	}
	if len(r.include) == 0 {
		return true
	}
	for _, pattern := range r.include {
		if matchOrAncestor(pattern, p) || mayDescend(pattern, p) {
			return true
		}
	}
	return false
}
