// backend/retry.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package backend

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Retry wraps a backend and retries transient failures with bounded
// exponential backoff. ErrExists and ErrNotExist are never retried; they
// are answers, not failures.
type Retry struct {
	be       Backend
	attempts int
	delay    time.Duration
}

// NewRetry wraps be with the default policy of 5 attempts starting at a
// 500ms backoff.
func NewRetry(be Backend) *Retry {
	return &Retry{be: be, attempts: 5, delay: 500 * time.Millisecond}
}

func permanent(err error) bool {
	return err == nil ||
		errors.Is(err, ErrExists) ||
		errors.Is(err, ErrNotExist)
}

func (r *Retry) retry(op string, fn func() error) error {
	var err error
	delay := r.delay
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			log.Warnf("%s: attempt %d failed, retrying in %s: %v",
				op, attempt, delay, err)
			time.Sleep(delay)
			delay *= 2
		}
		err = fn()
		if permanent(err) {
			return err
		}
	}
	return errors.Wrapf(err, "%s: giving up after %d attempts", op, r.attempts)
}

func (r *Retry) Put(kind Kind, id string, data []byte) error {
	first := true
	return r.retry("put "+kind.String()+"/"+id, func() error {
		err := r.be.Put(kind, id, data)
		// If an earlier attempt failed after the object landed, the retry
		// sees ErrExists. Objects are immutable and content-addressed, so
		// the bytes are the same ones we tried to write: success.
		if errors.Is(err, ErrExists) && !first {
			return nil
		}
		first = false
		return err
	})
}

func (r *Retry) Get(kind Kind, id string, offset, length int64) ([]byte, error) {
	var b []byte
	err := r.retry("get "+kind.String()+"/"+id, func() error {
		var err error
		b, err = r.be.Get(kind, id, offset, length)
		return err
	})
	return b, err
}

func (r *Retry) List(kind Kind, fn func(id string) error) error {
	// List callbacks aren't idempotent in general, so only the listing
	// itself is retried: ids are collected first, then delivered once.
	var ids []string
	err := r.retry("list "+kind.String(), func() error {
		ids = ids[:0]
		return r.be.List(kind, func(id string) error {
			ids = append(ids, id)
			return nil
		})
	})
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}

func (r *Retry) Remove(kind Kind, id string) error {
	return r.retry("remove "+kind.String()+"/"+id, func() error {
		return r.be.Remove(kind, id)
	})
}

func (r *Retry) Has(kind Kind, id string) (bool, error) {
	var ok bool
	err := r.retry("stat "+kind.String()+"/"+id, func() error {
		var err error
		ok, err = Has(r.be, kind, id)
		return err
	})
	return ok, err
}

func (r *Retry) Location() string {
	return r.be.Location()
}

func (r *Retry) Close() error {
	return r.be.Close()
}
