// restorer/fetcher.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package restorer

import (
	"github.com/strata-backup/strata/model"
)

// prefetchWindow is the queue depth of chunk fetches for one file: while
// one chunk is being assembled, up to prefetchWindow+1 further fetches may
// already be started (a full queue plus the one waiting to enter it).
const prefetchWindow = 4

type chunkResult struct {
	data []byte
	err  error
}

type chunkFuture struct {
	ch chan chunkResult
}

// fetchChunks retrieves the given chunks and delivers their plaintext to
// fn in order. Up to prefetchWindow+1 fetches run ahead of assembly for
// this file, each additionally bounded by the restorer's shared gate, so a
// slow backend limits total in-flight reads rather than growing memory.
func (r *Restorer) fetchChunks(ids []model.ID, fn func(data []byte) error) error {
	if len(ids) == 0 {
		return nil
	}

	futures := make(chan *chunkFuture, prefetchWindow)
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		defer close(futures)
		for _, id := range ids {
			fut := &chunkFuture{ch: make(chan chunkResult, 1)}
			go func(id model.ID) {
				r.gate.Run(func() {
					data, err := r.repo.LoadBlob(model.DataBlob, id)
					fut.ch <- chunkResult{data: data, err: err}
				})
			}(id)

			select {
			case futures <- fut:
			case <-stop:
				return
			}
		}
	}()

	for fut := range futures {
		res := <-fut.ch
		if res.err != nil {
			return res.err
		}
		if err := fn(res.data); err != nil {
			return err
		}
	}
	return nil
}
