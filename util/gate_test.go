// util/gate_test.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package util

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestGateBoundsConcurrency(t *testing.T) {
	const limit = 3
	g := NewGate(limit)

	var inside, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Run(func() {
				n := atomic.AddInt32(&inside, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				atomic.AddInt32(&inside, -1)
			})
		}()
	}
	wg.Wait()

	if peak > limit {
		t.Errorf("observed %d concurrent sections, limit %d", peak, limit)
	}
	if g.InUse() != 0 {
		t.Errorf("%d slots still in use after all sections returned", g.InUse())
	}
}

func TestGateRunsEverything(t *testing.T) {
	g := NewGate(1)
	var ran int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Run(func() { atomic.AddInt32(&ran, 1) })
		}()
	}
	wg.Wait()
	if ran != 10 {
		t.Errorf("ran %d of 10 sections", ran)
	}
}
