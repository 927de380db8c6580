// archiver/progress.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package archiver

import (
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/strata-backup/strata/util"
)

// progressEvery is how many bytes may be read from one file between
// progress lines. Small files never log.
const progressEvery = 128 << 20

// progressReader wraps one file while it is being chunked, tracking the
// bytes read and the chunks cut so far. Every progressEvery bytes it logs
// a line with both counts and the read rate.
type progressReader struct {
	r    io.Reader
	path string

	start      time.Time
	bytes      int64
	chunks     int
	nextReport int64
}

func newProgressReader(r io.Reader, path string) *progressReader {
	return &progressReader{
		r:          r,
		path:       path,
		start:      time.Now(),
		nextReport: progressEvery,
	}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	p.bytes += int64(n)
	if p.bytes >= p.nextReport {
		p.report()
		p.nextReport += progressEvery
	}
	return n, err
}

// chunkCut records one chunk produced from this file.
func (p *progressReader) chunkCut() {
	p.chunks++
}

func (p *progressReader) report() {
	elapsed := time.Since(p.start).Seconds()
	log.Debugf("%s: %s read, %d chunks [%s]", p.path,
		util.FmtBytes(p.bytes), p.chunks, util.FmtRate(p.bytes, elapsed))
}
