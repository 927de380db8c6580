// repo/config.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package repo

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// RepoVersion is the repository format version written at init.
const RepoVersion = 1

// Config holds the repository-global parameters. Written once at init and
// immutable afterwards.
type Config struct {
	Version uint32    `json:"version"`
	ID      string    `json:"id"`
	Created time.Time `json:"created"`

	// ChunkerSeed feeds the gear table of the content-defined chunker.
	// Per-repository, so chunk boundaries are not predictable across
	// repositories; must never change once files have been archived.
	ChunkerSeed uint64 `json:"chunker_seed"`
}

// configAD binds the sealed config to its fixed storage name.
var configAD = []byte("strata/config/v1")

// NewConfig generates the parameters for a fresh repository.
func NewConfig() (Config, error) {
	var seed [8]byte
	if _, err := io.ReadFull(rand.Reader, seed[:]); err != nil {
		return Config{}, errors.Wrap(err, "reading random chunker seed")
	}
	return Config{
		Version:     RepoVersion,
		ID:          uuid.NewString(),
		Created:     time.Now().UTC(),
		ChunkerSeed: binary.LittleEndian.Uint64(seed[:]),
	}, nil
}

func (c Config) encode() ([]byte, error) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encoding config")
	}
	return append(b, '\n'), nil
}

func decodeConfig(b []byte) (Config, error) {
	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		return Config{}, errors.Wrap(err, "parsing config")
	}
	if c.Version != RepoVersion {
		return Config{}, errors.Errorf("unsupported repository version %d", c.Version)
	}
	return c, nil
}
