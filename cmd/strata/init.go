// cmd/strata/init.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package main

import (
	"fmt"

	"github.com/docopt/docopt-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/strata-backup/strata/repo"
)

func cmdInit(opts docopt.Opts) int {
	be, err := openBackend(opts)
	if err != nil {
		return fail(err)
	}
	defer be.Close()

	pw, err := password(opts)
	if err != nil {
		return fail(err)
	}

	r, err := repo.Init(be, pw)
	if err != nil {
		if errors.Is(err, repo.ErrRepoExists) {
			log.Errorf("%v", err)
			return 2
		}
		return fail(err)
	}
	fmt.Printf("created repository %s at %s\n", r.Config().ID, be.Location())
	return 0
}
