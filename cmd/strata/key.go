// cmd/strata/key.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/docopt/docopt-go"
	"github.com/pkg/errors"

	"github.com/strata-backup/strata/repo"
)

func cmdKey(opts docopt.Opts) int {
	r, err := openRepo(opts)
	if err != nil {
		return fail(err)
	}
	defer r.Close()

	switch {
	case boolOpt(opts, "add"):
		// The new passphrase comes from STRATA_NEW_PASSWORD so it isn't
		// confused with the one that unlocked the repository.
		newPw := os.Getenv("STRATA_NEW_PASSWORD")
		if newPw == "" {
			return fail(errors.New("set STRATA_NEW_PASSWORD to the passphrase to add"))
		}
		id, err := r.AddKey(strings.TrimRight(newPw, "\r\n"))
		if err != nil {
			return fail(err)
		}
		fmt.Printf("added key %s\n", shortID(id))
		return 0

	case boolOpt(opts, "remove"):
		keyID, _ := opts.String("<keyid>")
		full, err := resolveKeyID(r, keyID)
		if err != nil {
			return fail(err)
		}
		if err := r.RemoveKey(full); err != nil {
			return fail(err)
		}
		fmt.Printf("removed key %s\n", shortID(full))
		return 0

	default: // list
		keys, err := r.ListKeys()
		if err != nil {
			return fail(err)
		}
		for _, k := range keys {
			fmt.Printf("%s  %s  %s\n", shortID(k.ID),
				k.Created.Local().Format("2006-01-02 15:04:05"), k.Hostname)
		}
		return 0
	}
}

// resolveKeyID expands a key id prefix to the full id.
func resolveKeyID(r *repo.Repository, prefix string) (string, error) {
	keys, err := r.ListKeys()
	if err != nil {
		return "", err
	}
	var matches []string
	for _, k := range keys {
		if strings.HasPrefix(k.ID, prefix) {
			matches = append(matches, k.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", errors.Errorf("no key matches %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return "", errors.Errorf("%q is ambiguous: matches %d keys", prefix, len(matches))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
