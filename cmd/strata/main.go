// cmd/strata/main.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

// strata is a deduplicating, incremental, encrypted backup tool.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docopt/docopt-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/strata-backup/strata/backend"
	"github.com/strata-backup/strata/repo"
	"github.com/strata-backup/strata/util"
)

const version = "strata 0.1.0"

const usage = `strata - deduplicating, incremental, encrypted backups.

Usage:
  strata init [options]
  strata snapshot [options] [--parent=<id>] [--description=<text>] [--tag=<tag>]... [--include=<glob>]... [--exclude=<glob>]... [--dry-run] [--full-scan] [--force] <path>...
  strata restore [options] [--include=<glob>]... [--exclude=<glob>]... <id> <target>
  strata log [options] [--tag=<tag>]...
  strata ls [options] <id> [<path>]
  strata forget [options] [--gc] [--force] [--keep-last=<n>] [--keep-hourly=<n>] [--keep-daily=<n>] [--keep-weekly=<n>] [--keep-monthly=<n>] [--keep-yearly=<n>] [--keep-tag=<tag>]... [<id>...]
  strata gc [options] [--force]
  strata verify [options] [--deep]
  strata cat [options] <kind> <id>
  strata key [options] add
  strata key [options] list
  strata key [options] remove <keyid>
  strata -h | --help
  strata --version

Options:
  -r, --repo=<url>          Repository location: a path, file://PATH, or
                            sftp://[user@]host[:port]/PATH. Defaults to the
                            STRATA_REPO environment variable.
  -p, --password-file=<f>   Read the repository password from this file.
                            Defaults to the STRATA_PASSWORD environment
                            variable.
  -k, --key=<f>             SSH private key for sftp repositories.
  -q, --quiet               Only print warnings and errors.
  -v, --verbosity=<n>       Verbosity level: 0, 1, or 2 [default: 1].

Commands:
  init      Create a new repository and its master key.
  snapshot  Archive the given paths as a new snapshot.
  restore   Restore a snapshot (id, id prefix, or "latest") to a target.
  log       List snapshots.
  ls        List the paths stored in a snapshot.
  forget    Remove snapshots by id or retention policy; --gc collects.
  gc        Remove data no surviving snapshot references.
  verify    Re-read and authenticate everything snapshots reference.
  cat       Print a raw repository object (kinds: config, key, snapshot,
            index, tree, data, lock).
  key       Manage repository passphrases.
`

func main() {
	parser := &docopt.Parser{OptionsFirst: false}
	opts, err := parser.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		os.Exit(2)
	}

	verbosity, _ := opts.Int("--verbosity")
	quiet, _ := opts.Bool("--quiet")
	util.SetupLogging(verbosity, quiet)

	code := dispatch(opts)
	os.Exit(code)
}

func dispatch(opts docopt.Opts) int {
	cmds := []struct {
		name string
		fn   func(docopt.Opts) int
	}{
		{"init", cmdInit},
		{"snapshot", cmdSnapshot},
		{"restore", cmdRestore},
		{"log", cmdLog},
		{"ls", cmdLs},
		{"forget", cmdForget},
		{"gc", cmdGC},
		{"verify", cmdVerify},
		{"cat", cmdCat},
		{"key", cmdKey},
	}
	for _, c := range cmds {
		if on, _ := opts.Bool(c.name); on {
			return c.fn(opts)
		}
	}
	fmt.Fprint(os.Stderr, usage)
	return 2
}

// fail logs an error, giving locked-repository errors their suggested
// remedy, and returns the command exit code.
func fail(err error) int {
	var locked *repo.LockedError
	if errors.As(err, &locked) && locked.Expired {
		log.Errorf("%v; the lock has expired, re-run with --force to break it", locked)
		return 1
	}
	log.Errorf("%v", err)
	return 1
}

///////////////////////////////////////////////////////////////////////////
// Shared plumbing

func repoLocation(opts docopt.Opts) (backend.RepoLocation, error) {
	url, _ := opts.String("--repo")
	if url == "" {
		url = os.Getenv("STRATA_REPO")
	}
	if url == "" {
		return backend.RepoLocation{}, errors.New(
			"no repository given; use --repo or set STRATA_REPO")
	}
	return backend.ParseLocation(url)
}

func password(opts docopt.Opts) (string, error) {
	if file, _ := opts.String("--password-file"); file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return "", errors.Wrap(err, "reading password file")
		}
		return strings.TrimRight(string(b), "\r\n"), nil
	}
	if pw := os.Getenv("STRATA_PASSWORD"); pw != "" {
		return pw, nil
	}
	return "", errors.New(
		"no password given; use --password-file or set STRATA_PASSWORD")
}

func openBackend(opts docopt.Opts) (backend.Backend, error) {
	loc, err := repoLocation(opts)
	if err != nil {
		return nil, err
	}
	var beOpts backend.Options
	if loc.Scheme == "sftp" {
		beOpts.KeyFile, _ = opts.String("--key")
		beOpts.Password = os.Getenv("STRATA_SFTP_PASSWORD")
	}
	return backend.Open(loc, beOpts)
}

func openRepo(opts docopt.Opts) (*repo.Repository, error) {
	be, err := openBackend(opts)
	if err != nil {
		return nil, err
	}
	pw, err := password(opts)
	if err != nil {
		be.Close()
		return nil, err
	}
	r, err := repo.Open(be, pw)
	if err != nil {
		be.Close()
		return nil, err
	}
	return r, nil
}

func stringList(opts docopt.Opts, key string) []string {
	if v, ok := opts[key].([]string); ok {
		return v
	}
	return nil
}

func boolOpt(opts docopt.Opts, key string) bool {
	b, _ := opts.Bool(key)
	return b
}

func absClean(p string) (string, error) {
	ap, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.Clean(ap), nil
}
