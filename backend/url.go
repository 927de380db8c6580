// backend/url.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package backend

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// RepoLocation identifies a repository: a scheme plus the parameters the
// matching backend needs.
type RepoLocation struct {
	Scheme string // "local" or "sftp"

	// Path is the repository directory. For SFTP it is interpreted by the
	// remote server; a leading slash makes it absolute.
	Path string

	// SFTP connection parameters.
	User string
	Host string
	Port int
}

const defaultSFTPPort = 22

// ParseLocation parses a repository URL. Accepted forms:
//
//	PATH
//	file://PATH
//	sftp://[user@]host[:port]/PATH   (relative to the login directory)
//	sftp://[user@]host[:port]//PATH  (absolute)
func ParseLocation(s string) (RepoLocation, error) {
	if s == "" {
		return RepoLocation{}, errors.New("empty repository location")
	}

	if rest, ok := strings.CutPrefix(s, "file://"); ok {
		if rest == "" {
			return RepoLocation{}, errors.Errorf("%s: empty path", s)
		}
		return RepoLocation{Scheme: "local", Path: rest}, nil
	}

	if rest, ok := strings.CutPrefix(s, "sftp://"); ok {
		return parseSFTP(s, rest)
	}

	if strings.Contains(s, "://") {
		return RepoLocation{}, errors.Errorf("%s: unsupported repository scheme", s)
	}
	return RepoLocation{Scheme: "local", Path: s}, nil
}

func parseSFTP(full, rest string) (RepoLocation, error) {
	loc := RepoLocation{Scheme: "sftp", Port: defaultSFTPPort}

	hostpart, path, ok := strings.Cut(rest, "/")
	if !ok || path == "" {
		return RepoLocation{}, errors.Errorf("%s: missing path", full)
	}
	// The cut consumed the first slash after the authority. A remaining
	// leading slash (from "//") makes the path absolute; otherwise it is
	// relative to the SSH login directory.
	loc.Path = path

	if user, host, ok := strings.Cut(hostpart, "@"); ok {
		if user == "" {
			return RepoLocation{}, errors.Errorf("%s: empty user", full)
		}
		loc.User = user
		hostpart = host
	}

	if host, portStr, ok := strings.Cut(hostpart, ":"); ok {
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return RepoLocation{}, errors.Errorf("%s: invalid port %q", full, portStr)
		}
		loc.Host = host
		loc.Port = port
	} else {
		loc.Host = hostpart
	}
	if loc.Host == "" {
		return RepoLocation{}, errors.Errorf("%s: empty host", full)
	}

	return loc, nil
}

// Options carries backend-opening parameters that don't belong in the URL.
type Options struct {
	// SFTP authentication. Password is used when set; otherwise KeyFile
	// names a private key file to authenticate with.
	Password string
	KeyFile  string
}

// Open connects to the repository at the given location and wraps it in
// the retry policy.
func Open(loc RepoLocation, opts Options) (Backend, error) {
	var be Backend
	var err error
	switch loc.Scheme {
	case "local":
		be, err = NewLocal(loc.Path)
	case "sftp":
		be, err = NewSFTP(loc, opts)
	default:
		err = errors.Errorf("unsupported repository scheme %q", loc.Scheme)
	}
	if err != nil {
		return nil, err
	}
	return NewRetry(be), nil
}
