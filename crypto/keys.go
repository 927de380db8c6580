// crypto/keys.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package crypto

import (
	"crypto/rand"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for deriving the key-encryption-key from a
// passphrase. Stored in every key file so they can be raised later without
// invalidating existing keys.
const (
	DefaultKDFMemory  = 64 * 1024 // KiB
	DefaultKDFTime    = 4
	DefaultKDFThreads = 4

	saltLength = 32
)

// KeyFile is the stored form of one wrapped master key. A repository holds
// one key file per passphrase; unlocking means finding the key file whose
// wrapped key opens with the supplied passphrase.
type KeyFile struct {
	Created  time.Time `json:"created"`
	Hostname string    `json:"hostname"`

	KDF      string `json:"kdf"`
	Memory   uint32 `json:"memory"`
	Time     uint32 `json:"time"`
	Threads  uint8  `json:"threads"`
	Salt     []byte `json:"salt"`
	WrapType string `json:"wrap"`

	// Data is the master key sealed by the KEK: nonce || ciphertext || tag.
	Data []byte `json:"data"`
}

// keyAD binds key-file ciphertexts to their purpose so they can't be
// confused with other sealed objects.
var keyAD = []byte("strata/key/v1")

// NewKeyFile wraps the master key under a key-encryption-key derived from
// the passphrase.
func NewKeyFile(password string, master *Key) (*KeyFile, error) {
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, errors.Wrap(err, "reading random salt")
	}

	kf := &KeyFile{
		Created:  time.Now().UTC(),
		KDF:      "argon2id",
		Memory:   DefaultKDFMemory,
		Time:     DefaultKDFTime,
		Threads:  DefaultKDFThreads,
		Salt:     salt,
		WrapType: "aes256-gcm",
	}
	if hostname, err := os.Hostname(); err == nil {
		kf.Hostname = hostname
	}

	kek, err := kf.deriveKEK(password)
	if err != nil {
		return nil, err
	}
	kf.Data, err = kek.Seal(master.Bytes(), keyAD)
	if err != nil {
		return nil, errors.Wrap(err, "wrapping master key")
	}
	return kf, nil
}

// Unwrap recovers the master key using the passphrase. ErrAuthFailed means
// the passphrase does not match this key file.
func (kf *KeyFile) Unwrap(password string) (*Key, error) {
	kek, err := kf.deriveKEK(password)
	if err != nil {
		return nil, err
	}
	raw, err := kek.Open(kf.Data, keyAD)
	if err != nil {
		return nil, err
	}
	return NewKey(raw)
}

func (kf *KeyFile) deriveKEK(password string) (*Key, error) {
	if kf.KDF != "argon2id" {
		return nil, errors.Errorf("unsupported KDF %q", kf.KDF)
	}
	raw := argon2.IDKey([]byte(password), kf.Salt, kf.Time, kf.Memory,
		kf.Threads, KeySize)
	return NewKey(raw)
}

// Marshal renders the key file as JSON, the format it is stored in on the
// backend.
func (kf *KeyFile) Marshal() ([]byte, error) {
	b, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encoding key file")
	}
	return append(b, '\n'), nil
}

// UnmarshalKeyFile parses a stored key file.
func UnmarshalKeyFile(b []byte) (*KeyFile, error) {
	var kf KeyFile
	if err := json.Unmarshal(b, &kf); err != nil {
		return nil, errors.Wrap(err, "parsing key file")
	}
	return &kf, nil
}
