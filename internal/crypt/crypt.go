// Package crypt seals payloads to a recipient key before they are put on
// the optical channel. It uses NaCl anonymous sealed boxes: the sender only
// needs the recipient's public key.
package crypt

import (
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/box"
)

const (
	keySize = 32

	PublicKeyFile  = "public.key"
	PrivateKeyFile = "private.key"

	pemPublic  = "QRSTREAM PUBLIC KEY"
	pemPrivate = "QRSTREAM PRIVATE KEY"
)

var (
	ErrKey    = errors.New("crypt: invalid key")
	ErrOpen   = errors.New("crypt: cannot open sealed payload")
	ErrNoPriv = errors.New("crypt: no private key loaded")
)

// KeyPair holds a Curve25519 key pair. Private may be nil on the sending side.
type KeyPair struct {
	Public  *[keySize]byte
	Private *[keySize]byte
}

func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generate key")
	}
	return &KeyPair{Public: pub, Private: priv}, nil
}

// Seal encrypts payload for the key pair's public key.
func (k *KeyPair) Seal(payload []byte) ([]byte, error) {
	if k.Public == nil {
		return nil, errors.Wrap(ErrKey, "no public key")
	}
	out, err := box.SealAnonymous(nil, payload, k.Public, rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "seal")
	}
	return out, nil
}

// Open decrypts a payload produced by Seal.
func (k *KeyPair) Open(sealed []byte) ([]byte, error) {
	if k.Private == nil {
		return nil, ErrNoPriv
	}
	out, ok := box.OpenAnonymous(nil, sealed, k.Public, k.Private)
	if !ok {
		return nil, ErrOpen
	}
	return out, nil
}

// Save writes public.key (0644) and, when present, private.key (0600) to dir.
func (k *KeyPair) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, "key dir")
	}
	if err := writePEM(filepath.Join(dir, PublicKeyFile), pemPublic, k.Public, 0o644); err != nil {
		return err
	}
	if k.Private == nil {
		return nil
	}
	return writePEM(filepath.Join(dir, PrivateKeyFile), pemPrivate, k.Private, 0o600)
}

// Load reads the key pair from dir. A missing private key is not an error
// unless needPrivate is set.
func Load(dir string, needPrivate bool) (*KeyPair, error) {
	pub, err := readPEM(filepath.Join(dir, PublicKeyFile), pemPublic)
	if err != nil {
		return nil, err
	}
	kp := &KeyPair{Public: pub}
	priv, err := readPEM(filepath.Join(dir, PrivateKeyFile), pemPrivate)
	switch {
	case err == nil:
		kp.Private = priv
	case errors.Is(err, os.ErrNotExist) && !needPrivate:
	default:
		return nil, err
	}
	return kp, nil
}

func writePEM(path, typ string, key *[keySize]byte, mode os.FileMode) error {
	b := pem.EncodeToMemory(&pem.Block{Type: typ, Bytes: key[:]})
	if err := os.WriteFile(path, b, mode); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

func readPEM(path, typ string) (*[keySize]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	blk, _ := pem.Decode(b)
	if blk == nil || blk.Type != typ || len(blk.Bytes) != keySize {
		return nil, errors.Wrapf(ErrKey, "%s", path)
	}
	var key [keySize]byte
	copy(key[:], blk.Bytes)
	return &key, nil
}
