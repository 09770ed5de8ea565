package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/kelda/licensemaker/pkg/errors"
)

const (
	// PrivateKeyFile holds the unencrypted PKCS#8 PEM private key.
	PrivateKeyFile = "private_key.pem"

	// PublicKeyFile holds the base64 text of the DER SubjectPublicKeyInfo.
	PublicKeyFile = "public_key_spki.b64"

	// Bits is the RSA modulus size. Go always uses the public exponent 65537.
	Bits = 2048

	pemBlockType = "PRIVATE KEY"
)

// Store is the on-disk home of the signing keypair.
type Store struct {
	Fs  afero.Fs
	Dir string

	// Rand is the entropy source for key generation. It defaults to
	// crypto/rand.Reader.
	Rand io.Reader
}

// Provisioned describes the keypair after EnsureKeys.
type Provisioned struct {
	// PublicKeySPKI is the base64 DER SubjectPublicKeyInfo, exactly as stored.
	PublicKeySPKI string
	Fingerprint   Fingerprint

	PrivateKeyPath string
	PublicKeyPath  string

	// Created is false when existing keys were found and left untouched.
	Created bool
}

func NewStore(fs afero.Fs, dir string) *Store {
	return &Store{Fs: fs, Dir: dir}
}

func (s *Store) PrivateKeyPath() string {
	return filepath.Join(s.Dir, PrivateKeyFile)
}

func (s *Store) PublicKeyPath() string {
	return filepath.Join(s.Dir, PublicKeyFile)
}

// EnsureKeys generates and persists a keypair unless both key files already
// exist, in which case it only reads back the stored public key.
func (s *Store) EnsureKeys() (Provisioned, error) {
	if err := s.Fs.MkdirAll(s.Dir, 0700); err != nil {
		return Provisioned{}, errors.WithKind(errors.IOFailure,
			errors.WithContext("create key directory", err))
	}

	initialized, err := s.Initialized()
	if err != nil {
		return Provisioned{}, err
	}
	if initialized {
		spki, err := s.readPublicKeySPKI()
		if err != nil {
			return Provisioned{}, err
		}
		return s.provisioned(spki, false)
	}

	privExists, err := afero.Exists(s.Fs, s.PrivateKeyPath())
	if err != nil {
		return Provisioned{}, errors.WithKind(errors.IOFailure,
			errors.WithContext("stat private key", err))
	}
	if privExists {
		log.WithFields(log.Fields{
			"path":    s.PrivateKeyPath(),
			"missing": s.PublicKeyPath(),
		}).Warn("Replacing private key whose public half is missing. " +
			"Licenses signed with the old key will no longer verify.")
	}

	log.WithField("bits", Bits).Debug("Generating RSA keypair")
	key, err := rsa.GenerateKey(s.rand(), Bits)
	if err != nil {
		return Provisioned{}, errors.WithKind(errors.SignatureFailure,
			errors.WithContext("generate RSA key", err))
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return Provisioned{}, errors.WithKind(errors.SignatureFailure,
			errors.WithContext("marshal private key", err))
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: pemBlockType, Bytes: der})
	if err := afero.WriteFile(s.Fs, s.PrivateKeyPath(), privPEM, 0600); err != nil {
		return Provisioned{}, errors.WithKind(errors.IOFailure,
			errors.WithContext("write private key", err))
	}

	spkiDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return Provisioned{}, errors.WithKind(errors.SignatureFailure,
			errors.WithContext("marshal public key", err))
	}
	spki := base64.StdEncoding.EncodeToString(spkiDER)
	if err := afero.WriteFile(s.Fs, s.PublicKeyPath(), []byte(spki), 0644); err != nil {
		return Provisioned{}, errors.WithKind(errors.IOFailure,
			errors.WithContext("write public key", err))
	}

	log.WithField("path", s.PrivateKeyPath()).Debug("Wrote private key")
	return s.provisioned(spki, true)
}

// Initialized reports whether both key files exist.
func (s *Store) Initialized() (bool, error) {
	for _, path := range []string{s.PrivateKeyPath(), s.PublicKeyPath()} {
		exists, err := afero.Exists(s.Fs, path)
		if err != nil {
			return false, errors.WithKind(errors.IOFailure,
				errors.WithContext("stat "+path, err))
		}
		if !exists {
			return false, nil
		}
	}
	return true, nil
}

// LoadPrivateKey reads the private key for signing.
func (s *Store) LoadPrivateKey() (*rsa.PrivateKey, error) {
	path := s.PrivateKeyPath()
	pemBytes, err := afero.ReadFile(s.Fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WithKind(errors.KeyNotFound,
				errors.NewFriendlyError("No private key at %s. Run with --init first.", path))
		}
		return nil, errors.WithKind(errors.IOFailure,
			errors.WithContext("read private key", err))
	}

	block, _ := pem.Decode(pemBytes)
	if block == nil || block.Type != pemBlockType {
		return nil, errors.WithKind(errors.IOFailure,
			errors.NewFriendlyError("Corrupt private key file %s: no %q PEM block.", path, pemBlockType))
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.WithKind(errors.IOFailure,
			errors.WithContext("parse private key "+path, err))
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.WithKind(errors.IOFailure,
			errors.NewFriendlyError("Private key %s is %T, not RSA.", path, parsed))
	}
	return key, nil
}

// PublicKey parses the stored public key.
func (s *Store) PublicKey() (*rsa.PublicKey, error) {
	spki, err := s.readPublicKeySPKI()
	if err != nil {
		return nil, err
	}
	return ParsePublicKeySPKI(spki)
}

// ParsePublicKeySPKI decodes base64 DER SubjectPublicKeyInfo text.
func ParsePublicKeySPKI(spki string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(spki))
	if err != nil {
		return nil, errors.WithKind(errors.IOFailure,
			errors.WithContext("decode public key base64", err))
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, errors.WithKind(errors.IOFailure,
			errors.WithContext("parse public key", err))
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.WithKind(errors.IOFailure,
			errors.New("public key is %T, not RSA", parsed))
	}
	return pub, nil
}

func (s *Store) readPublicKeySPKI() (string, error) {
	b, err := afero.ReadFile(s.Fs, s.PublicKeyPath())
	if err != nil {
		return "", errors.WithKind(errors.IOFailure,
			errors.WithContext("read public key", err))
	}
	return strings.TrimSpace(string(b)), nil
}

func (s *Store) provisioned(spki string, created bool) (Provisioned, error) {
	fp, err := FingerprintSPKI(spki)
	if err != nil {
		return Provisioned{}, err
	}
	return Provisioned{
		PublicKeySPKI:  spki,
		Fingerprint:    fp,
		PrivateKeyPath: s.PrivateKeyPath(),
		PublicKeyPath:  s.PublicKeyPath(),
		Created:        created,
	}, nil
}

func (s *Store) rand() io.Reader {
	if s.Rand != nil {
		return s.Rand
	}
	return rand.Reader
}
