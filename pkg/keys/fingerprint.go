package keys

import (
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/kelda/licensemaker/pkg/cidutil"
	"github.com/kelda/licensemaker/pkg/errors"
)

// Fingerprint identifies a public key without printing all of it.
type Fingerprint struct {
	// SHA256 is the OpenSSH form, e.g. "SHA256:uNiVztksCsDhcc0u9e8BujQXVUpKZIDTMczCvj3tD2s".
	SHA256 string

	// CID is a CIDv1 (raw, sha2-256) over the SPKI DER bytes.
	CID string
}

// FingerprintSPKI computes the fingerprints of base64 SPKI text.
func FingerprintSPKI(spki string) (Fingerprint, error) {
	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(spki))
	if err != nil {
		return Fingerprint{}, errors.WithKind(errors.IOFailure,
			errors.WithContext("decode public key base64", err))
	}

	pub, err := ParsePublicKeySPKI(spki)
	if err != nil {
		return Fingerprint{}, err
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return Fingerprint{}, errors.WithContext("convert public key", err)
	}

	c, err := cidutil.CIDv1RawSHA256(der)
	if err != nil {
		return Fingerprint{}, errors.WithContext("compute public key CID", err)
	}

	return Fingerprint{
		SHA256: ssh.FingerprintSHA256(sshPub),
		CID:    c,
	}, nil
}
