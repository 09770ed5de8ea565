package license

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"strings"

	"github.com/kelda/licensemaker/pkg/errors"
)

// SaltLength is the PSS salt length the verifier expects.
const SaltLength = 32

const nonceBytes = 8

// PSSOptions are the signing parameters: PSS with SHA-256, MGF1-SHA256 and a
// 32 byte salt.
var PSSOptions = &rsa.PSSOptions{SaltLength: SaltLength, Hash: crypto.SHA256}

// CheckCrypto fails if the hash the license format depends on is not linked
// into the binary.
func CheckCrypto() error {
	if !crypto.SHA256.Available() {
		return errors.WithKind(errors.DependencyMissing,
			errors.NewFriendlyError("SHA-256 is unavailable in this build. Rebuild with crypto/sha256 linked in."))
	}
	return nil
}

// Sign returns the RSA-PSS signature of msg.
func Sign(key *rsa.PrivateKey, rand io.Reader, msg []byte) ([]byte, error) {
	if err := CheckCrypto(); err != nil {
		return nil, err
	}
	if key == nil {
		return nil, errors.WithKind(errors.SignatureFailure, errors.New("missing private key"))
	}

	digest := sha256.Sum256(msg)
	sig, err := rsa.SignPSS(rand, key, crypto.SHA256, digest[:], PSSOptions)
	if err != nil {
		return nil, errors.WithKind(errors.SignatureFailure,
			errors.WithContext("sign payload", err))
	}
	return sig, nil
}

// Verify checks sig over msg. Licenses are verified by the consuming
// application; this exists so the format can be exercised end to end.
func Verify(pub *rsa.PublicKey, msg, sig []byte) error {
	digest := sha256.Sum256(msg)
	if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, PSSOptions); err != nil {
		return errors.WithKind(errors.SignatureFailure,
			errors.WithContext("verify signature", err))
	}
	return nil
}

// NewNonce returns 8 random bytes as 16 hex characters.
func NewNonce(rand io.Reader) (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := io.ReadFull(rand, b); err != nil {
		return "", errors.WithKind(errors.SignatureFailure,
			errors.WithContext("read nonce", err))
	}
	return hex.EncodeToString(b), nil
}

// Encode joins payload and signature into a license string.
func Encode(payload, sig []byte) string {
	return base64.StdEncoding.EncodeToString(payload) + "." +
		base64.StdEncoding.EncodeToString(sig)
}

// Decode splits a license string back into payload and signature bytes.
func Decode(license string) (payload, sig []byte, err error) {
	license = strings.TrimSpace(license)
	i := strings.LastIndex(license, ".")
	if i < 0 {
		return nil, nil, errors.WithKind(errors.InvalidArguments,
			errors.NewFriendlyError("Malformed license: missing \".\" separator."))
	}

	payload, err = base64.StdEncoding.DecodeString(license[:i])
	if err != nil {
		return nil, nil, errors.WithKind(errors.InvalidArguments,
			errors.WithContext("decode license payload", err))
	}
	sig, err = base64.StdEncoding.DecodeString(license[i+1:])
	if err != nil {
		return nil, nil, errors.WithKind(errors.InvalidArguments,
			errors.WithContext("decode license signature", err))
	}
	return payload, sig, nil
}
