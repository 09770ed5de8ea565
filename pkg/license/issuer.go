package license

import (
	"crypto/rand"
	"crypto/rsa"
	"io"
	"time"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"github.com/kelda/licensemaker/pkg/cidutil"
	"github.com/kelda/licensemaker/pkg/errors"
)

// KeyLoader supplies the signing key. keys.Store implements it.
type KeyLoader interface {
	LoadPrivateKey() (*rsa.PrivateKey, error)
}

// Writer persists an encoded license and reports where it went.
type Writer interface {
	Write(issuedAt int64, email, license string) (path string, err error)
}

// Issuer signs licenses for a single product.
type Issuer struct {
	Keys    KeyLoader
	Out     Writer
	Product string

	// Now and Rand default to time.Now and crypto/rand.Reader.
	Now  func() time.Time
	Rand io.Reader
}

func NewIssuer(keys KeyLoader, out Writer, product string) *Issuer {
	return &Issuer{Keys: keys, Out: out, Product: product}
}

// Issue builds, signs, encodes and persists one license. Nothing is written
// if the request is invalid or the key cannot be loaded.
func (iss *Issuer) Issue(req Request) (Issued, error) {
	if err := req.validate(); err != nil {
		return Issued{}, err
	}

	key, err := iss.Keys.LoadPrivateKey()
	if err != nil {
		return Issued{}, err
	}

	nonce, err := NewNonce(iss.rand())
	if err != nil {
		return Issued{}, err
	}

	plan := req.Plan
	if plan == "" {
		plan = DefaultPlan
	}
	product := iss.Product
	if product == "" {
		product = DefaultProduct
	}

	payload := Payload{
		Product:  product,
		Name:     req.Name,
		Email:    req.Email,
		Plan:     plan,
		Lifetime: req.Lifetime,
		IssuedAt: iss.now().Unix(),
		Nonce:    nonce,
	}
	payloadBytes, err := payload.Canonical()
	if err != nil {
		return Issued{}, err
	}

	sig, err := Sign(key, iss.rand(), payloadBytes)
	if err != nil {
		return Issued{}, err
	}
	license := Encode(payloadBytes, sig)

	licenseCID, err := cidutil.CIDv1RawSHA256([]byte(license))
	if err != nil {
		return Issued{}, errors.WithContext("compute license CID", err)
	}

	path, err := iss.Out.Write(payload.IssuedAt, payload.Email, license)
	if err != nil {
		return Issued{}, err
	}

	log.WithFields(log.Fields{
		"email": payload.Email,
		"plan":  payload.Plan,
		"nonce": payload.Nonce,
	}).Debug("Signed license")

	return Issued{
		License: license,
		Payload: payload,
		Path:    path,
		CID:     licenseCID,
	}, nil
}

// validate accepts any non-empty name and email. The fields are signed
// byte for byte, so they must be valid UTF-8.
func (req Request) validate() error {
	if req.Name == "" || req.Email == "" {
		return errors.WithKind(errors.InvalidArguments,
			errors.NewFriendlyError("A license requires a name and an email."))
	}
	for field, value := range map[string]string{
		"name":  req.Name,
		"email": req.Email,
		"plan":  req.Plan,
	} {
		if !utf8.ValidString(value) {
			return errors.WithKind(errors.InvalidArguments,
				errors.NewFriendlyError("The %s %q is not valid UTF-8.", field, value))
		}
	}
	return nil
}

func (iss *Issuer) now() time.Time {
	if iss.Now != nil {
		return iss.Now()
	}
	return time.Now()
}

func (iss *Issuer) rand() io.Reader {
	if iss.Rand != nil {
		return iss.Rand
	}
	return rand.Reader
}
