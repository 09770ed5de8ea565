package license

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/kelda/licensemaker/pkg/errors"
)

// Canonicalize encodes v with lexicographically sorted keys, compact
// separators and every rune outside printable ASCII written as a \uXXXX
// escape. The verifier checks the signature over these exact bytes, so the
// output must not depend on how v was built.
//
// Strings that aren't valid UTF-8 are rejected, not repaired.
func Canonicalize(v map[string]interface{}) ([]byte, error) {
	if err := checkUTF8(v); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// encoding/json sorts map keys, including those of nested maps.
	if err := enc.Encode(v); err != nil {
		return nil, errors.WithContext("encode canonical json", err)
	}
	return escapeNonASCII(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// escapeNonASCII rewrites DEL and everything above it as \uXXXX, using
// surrogate pairs outside the BMP. encoding/json has already escaped control
// characters, and non-ASCII bytes only occur inside strings.
func escapeNonASCII(b []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		b = b[size:]
		switch {
		case r < utf8.RuneSelf-1:
			out.WriteByte(byte(r))
		case r > 0xffff:
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&out, `\u%04x\u%04x`, hi, lo)
		default:
			fmt.Fprintf(&out, `\u%04x`, r)
		}
	}
	return out.Bytes()
}

func checkUTF8(v interface{}) error {
	switch v := v.(type) {
	case string:
		if !utf8.ValidString(v) {
			return errors.WithKind(errors.InvalidArguments,
				errors.NewFriendlyError("%q is not valid UTF-8.", v))
		}
	case map[string]interface{}:
		for k, elem := range v {
			if err := checkUTF8(k); err != nil {
				return err
			}
			if err := checkUTF8(elem); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, elem := range v {
			if err := checkUTF8(elem); err != nil {
				return err
			}
		}
	}
	return nil
}

// Canonical returns the bytes that get signed.
func (p Payload) Canonical() ([]byte, error) {
	return Canonicalize(p.fields())
}

func (p Payload) fields() map[string]interface{} {
	return map[string]interface{}{
		"product":   p.Product,
		"name":      p.Name,
		"email":     p.Email,
		"plan":      p.Plan,
		"lifetime":  p.Lifetime,
		"issued_at": p.IssuedAt,
		"nonce":     p.Nonce,
	}
}

// ParsePayload decodes payload bytes taken from a license.
func ParsePayload(b []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return Payload{}, errors.WithKind(errors.InvalidArguments,
			errors.WithContext("unmarshal license payload", err))
	}
	return p, nil
}
