package license

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelda/licensemaker/pkg/cidutil"
	"github.com/kelda/licensemaker/pkg/errors"
)

type staticKey struct {
	key *rsa.PrivateKey
	err error
}

func (k staticKey) LoadPrivateKey() (*rsa.PrivateKey, error) {
	return k.key, k.err
}

type memWriter struct {
	licenses map[string]string
}

func (w *memWriter) Write(issuedAt int64, email, license string) (string, error) {
	if w.licenses == nil {
		w.licenses = map[string]string{}
	}
	path := fmt.Sprintf("mem/%d_%s/%d", issuedAt, email, len(w.licenses))
	w.licenses[path] = license
	return path, nil
}

func fixedClock(sec int64) func() time.Time {
	return func() time.Time { return time.Unix(sec, 0) }
}

func TestIssueWithoutFilesystem(t *testing.T) {
	key := signingKey(t)
	out := &memWriter{}
	iss := NewIssuer(staticKey{key: key}, out, "")
	iss.Now = fixedClock(1700000000)

	issued, err := iss.Issue(Request{Name: "Jane Doe", Email: "jane@example.com", Plan: "Pro", Lifetime: true})
	require.NoError(t, err)

	assert.Equal(t, out.licenses[issued.Path], issued.License)
	assert.Equal(t, DefaultProduct, issued.Payload.Product)
	assert.Equal(t, int64(1700000000), issued.Payload.IssuedAt)
	assert.Len(t, issued.Payload.Nonce, 16)
	assert.True(t, cidutil.Matches(issued.CID, []byte(issued.License)))

	payloadBytes, sig, err := Decode(issued.License)
	require.NoError(t, err)
	require.NoError(t, Verify(&key.PublicKey, payloadBytes, sig))

	// The signed bytes are exactly the canonical form of the returned payload.
	canonical, err := issued.Payload.Canonical()
	require.NoError(t, err)
	assert.Equal(t, canonical, payloadBytes)

	parsed, err := ParsePayload(payloadBytes)
	require.NoError(t, err)
	assert.Equal(t, issued.Payload, parsed)
}

func TestIssueDefaults(t *testing.T) {
	iss := NewIssuer(staticKey{key: signingKey(t)}, &memWriter{}, "Custom Product")

	issued, err := iss.Issue(Request{Name: "n", Email: "e@x"})
	require.NoError(t, err)
	assert.Equal(t, "Custom Product", issued.Payload.Product)
	assert.Equal(t, DefaultPlan, issued.Payload.Plan)
	assert.False(t, issued.Payload.Lifetime)
	assert.InDelta(t, time.Now().Unix(), issued.Payload.IssuedAt, 5)
}

func TestIssueProducesDistinctLicenses(t *testing.T) {
	iss := NewIssuer(staticKey{key: signingKey(t)}, &memWriter{}, "")
	iss.Now = fixedClock(1700000000)
	req := Request{Name: "Jane Doe", Email: "jane@example.com", Plan: "Pro", Lifetime: true}

	a, err := iss.Issue(req)
	require.NoError(t, err)
	b, err := iss.Issue(req)
	require.NoError(t, err)

	assert.NotEqual(t, a.License, b.License)
	assert.NotEqual(t, a.Payload.Nonce, b.Payload.Nonce)
	assert.NotEqual(t, a.CID, b.CID)
}

func TestIssueRequiresNameAndEmail(t *testing.T) {
	out := &memWriter{}
	iss := NewIssuer(staticKey{key: signingKey(t)}, out, "")

	for _, req := range []Request{
		{Name: "", Email: "jane@example.com"},
		{Name: "Jane", Email: ""},
		{Name: "Jos\xe9", Email: "jane@example.com"},
		{Name: "Jane", Email: "jane@ex\xffample.com"},
		{Name: "Jane", Email: "jane@example.com", Plan: "Pro\xc3"},
	} {
		_, err := iss.Issue(req)
		assert.Equal(t, errors.InvalidArguments, errors.KindOf(err), "%+v", req)
	}
	assert.Empty(t, out.licenses)
}

func TestIssueAcceptsWhitespaceName(t *testing.T) {
	out := &memWriter{}
	iss := NewIssuer(staticKey{key: signingKey(t)}, out, "")

	issued, err := iss.Issue(Request{Name: " ", Email: "jane@example.com"})
	require.NoError(t, err)
	assert.Equal(t, " ", issued.Payload.Name)
	assert.Len(t, out.licenses, 1)
}

func TestIssueEscapesNonASCII(t *testing.T) {
	iss := NewIssuer(staticKey{key: signingKey(t)}, &memWriter{}, "")
	iss.Now = fixedClock(1700000000)

	issued, err := iss.Issue(Request{Name: "José 😀", Email: "jose@example.com"})
	require.NoError(t, err)

	payloadBytes, sig, err := Decode(issued.License)
	require.NoError(t, err)
	assert.Contains(t, string(payloadBytes), `"name":"Jos\u00e9 \ud83d\ude00"`)
	assert.NoError(t, Verify(&signingKey(t).PublicKey, payloadBytes, sig))

	parsed, err := ParsePayload(payloadBytes)
	require.NoError(t, err)
	assert.Equal(t, "José 😀", parsed.Name)
}

func TestIssueWithoutKeyWritesNothing(t *testing.T) {
	fs := afero.NewMemMapFs()
	missing := errors.WithKind(errors.KeyNotFound, errors.NewFriendlyError("No private key. Run with --init first."))
	iss := NewIssuer(staticKey{err: missing}, NewFileWriter(fs, "licenses"), "")

	_, err := iss.Issue(Request{Name: "Jane Doe", Email: "jane@example.com"})
	require.Error(t, err)
	assert.Equal(t, errors.KeyNotFound, errors.KindOf(err))
	assert.Equal(t, 3, errors.ExitCode(err))

	exists, err := afero.DirExists(fs, "licenses")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestIssueToFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	iss := NewIssuer(staticKey{key: signingKey(t)}, NewFileWriter(fs, "licenses"), "")
	iss.Now = fixedClock(1700000000)

	issued, err := iss.Issue(Request{Name: "Jane Doe", Email: "jane@example.com", Plan: "Pro", Lifetime: true})
	require.NoError(t, err)
	assert.Equal(t, "licenses/1700000000_jane_at_example.com.lic", issued.Path)

	contents, err := afero.ReadFile(fs, issued.Path)
	require.NoError(t, err)
	assert.Equal(t, issued.License, string(contents))

	parts := strings.Split(string(contents), ".")
	require.Len(t, parts, 2)
	payloadBytes, err := base64.StdEncoding.DecodeString(parts[0])
	require.NoError(t, err)
	_, err = base64.StdEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	payload, err := ParsePayload(payloadBytes)
	require.NoError(t, err)
	assert.Equal(t, "SubsFinder Pro (Offline)", payload.Product)
	assert.Equal(t, "Jane Doe", payload.Name)
	assert.True(t, payload.Lifetime)
}
