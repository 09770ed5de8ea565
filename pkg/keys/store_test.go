package keys

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelda/licensemaker/pkg/cidutil"
	"github.com/kelda/licensemaker/pkg/errors"
)

func TestEnsureKeysCreates(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, "keys")

	prov, err := store.EnsureKeys()
	require.NoError(t, err)
	assert.True(t, prov.Created)
	assert.Equal(t, "keys/private_key.pem", prov.PrivateKeyPath)
	assert.Equal(t, "keys/public_key_spki.b64", prov.PublicKeyPath)

	privPEM, err := afero.ReadFile(fs, "keys/private_key.pem")
	require.NoError(t, err)
	block, rest := pem.Decode(privPEM)
	require.NotNil(t, block)
	assert.Empty(t, rest)
	assert.Equal(t, "PRIVATE KEY", block.Type)
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	require.NoError(t, err)
	priv, ok := parsed.(*rsa.PrivateKey)
	require.True(t, ok)
	assert.Equal(t, Bits, priv.N.BitLen())
	assert.Equal(t, 65537, priv.E)

	spkiText, err := afero.ReadFile(fs, "keys/public_key_spki.b64")
	require.NoError(t, err)
	assert.Equal(t, prov.PublicKeySPKI, string(spkiText))

	der, err := base64.StdEncoding.DecodeString(string(spkiText))
	require.NoError(t, err)
	pubAny, err := x509.ParsePKIXPublicKey(der)
	require.NoError(t, err)
	pub, ok := pubAny.(*rsa.PublicKey)
	require.True(t, ok)
	assert.Equal(t, priv.PublicKey.N, pub.N)
	assert.Equal(t, priv.PublicKey.E, pub.E)

	assert.True(t, strings.HasPrefix(prov.Fingerprint.SHA256, "SHA256:"))
	assert.True(t, cidutil.Matches(prov.Fingerprint.CID, der))
}

func TestEnsureKeysIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, "keys")

	first, err := store.EnsureKeys()
	require.NoError(t, err)
	privBefore, err := afero.ReadFile(fs, store.PrivateKeyPath())
	require.NoError(t, err)

	second, err := store.EnsureKeys()
	require.NoError(t, err)
	privAfter, err := afero.ReadFile(fs, store.PrivateKeyPath())
	require.NoError(t, err)

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, privBefore, privAfter)
	assert.Equal(t, first.PublicKeySPKI, second.PublicKeySPKI)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
}

func TestEnsureKeysRegeneratesWhenHalfMissing(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, "keys")

	first, err := store.EnsureKeys()
	require.NoError(t, err)
	require.NoError(t, fs.Remove(store.PublicKeyPath()))

	hook := test.NewGlobal()
	defer hook.Reset()

	initialized, err := store.Initialized()
	require.NoError(t, err)
	assert.False(t, initialized)

	second, err := store.EnsureKeys()
	require.NoError(t, err)
	assert.True(t, second.Created)
	assert.NotEqual(t, first.PublicKeySPKI, second.PublicKeySPKI)

	require.Len(t, hook.AllEntries(), 1)
	entry := hook.LastEntry()
	assert.Equal(t, log.WarnLevel, entry.Level)
	assert.Equal(t, "keys/private_key.pem", entry.Data["path"])
}

func TestEnsureKeysFreshDoesNotWarn(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	_, err := NewStore(afero.NewMemMapFs(), "keys").EnsureKeys()
	require.NoError(t, err)
	for _, entry := range hook.AllEntries() {
		assert.NotEqual(t, log.WarnLevel, entry.Level)
	}
}

func TestLoadPrivateKey(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, "keys")

	prov, err := store.EnsureKeys()
	require.NoError(t, err)

	key, err := store.LoadPrivateKey()
	require.NoError(t, err)

	pub, err := store.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey.N, pub.N)

	fromText, err := ParsePublicKeySPKI(prov.PublicKeySPKI + "\n")
	require.NoError(t, err)
	assert.Equal(t, pub.N, fromText.N)
}

func TestLoadPrivateKeyErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(fs afero.Fs)
		expKind errors.Kind
		expMsg  string
	}{
		{
			name:    "missing",
			setup:   func(afero.Fs) {},
			expKind: errors.KeyNotFound,
			expMsg:  "No private key at keys/private_key.pem. Run with --init first.",
		},
		{
			name: "not PEM",
			setup: func(fs afero.Fs) {
				_ = afero.WriteFile(fs, "keys/private_key.pem", []byte("garbage"), 0600)
			},
			expKind: errors.IOFailure,
			expMsg:  `Corrupt private key file keys/private_key.pem: no "PRIVATE KEY" PEM block.`,
		},
		{
			name: "wrong PEM type",
			setup: func(fs afero.Fs) {
				b := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: []byte{1, 2, 3}})
				_ = afero.WriteFile(fs, "keys/private_key.pem", b, 0600)
			},
			expKind: errors.IOFailure,
			expMsg:  `Corrupt private key file keys/private_key.pem: no "PRIVATE KEY" PEM block.`,
		},
		{
			name: "bad DER",
			setup: func(fs afero.Fs) {
				b := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: []byte{1, 2, 3}})
				_ = afero.WriteFile(fs, "keys/private_key.pem", b, 0600)
			},
			expKind: errors.IOFailure,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			test.setup(fs)

			key, err := NewStore(fs, "keys").LoadPrivateKey()
			assert.Nil(t, key)
			require.Error(t, err)
			assert.Equal(t, test.expKind, errors.KindOf(err))
			if test.expMsg != "" {
				assert.Equal(t, test.expMsg, errors.GetPrintableMessage(err))
			}
		})
	}
}

func TestReadOnlyFsFails(t *testing.T) {
	store := NewStore(afero.NewReadOnlyFs(afero.NewMemMapFs()), "keys")
	_, err := store.EnsureKeys()
	require.Error(t, err)
	assert.Equal(t, errors.IOFailure, errors.KindOf(err))
}
