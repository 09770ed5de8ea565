package cidutil

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// CIDv1RawSHA256 returns a CIDv1 string using the "raw" multicodec and a
// sha2-256 multihash of data.
func CIDv1RawSHA256(data []byte) (string, error) {
	c, err := CIDv1RawSHA256CID(data)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// Matches reports whether s is the raw sha2-256 CID of data.
func Matches(s string, data []byte) bool {
	parsed, err := cid.Decode(s)
	if err != nil {
		return false
	}
	want, err := CIDv1RawSHA256CID(data)
	if err != nil {
		return false
	}
	return parsed.Equals(want)
}
