// Package cidutil derives content identifiers for stored values.
package cidutil

import (
	"crypto/sha256"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// CIDv1RawSHA256 returns a CIDv1 string using the "raw" multicodec
// and a sha2-256 multihash.
func CIDv1RawSHA256(data []byte) string {
	id, err := CIDv1RawSHA256CID(data)
	if err != nil {
		return ""
	}
	return id.String()
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// SHA256Digest extracts the 32-byte sha2-256 digest carried by id.
func SHA256Digest(id cid.Cid) ([sha256.Size]byte, error) {
	var out [sha256.Size]byte
	if !id.Defined() {
		return out, fmt.Errorf("cidutil: undefined cid")
	}
	dec, err := multihash.Decode(id.Hash())
	if err != nil {
		return out, err
	}
	if dec.Code != multihash.SHA2_256 || len(dec.Digest) != sha256.Size {
		return out, fmt.Errorf("cidutil: %s is not a sha2-256 cid", id)
	}
	copy(out[:], dec.Digest)
	return out, nil
}

// FromSHA256Digest rebuilds the raw CIDv1 for a sha2-256 digest.
func FromSHA256Digest(digest [sha256.Size]byte) (cid.Cid, error) {
	mh, err := multihash.Encode(digest[:], multihash.SHA2_256)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}
