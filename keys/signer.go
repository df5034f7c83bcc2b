package keys

import (
	"crypto/ed25519"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// SeedSize is the length of the seed every scheme derives its key pair from.
const SeedSize = 32

// Signer produces detached artifact signatures.
type Signer struct {
	scheme Scheme
	ed     ed25519.PrivateKey
	dil    *mode3.PrivateKey
	pub    PublicKey
}

// NewSigner derives a key pair for scheme from a 32-byte seed.
func NewSigner(scheme Scheme, seed []byte) (*Signer, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	switch scheme {
	case SchemeEd25519:
		priv := ed25519.NewKeyFromSeed(seed)
		pub := priv.Public().(ed25519.PublicKey)
		return &Signer{scheme: scheme, ed: priv, pub: PublicKey{Scheme: scheme, Bytes: pub}}, nil
	case SchemeDilithium3:
		var s [mode3.SeedSize]byte
		copy(s[:], seed)
		pk, sk := mode3.NewKeyFromSeed(&s)
		raw, err := pk.MarshalBinary()
		if err != nil {
			return nil, err
		}
		return &Signer{scheme: scheme, dil: sk, pub: PublicKey{Scheme: scheme, Bytes: raw}}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
}

// GenerateSeed reads a fresh seed from rand.
func GenerateSeed(rand io.Reader) ([]byte, error) {
	seed := make([]byte, SeedSize)
	if _, err := io.ReadFull(rand, seed); err != nil {
		return nil, err
	}
	return seed, nil
}

func (s *Signer) Scheme() Scheme { return s.scheme }

func (s *Signer) Public() PublicKey { return s.pub }

// Sign returns a detached signature over the full message bytes.
func (s *Signer) Sign(message []byte) []byte {
	switch s.scheme {
	case SchemeDilithium3:
		sig := make([]byte, mode3.SignatureSize)
		mode3.SignTo(s.dil, message, sig)
		return sig
	default:
		return ed25519.Sign(s.ed, message)
	}
}
