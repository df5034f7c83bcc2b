package keys

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"
)

var (
	ErrUnsupportedScheme = errors.New("keys: unsupported signature scheme")
	ErrInvalidPublicKey  = errors.New("keys: invalid public key")
)

// Scheme names a signature scheme.
type Scheme string

const (
	SchemeEd25519    Scheme = "ed25519"
	SchemeDilithium3 Scheme = "dilithium3"
)

// ParseScheme accepts a scheme name. The empty string selects ed25519.
func ParseScheme(s string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(SchemeEd25519):
		return SchemeEd25519, nil
	case string(SchemeDilithium3), "mldsa65":
		return SchemeDilithium3, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, s)
	}
}

// SignatureSize returns the fixed length of a detached signature.
func (s Scheme) SignatureSize() int {
	switch s {
	case SchemeEd25519:
		return ed25519.SignatureSize
	case SchemeDilithium3:
		return mode3.SignatureSize
	default:
		return 0
	}
}

// PublicKeySize returns the fixed length of a public key.
func (s Scheme) PublicKeySize() int {
	switch s {
	case SchemeEd25519:
		return ed25519.PublicKeySize
	case SchemeDilithium3:
		return mode3.PublicKeySize
	default:
		return 0
	}
}

// PublicKey is a scheme-tagged verification key.
type PublicKey struct {
	Scheme Scheme
	Bytes  []byte
}

// NewPublicKey validates raw key bytes for scheme.
func NewPublicKey(scheme Scheme, raw []byte) (PublicKey, error) {
	want := scheme.PublicKeySize()
	if want == 0 {
		return PublicKey{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	if len(raw) != want {
		return PublicKey{}, fmt.Errorf("%w: %s public key must be %d bytes, got %d", ErrInvalidPublicKey, scheme, want, len(raw))
	}
	return PublicKey{Scheme: scheme, Bytes: append([]byte(nil), raw...)}, nil
}

// ParsePublicKey parses "<scheme>:<base64>" or a bare hex ed25519 key.
func ParsePublicKey(s string) (PublicKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PublicKey{}, fmt.Errorf("%w: empty", ErrInvalidPublicKey)
	}
	alg, b64, ok := strings.Cut(s, ":")
	if !ok {
		raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
		if err != nil {
			return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		return NewPublicKey(SchemeEd25519, raw)
	}
	scheme, err := ParseScheme(alg)
	if err != nil {
		return PublicKey{}, err
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return NewPublicKey(scheme, raw)
}

// String encodes the key as "<scheme>:<base64>".
func (k PublicKey) String() string {
	return string(k.Scheme) + ":" + base64.StdEncoding.EncodeToString(k.Bytes)
}

// Fingerprint is a short stable identifier for log lines.
func (k PublicKey) Fingerprint() string {
	sum := sha3.Sum256(append([]byte(string(k.Scheme)+":"), k.Bytes...))
	return hex.EncodeToString(sum[:8])
}
