package keys

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

var (
	ErrSignatureLength  = errors.New("keys: signature has wrong length")
	ErrInvalidSignature = errors.New("keys: signature verification failed")
)

// Verify checks a detached signature over message.
//
// ed25519 verification is strict: the scalar must be canonical, and both the
// public key and the commitment R must be canonical encodings of points
// outside the small-order subgroup.
func Verify(pub PublicKey, message, sig []byte) error {
	if want := pub.Scheme.SignatureSize(); want == 0 {
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, pub.Scheme)
	} else if len(sig) != want {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrSignatureLength, len(sig), want)
	}
	if len(pub.Bytes) != pub.Scheme.PublicKeySize() {
		return fmt.Errorf("%w: %s public key must be %d bytes", ErrInvalidPublicKey, pub.Scheme, pub.Scheme.PublicKeySize())
	}

	switch pub.Scheme {
	case SchemeEd25519:
		return verifyEd25519Strict(pub.Bytes, message, sig)
	case SchemeDilithium3:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub.Bytes); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		if !mode3.Verify(&pk, message, sig) {
			return ErrInvalidSignature
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedScheme, pub.Scheme)
}

func verifyEd25519Strict(pub, message, sig []byte) error {
	if err := checkStrictPoint(pub); err != nil {
		return fmt.Errorf("%w: public key: %v", ErrInvalidPublicKey, err)
	}
	if err := checkStrictPoint(sig[:32]); err != nil {
		return fmt.Errorf("%w: R: %v", ErrInvalidSignature, err)
	}
	if _, err := edwards25519.NewScalar().SetCanonicalBytes(sig[32:]); err != nil {
		return fmt.Errorf("%w: non-canonical S", ErrInvalidSignature)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), message, sig) {
		return ErrInvalidSignature
	}
	return nil
}

func checkStrictPoint(enc []byte) error {
	p, err := new(edwards25519.Point).SetBytes(enc)
	if err != nil {
		return err
	}
	if !bytes.Equal(p.Bytes(), enc) {
		return errors.New("non-canonical point encoding")
	}
	if new(edwards25519.Point).MultByCofactor(p).Equal(edwards25519.NewIdentityPoint()) == 1 {
		return errors.New("small-order point")
	}
	return nil
}
