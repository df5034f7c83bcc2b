package loader

import (
	"errors"
	"fmt"
)

// FailureKind groups load failure reasons.
type FailureKind string

const (
	KindVerification FailureKind = "verification"
	KindLoad         FailureKind = "load"
	KindPolicy       FailureKind = "policy"
)

// Reason names a terminal load failure.
type Reason string

const (
	ReasonMissingSignature            Reason = "MissingSignature"
	ReasonInvalidSignatureFormat      Reason = "InvalidSignatureFormat"
	ReasonSignatureVerificationFailed Reason = "SignatureVerificationFailed"
	ReasonUnsupportedPluginKind       Reason = "UnsupportedPluginKind"
	ReasonMissingConstructorSymbol    Reason = "MissingConstructorSymbol"
	ReasonConstructorReturnedNull     Reason = "ConstructorReturnedNull"
	ReasonInstantiationFailed         Reason = "InstantiationFailed"
	ReasonPolicyDenied                Reason = "PolicyDenied"
)

var (
	ErrMissingSignature            = errors.New("loader: missing signature")
	ErrInvalidSignatureFormat      = errors.New("loader: invalid signature format")
	ErrSignatureVerificationFailed = errors.New("loader: signature verification failed")
	ErrUnsupportedPluginKind       = errors.New("loader: unsupported plugin kind")
	ErrMissingConstructorSymbol    = errors.New("loader: missing constructor symbol")
	ErrConstructorReturnedNull     = errors.New("loader: constructor returned null")
	ErrInstantiationFailed         = errors.New("loader: instantiation failed")
	ErrPolicyDenied                = errors.New("loader: denied by policy")
)

var sentinels = map[Reason]error{
	ReasonMissingSignature:            ErrMissingSignature,
	ReasonInvalidSignatureFormat:      ErrInvalidSignatureFormat,
	ReasonSignatureVerificationFailed: ErrSignatureVerificationFailed,
	ReasonUnsupportedPluginKind:       ErrUnsupportedPluginKind,
	ReasonMissingConstructorSymbol:    ErrMissingConstructorSymbol,
	ReasonConstructorReturnedNull:     ErrConstructorReturnedNull,
	ReasonInstantiationFailed:         ErrInstantiationFailed,
	ReasonPolicyDenied:                ErrPolicyDenied,
}

// Error is returned for every failed load. errors.Is matches the sentinel
// for Reason as well as anything in Cause's chain.
type Error struct {
	Kind   FailureKind
	Reason Reason
	Path   string
	Cause  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("loader: %s %s: %s", e.Kind, e.Path, e.Reason)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Reason]
	return ok && s == target
}

func verificationError(path string, r Reason, cause error) error {
	return &Error{Kind: KindVerification, Reason: r, Path: path, Cause: cause}
}

func loadError(path string, r Reason, cause error) error {
	return &Error{Kind: KindLoad, Reason: r, Path: path, Cause: cause}
}

// ReasonOf returns the Reason of a loader Error in err's chain, or "".
func ReasonOf(err error) Reason {
	var le *Error
	if errors.As(err, &le) {
		return le.Reason
	}
	return ""
}
