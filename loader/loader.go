// Package loader turns signed plugin artifacts into storage backends.
//
// Loading is fail-closed: policy, kind support and signature checks all
// complete before any plugin code is mapped or executed.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"xdao.co/memhub/keys"
	"xdao.co/memhub/metrics"
	"xdao.co/memhub/policy"
	"xdao.co/memhub/storage"
)

// PluginKind selects the loading mechanism.
type PluginKind string

const (
	KindNative PluginKind = "native"
	KindWasm   PluginKind = "wasm"
)

// SignatureExt is appended to an artifact path to locate its detached signature.
const SignatureExt = ".sig"

// ParseKind parses a kind name. An empty name is inferred from path.
func ParseKind(name, path string) (PluginKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "native", "so":
		return KindNative, nil
	case "wasm", "wasi":
		return KindWasm, nil
	case "":
		if strings.EqualFold(filepath.Ext(path), ".wasm") {
			return KindWasm, nil
		}
		return KindNative, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedPluginKind, name)
	}
}

// Artifact describes a plugin file on disk.
type Artifact struct {
	Path string
	Kind PluginKind
}

// SignaturePath returns the detached signature location for the artifact.
func (a Artifact) SignaturePath() string { return a.Path + SignatureExt }

type Options struct {
	// Verify requires a valid detached signature by PublicKey.
	Verify    bool
	PublicKey keys.PublicKey

	// Kinds enables plugin kinds; nil enables every compiled-in kind.
	Kinds []PluginKind

	Policy policy.Engine
	Logger *zap.Logger
}

// Plugin is a loaded backend instance.
type Plugin struct {
	ID      string
	Path    string
	Kind    PluginKind
	Backend storage.Backend
}

// Close releases the instance. Native code stays mapped for the life of the
// process.
func (p *Plugin) Close() error { return storage.Close(p.Backend) }

type Loader struct {
	verify bool
	pub    keys.PublicKey
	kinds  map[PluginKind]bool
	policy policy.Engine
	log    *zap.Logger
}

// New validates opts.
func New(opts Options) (*Loader, error) {
	if opts.Verify {
		if n := opts.PublicKey.Scheme.PublicKeySize(); n == 0 || len(opts.PublicKey.Bytes) != n {
			return nil, fmt.Errorf("loader: verification enabled without a valid public key")
		}
	}
	l := &Loader{
		verify: opts.Verify,
		pub:    opts.PublicKey,
		kinds:  make(map[PluginKind]bool),
		policy: opts.Policy,
		log:    opts.Logger,
	}
	if l.log == nil {
		l.log = zap.NewNop()
	}
	kinds := opts.Kinds
	if kinds == nil {
		kinds = []PluginKind{KindNative, KindWasm}
	}
	for _, k := range kinds {
		l.kinds[k] = true
	}
	return l, nil
}

func (l *Loader) supported(k PluginKind) bool {
	switch k {
	case KindNative:
		return nativeSupported && l.kinds[k]
	case KindWasm:
		return l.kinds[k]
	default:
		return false
	}
}

// Load runs the pipeline for a. The constructor runs at most once and only
// after verification succeeded.
func (l *Loader) Load(ctx context.Context, a Artifact) (*Plugin, error) {
	p, err := l.load(ctx, a)
	if err != nil {
		metrics.PluginLoad(string(a.Kind), string(ReasonOf(err)))
		l.log.Warn("Plugin load failed",
			zap.String("path", a.Path),
			zap.String("kind", string(a.Kind)),
			zap.String("reason", string(ReasonOf(err))),
			zap.Error(err),
		)
		return nil, err
	}
	metrics.PluginLoad(string(a.Kind), "ok")
	l.log.Info("Loaded plugin",
		zap.String("id", p.ID),
		zap.String("path", p.Path),
		zap.String("kind", string(p.Kind)),
		zap.Bool("verified", l.verify),
	)
	return p, nil
}

func (l *Loader) load(ctx context.Context, a Artifact) (*Plugin, error) {
	if l.policy != nil && !l.policy.Allow(policy.ActionPluginLoad, map[string]any{"path": a.Path, "kind": string(a.Kind)}) {
		return nil, &Error{Kind: KindPolicy, Reason: ReasonPolicyDenied, Path: a.Path}
	}
	if !l.supported(a.Kind) {
		return nil, loadError(a.Path, ReasonUnsupportedPluginKind, fmt.Errorf("kind %q not enabled", a.Kind))
	}

	var code []byte
	if l.verify {
		var err error
		if code, err = l.verified(a); err != nil {
			return nil, err
		}
	}

	var (
		b   storage.Backend
		err error
	)
	switch a.Kind {
	case KindNative:
		b, err = loadNative(a.Path)
	case KindWasm:
		if code == nil {
			if code, err = os.ReadFile(a.Path); err != nil {
				return nil, loadError(a.Path, ReasonInstantiationFailed, err)
			}
		}
		b, err = adoptWasmFn(ctx, code)
	}
	if err != nil {
		var le *Error
		if errors.As(err, &le) {
			le.Path = a.Path
		}
		return nil, err
	}
	return &Plugin{ID: uuid.NewString(), Path: a.Path, Kind: a.Kind, Backend: b}, nil
}

// verified reads the signature and the artifact and returns the artifact
// bytes once the signature checks out.
func (l *Loader) verified(a Artifact) ([]byte, error) {
	sig, err := os.ReadFile(a.SignaturePath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, verificationError(a.Path, ReasonMissingSignature, nil)
		}
		return nil, verificationError(a.Path, ReasonMissingSignature, err)
	}
	if len(sig) != l.pub.Scheme.SignatureSize() {
		return nil, verificationError(a.Path, ReasonInvalidSignatureFormat,
			fmt.Errorf("got %d bytes, want %d", len(sig), l.pub.Scheme.SignatureSize()))
	}
	code, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, verificationError(a.Path, ReasonSignatureVerificationFailed, err)
	}
	if err := keys.Verify(l.pub, code, sig); err != nil {
		return nil, verificationError(a.Path, ReasonSignatureVerificationFailed, err)
	}
	return code, nil
}
