// Package bundle snapshots key/value pairs from a storage.Backend into a
// deterministic TAR archive and restores them.
//
// Layout:
//
//	index.json              optional; written first so Import can check digests
//	values/<base64url key>  raw value bytes
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"xdao.co/memhub/cidutil"
	"xdao.co/memhub/storage"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 1

const (
	indexName   = "index.json"
	valuePrefix = "values/"
)

var epoch0 = time.Unix(0, 0).UTC()

var (
	// ErrDigestMismatch is returned when a value does not match its index entry.
	ErrDigestMismatch = errors.New("bundle: value does not match index digest")
	// ErrMissingKey is returned by Export for keys no backend holds.
	ErrMissingKey = errors.New("bundle: key not found")
)

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// IncludeIndex writes index.json with the size and CID of every value.
	IncludeIndex bool
	// SkipMissing leaves out keys that are not found instead of failing.
	SkipMissing bool
}

// Export writes a deterministic TAR bundle containing the values of keys.
//
// The bundle bytes are deterministic: entry order is lexicographic by key and
// TAR headers are normalized.
func Export(ctx context.Context, w io.Writer, b storage.Backend, keys []string, opts ExportOptions) error {
	if b == nil {
		return fmt.Errorf("bundle: nil backend")
	}

	uniq := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if err := storage.ValidateKey(k); err != nil {
			return err
		}
		uniq[k] = struct{}{}
	}
	sorted := make([]string, 0, len(uniq))
	for k := range uniq {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	type entry struct {
		key   string
		value []byte
	}
	entries := make([]entry, 0, len(sorted))
	idx := indexJSON{Version: FormatVersion, CIDCodec: "raw", Multihash: "sha2-256"}
	for _, k := range sorted {
		v, found, err := b.Read(ctx, k)
		if err != nil {
			return err
		}
		if !found {
			if opts.SkipMissing {
				continue
			}
			return fmt.Errorf("%w: %q", ErrMissingKey, k)
		}
		entries = append(entries, entry{key: k, value: v})
		idx.Entries = append(idx.Entries, indexEntry{Key: k, Size: len(v), CID: cidutil.CIDv1RawSHA256(v)})
	}

	tw := tar.NewWriter(w)
	if opts.IncludeIndex {
		raw, err := json.Marshal(idx)
		if err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeFile(tw, indexName, append(raw, '\n')); err != nil {
			_ = tw.Close()
			return err
		}
	}
	for _, e := range entries {
		if err := writeFile(tw, valuePrefix+encodeKey(e.key), e.value); err != nil {
			_ = tw.Close()
			return err
		}
	}
	return tw.Close()
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown controls whether unknown TAR entries are ignored.
	//
	// Default (false) is fail-closed: unknown entries cause Import to return an error.
	IgnoreUnknown bool
}

// Import reads a bundle from r and writes every value into b. It returns
// the number of values written.
//
// When the bundle carries an index, every value must match its recorded CID
// and every indexed key must be present.
func Import(ctx context.Context, r io.Reader, b storage.Backend, opts ImportOptions) (int, error) {
	if b == nil {
		return 0, fmt.Errorf("bundle: nil backend")
	}

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}
	var want map[string]string
	n := 0

	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return n, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return n, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		if name == indexName {
			if n > 0 || want != nil {
				return n, fmt.Errorf("bundle: %s must be the first entry", indexName)
			}
			var idx indexJSON
			if err := json.NewDecoder(tr).Decode(&idx); err != nil {
				return n, fmt.Errorf("bundle: decode index: %w", err)
			}
			if idx.Version != FormatVersion {
				return n, fmt.Errorf("bundle: unsupported index version %d", idx.Version)
			}
			want = make(map[string]string, len(idx.Entries))
			for _, e := range idx.Entries {
				want[e.Key] = e.CID
			}
			continue
		}

		if !strings.HasPrefix(name, valuePrefix) {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return n, fmt.Errorf("bundle: unknown entry: %s", name)
		}

		key, err := decodeKey(strings.TrimPrefix(name, valuePrefix))
		if err != nil {
			return n, fmt.Errorf("bundle: invalid entry name %s: %w", name, err)
		}
		if _, ok := seen[key]; ok {
			return n, fmt.Errorf("bundle: duplicate entry for key %q", key)
		}
		seen[key] = struct{}{}

		value, err := io.ReadAll(tr)
		if err != nil {
			return n, err
		}
		if want != nil {
			id, ok := want[key]
			if !ok {
				return n, fmt.Errorf("bundle: key %q not in index", key)
			}
			if cidutil.CIDv1RawSHA256(value) != id {
				return n, fmt.Errorf("%w: %q", ErrDigestMismatch, key)
			}
		}
		if err := b.Write(ctx, key, value); err != nil {
			return n, err
		}
		n++
	}

	for k := range want {
		if _, ok := seen[k]; !ok {
			return n, fmt.Errorf("bundle: indexed key %q missing from bundle", k)
		}
	}
	return n, nil
}

type indexJSON struct {
	Version   int          `json:"version"`
	CIDCodec  string       `json:"cidCodec"`
	Multihash string       `json:"multihash"`
	Entries   []indexEntry `json:"entries"`
}

type indexEntry struct {
	Key  string `json:"key"`
	Size int    `json:"size"`
	CID  string `json:"cid"`
}

func encodeKey(k string) string { return base64.RawURLEncoding.EncodeToString([]byte(k)) }

func decodeKey(s string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	if len(b) == 0 {
		return "", storage.ErrInvalidKey
	}
	return string(b), nil
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}

	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
