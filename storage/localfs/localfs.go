// Package localfs stores each value as a file under a root directory.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"xdao.co/memhub/integrity"
	"xdao.co/memhub/storage"
)

const (
	valueExt     = ".bin"
	integrityLog = "merkle.log"
)

// Options configures a Store.
type Options struct {
	// Integrity appends sha256 of every written value to <root>/merkle.log.
	Integrity bool
}

// Store maps key to <root>/<key>.bin. Keys may contain '/' to nest
// directories but never escape root.
//
// Writes go to a temporary file that is synced and renamed over the
// destination, so readers see either the old or the new value.
type Store struct {
	root string
	log  *integrity.Log
}

// New constructs a filesystem store rooted at root. The directory will be created if needed.
func New(root string, opts Options) (*Store, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	s := &Store{root: root}
	if opts.Integrity {
		log, err := integrity.Open(filepath.Join(root, integrityLog))
		if err != nil {
			return nil, err
		}
		s.log = log
	}
	return s, nil
}

func (s *Store) Write(_ context.Context, key string, value []byte) error {
	path, err := s.pathFor(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return storage.IOError("write", err)
	}

	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return storage.IOError("write", err)
	}
	tmp := f.Name()
	defer f.Close()

	if _, err := f.Write(value); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return storage.IOError("write", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return storage.IOError("write", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return storage.IOError("write", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return storage.IOError("write", err)
	}
	syncDir(dir)

	if s.log != nil {
		if _, err := s.log.AppendContent(value); err != nil {
			return storage.IOError("integrity append", err)
		}
	}
	return nil
}

func (s *Store) Read(_ context.Context, key string) ([]byte, bool, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, storage.IOError("read", err)
	}
	return b, true, nil
}

// IntegrityRoot returns the Merkle root of written values. ok is false when
// the store was opened without integrity logging.
func (s *Store) IntegrityRoot() (root [integrity.LeafSize]byte, ok bool) {
	if s.log == nil {
		return root, false
	}
	return s.log.Root(), true
}

func (s *Store) Close() error {
	if s.log == nil {
		return nil
	}
	return s.log.Close()
}

func (s *Store) pathFor(key string) (string, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrInvalidKey, err)
	}
	return filepath.Join(s.root, filepath.FromSlash(k)+valueExt), nil
}

func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("key contains '..'")
	}
	if strings.HasPrefix(key, "/") || strings.HasPrefix(key, `\`) {
		return "", fmt.Errorf("absolute key")
	}
	if strings.ContainsRune(key, 0) {
		return "", fmt.Errorf("key contains NUL")
	}
	clean := filepath.ToSlash(filepath.Clean(key))
	if clean == "." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("key escapes root")
	}
	// Every key owns exactly one file, so aliases of a cleaner path are refused.
	if clean != key {
		return "", fmt.Errorf("key is not in canonical form (%q)", clean)
	}
	return clean, nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
