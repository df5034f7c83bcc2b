// Package bolt is a storage.Backend on an embedded bbolt database, with
// optional authenticated encryption of values.
package bolt

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
	"golang.org/x/crypto/chacha20poly1305"

	"xdao.co/memhub/storage"
)

// KeySize is the required length of an encryption key.
const KeySize = chacha20poly1305.KeySize

var (
	defaultBucket = []byte("memhub")

	ErrDecrypt = errors.New("bolt: value failed authentication")
)

// Options configures a Store.
type Options struct {
	// Bucket holds all keys. Defaults to "memhub".
	Bucket string
	// EncryptionKey enables XChaCha20-Poly1305 when set. Stored values are
	// nonce || ciphertext, and the key itself is bound as associated data.
	EncryptionKey []byte
	Timeout       time.Duration
	Logger        *zap.Logger
}

// Store is a storage.Backend backed by boltdb.
type Store struct {
	path   string
	bucket []byte
	db     *bolt.DB
	aead   cipher.AEAD
	logger *zap.Logger
	descs  storeDescs
}

// Open creates the bolt file if it doesn't exist and opens it otherwise.
func Open(path string, opts Options) (*Store, error) {
	s := &Store{
		path:   path,
		bucket: defaultBucket,
		logger: opts.Logger,
		descs:  newStoreDescs(path),
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if opts.Bucket != "" {
		s.bucket = []byte(opts.Bucket)
	}
	if opts.EncryptionKey != nil {
		if len(opts.EncryptionKey) != KeySize {
			return nil, fmt.Errorf("bolt: encryption key must be %d bytes, got %d", KeySize, len(opts.EncryptionKey))
		}
		aead, err := chacha20poly1305.NewX(opts.EncryptionKey)
		if err != nil {
			return nil, err
		}
		s.aead = aead
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second
	}

	// Ensure the required directory structure exists.
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("unable to create directory %s: %v", path, err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("unable to open boltdb file %v", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.db = db

	s.logger.Info("Resources opened", zap.String("path", path), zap.Bool("encrypted", s.aead != nil))
	return s, nil
}

// Close the connection to the bolt database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Write(_ context.Context, key string, value []byte) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	stored, err := s.seal(key, value)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), stored)
	})
	return storage.IOError("write", err)
}

func (s *Store) Read(_ context.Context, key string) ([]byte, bool, error) {
	if err := storage.ValidateKey(key); err != nil {
		return nil, false, err
	}
	var stored []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(key))
		if v != nil {
			// v is only valid for the life of the transaction.
			stored = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, storage.IOError("read", err)
	}
	if stored == nil {
		return nil, false, nil
	}
	value, err := s.open(key, stored)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *Store) seal(key string, value []byte) ([]byte, error) {
	if s.aead == nil {
		return append([]byte{}, value...), nil
	}
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(value)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, storage.IOError("nonce", err)
	}
	return s.aead.Seal(nonce, nonce, value, []byte(key)), nil
}

func (s *Store) open(key string, stored []byte) ([]byte, error) {
	if s.aead == nil {
		return stored, nil
	}
	n := s.aead.NonceSize()
	if len(stored) < n+s.aead.Overhead() {
		return nil, &storage.Error{Kind: storage.KindIO, Op: "decrypt", Cause: ErrDecrypt}
	}
	out, err := s.aead.Open(nil, stored[:n], stored[n:], []byte(key))
	if err != nil {
		return nil, &storage.Error{Kind: storage.KindIO, Op: "decrypt", Cause: ErrDecrypt}
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}
