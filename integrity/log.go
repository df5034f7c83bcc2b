// Package integrity keeps an append-only log of content digests and its
// Merkle root.
//
// The log file is a plain sequence of 32-byte sha256 leaves. The root folds
// the leaves pairwise with sha256; an unpaired leaf at the end of a level is
// hashed on its own. An empty log has the all-zero root.
package integrity

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/memhub/cidutil"
)

// LeafSize is the size of one log entry.
const LeafSize = sha256.Size

var ErrCorrupt = errors.New("integrity: log length is not a multiple of the leaf size")

// Log is an append-only Merkle log backed by a file. It is safe for
// concurrent use.
type Log struct {
	mu     sync.Mutex
	f      *os.File
	leaves [][LeafSize]byte
}

// Open opens or creates the log at path and loads its leaves.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	leaves, err := readLeaves(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("integrity: open %s: %w", path, err)
	}
	return &Log{f: f, leaves: leaves}, nil
}

func readLeaves(r io.ReadSeeker) ([][LeafSize]byte, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	var leaves [][LeafSize]byte
	for {
		var leaf [LeafSize]byte
		_, err := io.ReadFull(r, leaf[:])
		if err == io.EOF {
			return leaves, nil
		}
		if err == io.ErrUnexpectedEOF {
			return nil, ErrCorrupt
		}
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
	}
}

// Append durably records leaf.
func (l *Log) Append(leaf [LeafSize]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return os.ErrClosed
	}
	if _, err := l.f.Write(leaf[:]); err != nil {
		return err
	}
	if err := l.f.Sync(); err != nil {
		return err
	}
	l.leaves = append(l.leaves, leaf)
	return nil
}

// AppendContent records sha256(data) and returns the content's CID.
func (l *Log) AppendContent(data []byte) (cid.Cid, error) {
	id, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, err
	}
	digest, err := cidutil.SHA256Digest(id)
	if err != nil {
		return cid.Undef, err
	}
	return id, l.Append(digest)
}

// Root returns the Merkle root over all leaves.
func (l *Log) Root() [LeafSize]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Root(l.leaves)
}

// Len returns the number of leaves.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.leaves)
}

// Contains reports whether id's digest was ever appended.
func (l *Log) Contains(id cid.Cid) bool {
	digest, err := cidutil.SHA256Digest(id)
	if err != nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, leaf := range l.leaves {
		if leaf == digest {
			return true
		}
	}
	return false
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// Root computes the Merkle root of leaves.
func Root(leaves [][LeafSize]byte) [LeafSize]byte {
	if len(leaves) == 0 {
		return [LeafSize]byte{}
	}
	level := append([][LeafSize]byte(nil), leaves...)
	for len(level) > 1 {
		next := make([][LeafSize]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			h := sha256.New()
			h.Write(level[i][:])
			if i+1 < len(level) {
				h.Write(level[i+1][:])
			}
			var node [LeafSize]byte
			h.Sum(node[:0])
			next = append(next, node)
		}
		level = next
	}
	return level[0]
}
