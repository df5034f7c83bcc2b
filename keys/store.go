package keys

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// KeyStore keeps signing seeds as hex files under a directory.
//
// Layout: <Directory>/<name>.seed, mode 0600. The same seed serves every
// scheme; the scheme is chosen when a Signer is derived.
type KeyStore struct {
	Directory string
}

const seedExt = ".seed"

func GetDefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".memhub", "keys"), nil
}

func CreateKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = GetDefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

func (ks *KeyStore) seedPath(name string) string {
	return filepath.Join(ks.Directory, name+seedExt)
}

func CheckKeyName(name string) error {
	if name == "" {
		return errors.New("key name cannot be empty")
	}
	for _, char := range name {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in key name", char)
	}
	return nil
}

func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimSpace(seedHex)
	seedHex = strings.TrimPrefix(seedHex, "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", SeedSize, len(data))
	}
	return data, nil
}

// Save writes seed under name. An existing key is replaced only when
// overwrite is set.
func (ks *KeyStore) Save(name string, seed []byte, overwrite bool) (string, error) {
	if err := CheckKeyName(name); err != nil {
		return "", err
	}
	if len(seed) != SeedSize {
		return "", fmt.Errorf("expected seed length of %d bytes", SeedSize)
	}
	filePath := ks.seedPath(name)
	if err := os.MkdirAll(ks.Directory, 0o700); err != nil {
		return "", err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(filePath, flags, 0o600)
	if err != nil {
		return "", err
	}
	defer file.Close()
	if _, err := file.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		return "", err
	}
	return filePath, file.Close()
}

// LoadSeed resolves a seed from, in order: a literal hex seed, a seed file,
// or a stored key name.
func (ks *KeyStore) LoadSeed(seedHex, name, keyFile string) ([]byte, error) {
	if seedHex != "" {
		return ParseSeedHex(seedHex)
	}
	if keyFile != "" {
		return loadSeedFile(keyFile)
	}
	if name != "" {
		if err := CheckKeyName(name); err != nil {
			return nil, err
		}
		return loadSeedFile(ks.seedPath(name))
	}
	return nil, errors.New("no signing key provided")
}

// Signer derives a scheme signer from the stored key name.
func (ks *KeyStore) Signer(name string, scheme Scheme) (*Signer, error) {
	seed, err := ks.LoadSeed("", name, "")
	if err != nil {
		return nil, err
	}
	return NewSigner(scheme, seed)
}

// ListKeys returns stored key names in sorted order.
func (ks *KeyStore) ListKeys() ([]string, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), seedExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), seedExt))
	}
	sort.Strings(names)
	return names, nil
}

func loadSeedFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(string(data))
}
