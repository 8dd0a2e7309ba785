package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

const keystoreVersion = 2

// ErrKeyNotFound is returned for a missing key file.
var ErrKeyNotFound = errors.New("signing key not found")

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// keyFile is the on-disk JSON format for an encrypted device seed.
type keyFile struct {
	Version       int       `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	Network       string    `json:"network"`
	Fingerprint   string    `json:"fingerprint"`
	EncryptedSeed []byte    `json:"encrypted_seed"`
}

// KeyInfo is the public metadata of a stored key.
type KeyInfo struct {
	Name        string    `json:"name"`
	Network     string    `json:"network"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
}

// Keystore manages encrypted seeds on disk, one file per named key.
type Keystore struct {
	path string
}

// NewKeystore creates a keystore that reads/writes to the given directory.
// The directory is created if it doesn't exist.
func NewKeystore(path string) (*Keystore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{path: path}, nil
}

func (ks *Keystore) keyPath(name string) (string, error) {
	if !validName.MatchString(name) {
		return "", fmt.Errorf("invalid key name %q", name)
	}
	return filepath.Join(ks.path, name+".key"), nil
}

// Create encrypts seed under password and stores it as name.
func (ks *Keystore) Create(name, network string, seed, password []byte, params EncryptionParams) (*KeyInfo, error) {
	path, err := ks.keyPath(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("key %q already exists", name)
	}

	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	encrypted, err := Encrypt(seed, password, params)
	if err != nil {
		return nil, fmt.Errorf("encrypt seed: %w", err)
	}

	kf := keyFile{
		Version:       keystoreVersion,
		CreatedAt:     time.Now().UTC(),
		Network:       network,
		Fingerprint:   master.Fingerprint(),
		EncryptedSeed: encrypted,
	}
	if err := writeKeyFile(path, &kf); err != nil {
		return nil, err
	}
	return kf.info(name), nil
}

// Load decrypts the seed stored as name.
func (ks *Keystore) Load(name string, password []byte) ([]byte, error) {
	kf, err := ks.read(name)
	if err != nil {
		return nil, err
	}
	seed, err := Decrypt(kf.EncryptedSeed, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt key %q: %w", name, err)
	}
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("key %q holds a %d-byte seed", name, len(seed))
	}
	return seed, nil
}

// Info returns the metadata of a stored key without decrypting it.
func (ks *Keystore) Info(name string) (*KeyInfo, error) {
	kf, err := ks.read(name)
	if err != nil {
		return nil, err
	}
	return kf.info(name), nil
}

// List returns the names of all stored keys.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.path)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".key" {
			continue
		}
		names = append(names, e.Name()[:len(e.Name())-len(".key")])
	}
	return names, nil
}

// Exists reports whether name is stored.
func (ks *Keystore) Exists(name string) bool {
	path, err := ks.keyPath(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Delete removes a stored key.
func (ks *Keystore) Delete(name string) error {
	path, err := ks.keyPath(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("%w: %q", ErrKeyNotFound, name)
	}
	return os.Remove(path)
}

func (kf *keyFile) info(name string) *KeyInfo {
	return &KeyInfo{
		Name:        name,
		Network:     kf.Network,
		Fingerprint: kf.Fingerprint,
		CreatedAt:   kf.CreatedAt,
	}
}

func (ks *Keystore) read(name string) (*keyFile, error) {
	path, err := ks.keyPath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse key %q: %w", name, err)
	}
	if kf.Version != keystoreVersion {
		return nil, fmt.Errorf("unsupported key file version: %d", kf.Version)
	}
	return &kf, nil
}

func writeKeyFile(path string, kf *keyFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write key: %w", err)
	}
	return nil
}
