package wallet

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// SaltSize is the Argon2id salt length.
const SaltSize = 32

// Sealed layout:
//
//	salt(32) | memory(4, LE) | iterations(4, LE) | parallelism(1) | nonce(24) | ciphertext
const headerSize = SaltSize + 4 + 4 + 1

// ErrDecrypt is returned when the password is wrong or the data was altered.
var ErrDecrypt = errors.New("wrong password or corrupted keystore")

// EncryptionParams holds Argon2id parameters.
type EncryptionParams struct {
	Memory      uint32 // in KiB
	Iterations  uint32
	Parallelism uint8
}

// DefaultParams returns the Argon2id parameters used for new keystores.
func DefaultParams() EncryptionParams {
	return EncryptionParams{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
	}
}

func (p EncryptionParams) validate() error {
	if p.Memory == 0 || p.Iterations == 0 || p.Parallelism == 0 {
		return fmt.Errorf("invalid argon2 parameters %+v", p)
	}
	return nil
}

func (p EncryptionParams) deriveKey(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, p.Iterations, p.Memory, p.Parallelism, chacha20poly1305.KeySize)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Encrypt seals data under password with Argon2id and XChaCha20-Poly1305.
// The KDF parameters are stored in the header and authenticated as
// associated data.
func Encrypt(data, password []byte, params EncryptionParams) ([]byte, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	header := make([]byte, headerSize, headerSize+chacha20poly1305.NonceSizeX+len(data)+chacha20poly1305.Overhead)
	if _, err := rand.Read(header[:SaltSize]); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	binary.LittleEndian.PutUint32(header[SaltSize:], params.Memory)
	binary.LittleEndian.PutUint32(header[SaltSize+4:], params.Iterations)
	header[SaltSize+8] = params.Parallelism

	key := params.deriveKey(password, header[:SaltSize])
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ad := append([]byte(nil), header...)
	out := append(header, nonce...)
	return aead.Seal(out, nonce, data, ad), nil
}

// Decrypt opens data sealed by Encrypt.
func Decrypt(sealed, password []byte) ([]byte, error) {
	nonceSize := chacha20poly1305.NonceSizeX
	if min := headerSize + nonceSize + chacha20poly1305.Overhead; len(sealed) < min {
		return nil, fmt.Errorf("encrypted data too short: %d bytes, need at least %d", len(sealed), min)
	}

	header := sealed[:headerSize]
	params := EncryptionParams{
		Memory:      binary.LittleEndian.Uint32(header[SaltSize:]),
		Iterations:  binary.LittleEndian.Uint32(header[SaltSize+4:]),
		Parallelism: header[SaltSize+8],
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	nonce := sealed[headerSize : headerSize+nonceSize]
	ciphertext := sealed[headerSize+nonceSize:]

	key := params.deriveKey(password, header[:SaltSize])
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, header)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
