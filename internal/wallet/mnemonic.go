// Package wallet holds the signing device's key material: BIP-39 mnemonics
// and seeds, BIP-32 derivation, the encrypted on-disk keystore and the key
// chain the withdrawal handler signs with.
package wallet

import (
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// SeedSize is the length of a BIP-39 seed in bytes (512 bits).
const SeedSize = 64

// Entropy sizes accepted by GenerateMnemonic.
const (
	Entropy12Words = 128
	Entropy24Words = 256
)

// GenerateMnemonic creates a new BIP-39 mnemonic from bits of entropy
// (128 for 12 words, 256 for 24 words).
func GenerateMnemonic(bits int) (string, error) {
	if bits != Entropy12Words && bits != Entropy24Words {
		return "", fmt.Errorf("unsupported entropy size %d", bits)
	}
	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// NormalizeMnemonic collapses whitespace and lowercases the words.
func NormalizeMnemonic(mnemonic string) string {
	return strings.Join(strings.Fields(strings.ToLower(mnemonic)), " ")
}

// ValidateMnemonic checks word count, word list membership and checksum.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(NormalizeMnemonic(mnemonic))
}

// SeedFromMnemonic derives the 512-bit BIP-39 seed (PBKDF2-SHA512) from a
// mnemonic and optional passphrase.
func SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	mnemonic = NormalizeMnemonic(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("derive seed: %w", err)
	}
	return seed, nil
}
