package wallet

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestGenerateMnemonic(t *testing.T) {
	tests := []struct {
		bits  int
		words int
	}{
		{Entropy12Words, 12},
		{Entropy24Words, 24},
	}
	for _, tt := range tests {
		m, err := GenerateMnemonic(tt.bits)
		if err != nil {
			t.Fatalf("GenerateMnemonic(%d) error: %v", tt.bits, err)
		}
		if n := len(strings.Fields(m)); n != tt.words {
			t.Errorf("GenerateMnemonic(%d) = %d words, want %d", tt.bits, n, tt.words)
		}
		if !ValidateMnemonic(m) {
			t.Errorf("generated mnemonic does not validate: %q", m)
		}
	}

	if _, err := GenerateMnemonic(160); err == nil {
		t.Error("expected error for unsupported entropy size")
	}
}

func TestValidateMnemonic(t *testing.T) {
	tests := []struct {
		name     string
		mnemonic string
		want     bool
	}{
		{"valid 12 words", testMnemonic, true},
		{"extra whitespace and case", "  ABANDON abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon   about ", true},
		{"bad checksum", strings.Repeat("abandon ", 11) + "abandon", false},
		{"unknown word", strings.Repeat("abandon ", 11) + "bitcoin", false},
		{"single word", "abandon", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateMnemonic(tt.mnemonic); got != tt.want {
				t.Errorf("ValidateMnemonic() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSeedFromMnemonic_KnownVector(t *testing.T) {
	// BIP-39 vector: "abandon" x11 + "about", passphrase "TREZOR".
	seed, err := SeedFromMnemonic(testMnemonic, "TREZOR")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}
	want, _ := hex.DecodeString("c55257c360c07c72029aebc1b53c05ed0362ada38ead3e3e9efa3708e53495531f09a6987599d18264c1e1c92f2cf141630c7a3c4ab7c81b2f001698e7463b04")
	if !bytes.Equal(seed, want) {
		t.Errorf("seed = %x, want %x", seed, want)
	}
	if len(seed) != SeedSize {
		t.Errorf("seed length = %d, want %d", len(seed), SeedSize)
	}
}

func TestSeedFromMnemonic_Passphrase(t *testing.T) {
	s1, _ := SeedFromMnemonic(testMnemonic, "")
	s2, _ := SeedFromMnemonic(testMnemonic, "device")
	if bytes.Equal(s1, s2) {
		t.Error("passphrase should change the seed")
	}
}

func TestSeedFromMnemonic_Invalid(t *testing.T) {
	if _, err := SeedFromMnemonic("not a mnemonic", ""); err == nil {
		t.Error("expected error for invalid mnemonic")
	}
}
