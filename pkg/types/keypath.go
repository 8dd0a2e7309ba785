package types

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// HardenedOffset marks a hardened BIP-32 child index.
	HardenedOffset uint32 = 0x80000000

	// MaxKeyPathSteps is the deepest derivation path a request may carry.
	MaxKeyPathSteps = 10
)

// KeyPath is a BIP-32 derivation path from the master key.
type KeyPath []uint32

// String renders the path as m/84'/0'/0'/0/5. The empty path is the master
// key itself.
func (p KeyPath) String() string {
	if len(p) == 0 {
		return "m"
	}
	var b strings.Builder
	b.WriteString("m")
	for _, step := range p {
		b.WriteByte('/')
		if step >= HardenedOffset {
			b.WriteString(strconv.FormatUint(uint64(step-HardenedOffset), 10))
			b.WriteByte('\'')
			continue
		}
		b.WriteString(strconv.FormatUint(uint64(step), 10))
	}
	return b.String()
}

// Display is the label shown to the user for the path.
func (p KeyPath) Display() string {
	if len(p) == 0 {
		return "(Master key)"
	}
	return p.String()
}

// Clone returns an independent copy of the path.
func (p KeyPath) Clone() KeyPath {
	if p == nil {
		return nil
	}
	out := make(KeyPath, len(p))
	copy(out, p)
	return out
}

// ParseKeyPath parses "m/84'/0'/0'/0/0". Both ' and h mark hardened steps.
// "m" (or an empty string) is the master key.
func ParseKeyPath(s string) (KeyPath, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "m" || s == "M" {
		return KeyPath{}, nil
	}
	parts := strings.Split(s, "/")
	if parts[0] == "m" || parts[0] == "M" {
		parts = parts[1:]
	}
	if len(parts) > MaxKeyPathSteps {
		return nil, fmt.Errorf("key path has %d steps, max %d", len(parts), MaxKeyPathSteps)
	}

	path := make(KeyPath, 0, len(parts))
	for _, part := range parts {
		hardened := false
		if strings.HasSuffix(part, "'") || strings.HasSuffix(part, "h") || strings.HasSuffix(part, "H") {
			hardened = true
			part = part[:len(part)-1]
		}
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid path step %q: %w", part, err)
		}
		step := uint32(n)
		if step >= HardenedOffset {
			return nil, fmt.Errorf("path step %d out of range", n)
		}
		if hardened {
			step += HardenedOffset
		}
		path = append(path, step)
	}
	return path, nil
}
