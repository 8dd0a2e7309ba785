package withdraw

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/stbtc-signer/pkg/crypto"
	"github.com/Klingon-tech/stbtc-signer/pkg/types"
)

// MessageMagic prefixes every Bitcoin signed message.
const MessageMagic = "\x18Bitcoin Signed Message:\n"

// SignatureSize is the length of a compact recoverable signature.
const SignatureSize = 65

// maxComponentLength is the longest DER integer for a secp256k1 scalar
// (32 bytes plus a sign byte).
const maxComponentLength = 33

// Signature is a compact recoverable signature: header || r || s, with
// header = 27 + 4 + parity (compressed key).
type Signature [SignatureSize]byte

// RenderHex writes the lowercase hex form of digest into dst, which must
// hold at least 64 bytes. Returns the number of bytes written.
func RenderHex(dst []byte, digest types.Hash) (int, error) {
	if len(dst) < hex.EncodedLen(types.HashSize) {
		return 0, fmt.Errorf("%w: hex buffer is %d bytes", ErrBadState, len(dst))
	}
	return hex.Encode(dst, digest[:]), nil
}

// MessageDigest returns sha256d(magic || varint(len(msg)) || msg).
func MessageDigest(msg []byte) (types.Hash, error) {
	var buf bytes.Buffer
	buf.Grow(len(MessageMagic) + 9 + len(msg))
	buf.WriteString(MessageMagic)
	if err := wire.WriteVarInt(&buf, 0, uint64(len(msg))); err != nil {
		return types.Hash{}, fmt.Errorf("%w: %w", ErrBadState, err)
	}
	buf.Write(msg)
	return crypto.DoubleSHA256(buf.Bytes()), nil
}

// Repack converts a DER signature into the compact layout. R and S are
// copied right-aligned into their 32-byte slots, S first. A 33-byte
// component's leading sign byte lands one slot early and is overwritten by
// R's last byte or the header.
func Repack(der []byte, info crypto.SignInfo) (Signature, error) {
	var out Signature
	if len(der) < 8 || der[0] != 0x30 || der[2] != 0x02 {
		return out, fmt.Errorf("%w: not a DER signature", ErrBadState)
	}
	rLen := int(der[3])
	if rLen > maxComponentLength {
		return out, fmt.Errorf("%w: r is %d bytes", ErrBadState, rLen)
	}
	if 4+rLen+2 > len(der) || der[4+rLen] != 0x02 {
		return out, fmt.Errorf("%w: truncated DER signature", ErrBadState)
	}
	sLen := int(der[4+rLen+1])
	if sLen > maxComponentLength {
		return out, fmt.Errorf("%w: s is %d bytes", ErrBadState, sLen)
	}
	if 4+rLen+2+sLen > len(der) {
		return out, fmt.Errorf("%w: truncated DER signature", ErrBadState)
	}

	for i := sLen - 1; i >= 0; i-- {
		out[1+32+32-sLen+i] = der[4+rLen+2+i]
	}
	for i := rLen - 1; i >= 0; i-- {
		out[1+32-rLen+i] = der[4+i]
	}
	out[0] = 27 + 4 + info.Parity()
	return out, nil
}

// SignatureCodec signs EIP-712 digests as Bitcoin signed messages.
type SignatureCodec struct {
	keys Keys
}

// NewSignatureCodec returns a codec signing with keys.
func NewSignatureCodec(keys Keys) *SignatureCodec {
	return &SignatureCodec{keys: keys}
}

// Sign renders digest as hex, wraps it as a signed message and returns the
// compact signature of the key at path.
func (c *SignatureCodec) Sign(path types.KeyPath, digest types.Hash) (Signature, error) {
	var hexBuf [2 * types.HashSize]byte
	n, err := RenderHex(hexBuf[:], digest)
	if err != nil {
		return Signature{}, err
	}
	msg, err := MessageDigest(hexBuf[:n])
	if err != nil {
		return Signature{}, err
	}
	der, info, err := c.keys.Sign(path, msg)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}
	return Repack(der, info)
}
