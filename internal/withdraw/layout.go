// Package withdraw authorizes stBTC withdrawals on the signing device. It
// streams the Safe transaction from a chunk source, checks that the
// Bitcoin redeemer address belongs to the device key, asks the user to
// confirm, rebuilds the EIP-712 SafeTx digest and signs it as a Bitcoin
// signed message.
package withdraw

import (
	"fmt"

	"github.com/Klingon-tech/stbtc-signer/pkg/types"
)

// FieldSpec locates a field inside the chunked payload.
type FieldSpec struct {
	Chunk  uint64
	Offset int
	Length int
}

// WordKind says where a SafeTx struct word comes from.
type WordKind uint8

// Struct word sources.
const (
	WordTypehash WordKind = iota
	WordTxDataHash
	WordField
)

// StructWord is one 32-byte word of the SafeTx struct hash preimage.
type StructWord struct {
	Name string
	Kind WordKind
	Spec FieldSpec
}

// StructWordCount is the number of words hashed into the SafeTx struct hash.
const StructWordCount = 11

// MaxRedeemerLength caps the redeemer length field, which counts the
// script plus its one-byte length prefix.
const MaxRedeemerLength = 32

// Layout is the field table for one payload version.
type Layout struct {
	Version byte

	SafeTxTypehash types.Hash
	DomainTypehash types.Hash

	// Selector is the function selector leading the tx data.
	Selector FieldSpec
	// DataStart is the first chunk whose two 32-byte halves are hashed into
	// the tx data hash; every chunk from it up to count-1 is included.
	DataStart uint64

	StructWords [StructWordCount]StructWord

	VerifyingContract FieldSpec

	Amount         FieldSpec
	AmountDecimals int
	Ticker         string

	RedeemerLength FieldSpec
	// RedeemerScript gives the chunk and offset of the script; its length
	// comes from RedeemerLength.
	RedeemerScript FieldSpec

	// MinChunks is the smallest chunk count that holds every field above.
	MinChunks uint64
}

// LayoutV1 is the Safe v1.3 SafeTx layout of the stBTC redeemer contract.
var LayoutV1 = Layout{
	Version: 1,

	// keccak256("SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)")
	SafeTxTypehash: types.MustHexToHash("bb8310d486368db6bd6f849402fdd73ad53d316b5a4b2644ad6efe0f941286d8"),
	// keccak256("EIP712Domain(uint256 chainId,address verifyingContract)")
	DomainTypehash: types.MustHexToHash("47e79534a245952e8b16893a336b85a3d9ea9fa8c573f3d803afb92a79469218"),

	Selector:  FieldSpec{Chunk: 4, Offset: 0, Length: 4},
	DataStart: 5,

	StructWords: [StructWordCount]StructWord{
		{Name: "typehash", Kind: WordTypehash},
		{Name: "to", Kind: WordField, Spec: FieldSpec{Chunk: 0, Offset: 0, Length: 20}},
		{Name: "value", Kind: WordField, Spec: FieldSpec{Chunk: 1, Offset: 0, Length: 32}},
		{Name: "data", Kind: WordTxDataHash},
		{Name: "operation", Kind: WordField, Spec: FieldSpec{Chunk: 3, Offset: 0, Length: 1}},
		{Name: "safeTxGas", Kind: WordField, Spec: FieldSpec{Chunk: 1, Offset: 32, Length: 32}},
		{Name: "baseGas", Kind: WordField, Spec: FieldSpec{Chunk: 2, Offset: 1, Length: 32}},
		{Name: "gasPrice", Kind: WordField, Spec: FieldSpec{Chunk: 2, Offset: 32, Length: 32}},
		{Name: "gasToken", Kind: WordField, Spec: FieldSpec{Chunk: 0, Offset: 20, Length: 20}},
		{Name: "refundReceiver", Kind: WordField, Spec: FieldSpec{Chunk: 0, Offset: 40, Length: 20}},
		{Name: "nonce", Kind: WordField, Spec: FieldSpec{Chunk: 3, Offset: 0, Length: 32}},
	},

	VerifyingContract: FieldSpec{Chunk: 7, Offset: 0, Length: 32},

	Amount:         FieldSpec{Chunk: 5, Offset: 56, Length: 8},
	AmountDecimals: 18,
	Ticker:         "stBTC",

	RedeemerLength: FieldSpec{Chunk: 10, Offset: 30, Length: 2},
	RedeemerScript: FieldSpec{Chunk: 10, Offset: 33},

	MinChunks: 11,
}

// Layouts maps a payload version to its field table. Version 0 selects the
// current layout.
var Layouts = map[byte]*Layout{
	0: &LayoutV1,
	1: &LayoutV1,
}

// LayoutFor returns the layout for version.
func LayoutFor(version byte) (*Layout, error) {
	l, ok := Layouts[version]
	if !ok {
		return nil, fmt.Errorf("%w: unknown payload version %d", ErrMalformedInput, version)
	}
	return l, nil
}

// Field returns the struct word named name.
func (l *Layout) Field(name string) (StructWord, bool) {
	for _, w := range l.StructWords {
		if w.Name == name {
			return w, true
		}
	}
	return StructWord{}, false
}
