package withdraw

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/stbtc-signer/internal/chunk"
)

// ComposePayload returns a copy of template with the amount and redeemer
// script written into the slots of layout. The host uses it to fill in a
// pre-built SafeTx payload; template must hold at least MinChunks chunks of
// chunk.Size bytes.
func ComposePayload(layout *Layout, template [][]byte, amount uint64, script []byte) ([][]byte, error) {
	if uint64(len(template)) < layout.MinChunks {
		return nil, fmt.Errorf("%w: template has %d chunks, need %d", ErrMalformedInput, len(template), layout.MinChunks)
	}
	if len(script) == 0 || len(script)+1 > MaxRedeemerLength {
		return nil, fmt.Errorf("%w: redeemer script is %d bytes", ErrInvalidScript, len(script))
	}
	scriptAt := layout.RedeemerScript
	if scriptAt.Offset < 1 || scriptAt.Offset+len(script) > chunk.Size {
		return nil, fmt.Errorf("%w: redeemer script does not fit chunk %d", ErrInvalidScript, scriptAt.Chunk)
	}

	out := make([][]byte, len(template))
	for i, c := range template {
		if len(c) != chunk.Size {
			return nil, fmt.Errorf("%w: template chunk %d is %d bytes", ErrMalformedInput, i, len(c))
		}
		out[i] = append([]byte(nil), c...)
	}

	amt := out[layout.Amount.Chunk][layout.Amount.Offset : layout.Amount.Offset+layout.Amount.Length]
	clear(amt)
	binary.BigEndian.PutUint64(amt[len(amt)-8:], amount)

	lenAt := layout.RedeemerLength
	binary.BigEndian.PutUint16(out[lenAt.Chunk][lenAt.Offset:lenAt.Offset+lenAt.Length], uint16(len(script)+1))

	slot := out[scriptAt.Chunk]
	slot[scriptAt.Offset-1] = byte(len(script))
	copy(slot[scriptAt.Offset:], script)
	return out, nil
}
