package withdraw

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/Klingon-tech/stbtc-signer/internal/chunk"
	"github.com/Klingon-tech/stbtc-signer/pkg/types"
)

func TestPadLeft(t *testing.T) {
	for n := 0; n <= AbiWordSize; n++ {
		src := make([]byte, n)
		for i := range src {
			src[i] = byte(0xa0 + i)
		}
		dst := AbiWord{}
		for i := range dst {
			dst[i] = 0xee
		}
		if err := PadLeft(&dst, src); err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		for i := 0; i < AbiWordSize-n; i++ {
			if dst[i] != 0 {
				t.Fatalf("n=%d: byte %d = %#x, want 0", n, i, dst[i])
			}
		}
		if !bytes.Equal(dst[AbiWordSize-n:], src) {
			t.Fatalf("n=%d: low bytes = %x, want %x", n, dst[AbiWordSize-n:], src)
		}
	}
}

func TestPadLeft_TooLong(t *testing.T) {
	var dst AbiWord
	dst[0] = 0x42
	err := PadLeft(&dst, make([]byte, AbiWordSize+1))
	if !errors.Is(err, ErrBadState) {
		t.Fatalf("err = %v, want ErrBadState", err)
	}
	if dst[0] != 0x42 {
		t.Error("destination written on error")
	}
	if err := PadLeft(nil, nil); !errors.Is(err, ErrBadState) {
		t.Errorf("nil dst: err = %v", err)
	}
}

func TestUint64Word(t *testing.T) {
	w := Uint64Word(11155111)
	var want AbiWord
	want[29], want[30], want[31] = 0xaa, 0x36, 0xa7
	if w != want {
		t.Errorf("Uint64Word = %x, want %x", w, want)
	}
}

func TestExtractor(t *testing.T) {
	short := [][]byte{make([]byte, chunk.Size), make([]byte, 10)}
	for i := range short[0] {
		short[0][i] = byte(i)
	}
	p := newPayload(t, short)
	ctx := context.Background()

	tests := []struct {
		name   string
		root   types.Hash
		index  uint64
		offset int
		length int
		want   []byte
		err    error
	}{
		{"middle", p.Root(), 0, 30, 3, []byte{30, 31, 32}, nil},
		{"whole chunk", p.Root(), 0, 0, chunk.Size, short[0], nil},
		{"empty", p.Root(), 0, 64, 0, []byte{}, nil},
		{"short chunk", p.Root(), 1, 8, 4, nil, ErrShortChunk},
		{"null root", types.Hash{}, 0, 0, 1, nil, ErrNullRoot},
		{"negative offset", p.Root(), 0, -1, 1, nil, ErrInvalidArgs},
		{"past chunk end", p.Root(), 0, 60, 8, nil, ErrInvalidArgs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &countingSource{src: p}
			ref := chunk.Reference{Root: tt.root, Count: p.Count(), Index: tt.index}
			got, err := NewExtractor(src).Extract(ctx, ref, tt.offset, tt.length)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("err = %v, want %v", err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Extract = %x, want %x", got, tt.want)
			}
			if src.fetches != 1 {
				t.Errorf("fetches = %d, want 1", src.fetches)
			}
		})
	}
}

func TestExtractor_ShortChunkIsTransportFailure(t *testing.T) {
	if !errors.Is(ErrShortChunk, ErrTransportFailure) {
		t.Error("ErrShortChunk does not wrap ErrTransportFailure")
	}
	if !errors.Is(ErrNullRoot, ErrBadState) || !errors.Is(ErrInvalidArgs, ErrBadState) {
		t.Error("argument errors do not wrap ErrBadState")
	}
}

func TestExtractor_NoSource(t *testing.T) {
	ref := chunk.Reference{Root: types.Hash{1}, Count: 1}
	if _, err := NewExtractor(nil).Extract(context.Background(), ref, 0, 1); !errors.Is(err, ErrInvalidArgs) {
		t.Errorf("err = %v, want ErrInvalidArgs", err)
	}
}

func TestExtractor_ReturnsCopy(t *testing.T) {
	p := newPayload(t, testChunkData([]byte{0x51}))
	ext := NewExtractor(p)
	ref := chunk.Reference{Root: p.Root(), Count: p.Count(), Index: 0}
	a, err := ext.Extract(context.Background(), ref, 0, 4)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	a[0] ^= 0xff
	b, err := ext.Extract(context.Background(), ref, 0, 4)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if a[0] == b[0] {
		t.Error("extracted buffer aliases the source")
	}
}
