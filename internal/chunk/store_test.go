package chunk

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/Klingon-tech/stbtc-signer/internal/storage"
	"github.com/Klingon-tech/stbtc-signer/pkg/types"
)

func testStore(t *testing.T, db storage.DB) {
	t.Helper()
	store := NewStore(db)
	ctx := context.Background()
	data := testData(12*Size - 5)

	root, count, err := store.Put(data)
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if count != 12 {
		t.Fatalf("count = %d, want 12", count)
	}

	payload, _ := NewPayload(data)
	if root != payload.Root() {
		t.Fatalf("stored root %s differs from in-memory root %s", root, payload.Root())
	}

	if got, err := store.Info(root); err != nil || got != count {
		t.Fatalf("Info() = %d, %v", got, err)
	}

	v := NewVerifier(store, "memory")
	for i := uint64(0); i < count; i++ {
		got, err := v.Fetch(ctx, root, count, i)
		if err != nil {
			t.Fatalf("Fetch(%d) through verifier: %v", i, err)
		}
		want, _ := payload.Chunk(i)
		if !bytes.Equal(got, want) {
			t.Errorf("chunk %d mismatch", i)
		}
	}

	if _, err := store.FetchLeaf(ctx, root, count+1, 0); !errors.Is(err, ErrCountMismatch) {
		t.Errorf("FetchLeaf wrong count = %v, want ErrCountMismatch", err)
	}
	if _, err := store.Leaf(root, count); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Leaf past end = %v, want ErrIndexOutOfRange", err)
	}

	other, _, err := store.Put([]byte("second payload"))
	if err != nil {
		t.Fatalf("Put() second: %v", err)
	}
	roots, err := store.Roots()
	if err != nil {
		t.Fatalf("Roots() error: %v", err)
	}
	if len(roots) != 2 {
		t.Fatalf("Roots() = %d entries, want 2", len(roots))
	}

	if err := store.Delete(root); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := store.Info(root); !errors.Is(err, ErrNotFound) {
		t.Errorf("Info() after delete = %v, want ErrNotFound", err)
	}
	if _, err := store.Info(other); err != nil {
		t.Errorf("Delete() removed the wrong payload: %v", err)
	}
	if err := store.Delete(types.Hash{7}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() unknown root = %v, want ErrNotFound", err)
	}
}

func TestStore_Memory(t *testing.T) {
	testStore(t, storage.NewMemory())
}

func TestStore_Badger(t *testing.T) {
	db, err := storage.NewBadger(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	defer db.Close()
	testStore(t, db)
}
