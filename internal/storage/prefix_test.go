package storage

import (
	"bytes"
	"testing"
)

func TestPrefixDB_Isolation(t *testing.T) {
	inner := NewMemory()
	a := NewPrefixDB(inner, []byte("root-a/"))
	b := NewPrefixDB(inner, []byte("root-b/"))

	a.Put([]byte("n"), []byte("12"))
	b.Put([]byte("n"), []byte("3"))

	va, err := a.Get([]byte("n"))
	if err != nil || string(va) != "12" {
		t.Errorf("a.Get(n) = %q, %v", va, err)
	}
	vb, err := b.Get([]byte("n"))
	if err != nil || string(vb) != "3" {
		t.Errorf("b.Get(n) = %q, %v", vb, err)
	}

	raw, err := inner.Get([]byte("root-a/n"))
	if err != nil || string(raw) != "12" {
		t.Errorf("inner key not prefixed: %q, %v", raw, err)
	}

	a.Delete([]byte("n"))
	if ok, _ := b.Has([]byte("n")); !ok {
		t.Error("delete in one namespace leaked into another")
	}
}

func TestPrefixDB_ForEachStripsPrefix(t *testing.T) {
	inner := NewMemory()
	p := NewPrefixDB(inner, []byte("ns/"))
	p.Put([]byte("d/0"), []byte("x"))
	p.Put([]byte("d/1"), []byte("y"))
	inner.Put([]byte("other/d/2"), []byte("z"))

	var keys [][]byte
	p.ForEach([]byte("d/"), func(key, _ []byte) error {
		keys = append(keys, append([]byte(nil), key...))
		return nil
	})
	if len(keys) != 2 {
		t.Fatalf("ForEach() saw %d keys, want 2", len(keys))
	}
	for _, k := range keys {
		if !bytes.HasPrefix(k, []byte("d/")) {
			t.Errorf("key %q still carries the namespace prefix", k)
		}
	}
}

func TestPrefixDB_DeleteAll(t *testing.T) {
	inner := NewMemory()
	p := NewPrefixDB(inner, []byte("ns/"))
	for _, k := range []string{"a", "b", "c"} {
		p.Put([]byte(k), []byte(k))
	}
	inner.Put([]byte("keep"), []byte("1"))

	if err := p.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll() error: %v", err)
	}
	count := 0
	p.ForEach(nil, func(_, _ []byte) error {
		count++
		return nil
	})
	if count != 0 {
		t.Errorf("%d keys left after DeleteAll()", count)
	}
	if ok, _ := inner.Has([]byte("keep")); !ok {
		t.Error("DeleteAll() removed a key outside its namespace")
	}
}

func TestPrefixDB_Batch(t *testing.T) {
	inner := NewMemory()
	p := NewPrefixDB(inner, []byte("ns/"))
	b := p.NewBatch()
	b.Put([]byte("x"), []byte("1"))
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}
	if ok, _ := inner.Has([]byte("ns/x")); !ok {
		t.Error("batched key not written under the namespace")
	}
}
