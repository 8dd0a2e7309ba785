package storage

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

// testDB runs the shared test suite against a DB implementation.
func testDB(t *testing.T, db DB) {
	t.Helper()

	t.Run("PutAndGet", func(t *testing.T) {
		if err := db.Put([]byte("leaf/0"), []byte("chunk zero")); err != nil {
			t.Fatalf("Put() error: %v", err)
		}
		val, err := db.Get([]byte("leaf/0"))
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if !bytes.Equal(val, []byte("chunk zero")) {
			t.Errorf("Get() = %q, want %q", val, "chunk zero")
		}
	})

	t.Run("GetMissingIsNotFound", func(t *testing.T) {
		_, err := db.Get([]byte("nonexistent"))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() missing key error = %v, want ErrNotFound", err)
		}
	})

	t.Run("Has", func(t *testing.T) {
		db.Put([]byte("exists"), []byte("yes"))
		if ok, err := db.Has([]byte("exists")); err != nil || !ok {
			t.Errorf("Has(exists) = %v, %v", ok, err)
		}
		if ok, err := db.Has([]byte("missing")); err != nil || ok {
			t.Errorf("Has(missing) = %v, %v", ok, err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db.Put([]byte("gone"), []byte("x"))
		if err := db.Delete([]byte("gone")); err != nil {
			t.Fatalf("Delete() error: %v", err)
		}
		if ok, _ := db.Has([]byte("gone")); ok {
			t.Error("key still present after Delete()")
		}
	})

	t.Run("ForEachPrefix", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			db.Put([]byte(fmt.Sprintf("scan/%d", i)), []byte{byte(i)})
		}
		db.Put([]byte("scanner"), []byte("outside"))

		seen := 0
		err := db.ForEach([]byte("scan/"), func(key, value []byte) error {
			if !bytes.HasPrefix(key, []byte("scan/")) {
				t.Errorf("ForEach yielded key %q outside prefix", key)
			}
			seen++
			return nil
		})
		if err != nil {
			t.Fatalf("ForEach() error: %v", err)
		}
		if seen != 3 {
			t.Errorf("ForEach() saw %d keys, want 3", seen)
		}
	})

	t.Run("ForEachStopsOnError", func(t *testing.T) {
		stop := errors.New("stop")
		calls := 0
		err := db.ForEach([]byte("scan/"), func(key, value []byte) error {
			calls++
			return stop
		})
		if !errors.Is(err, stop) {
			t.Errorf("ForEach() error = %v, want stop", err)
		}
		if calls != 1 {
			t.Errorf("callback ran %d times, want 1", calls)
		}
	})

	t.Run("Batch", func(t *testing.T) {
		db.Put([]byte("batch/old"), []byte("old"))
		b := NewBatch(db)
		b.Put([]byte("batch/a"), []byte("1"))
		b.Put([]byte("batch/b"), []byte("2"))
		b.Delete([]byte("batch/old"))

		if ok, _ := db.Has([]byte("batch/a")); ok {
			t.Error("batched write visible before Commit()")
		}
		if err := b.Commit(); err != nil {
			t.Fatalf("Commit() error: %v", err)
		}
		if v, err := db.Get([]byte("batch/b")); err != nil || string(v) != "2" {
			t.Errorf("Get(batch/b) = %q, %v", v, err)
		}
		if ok, _ := db.Has([]byte("batch/old")); ok {
			t.Error("batched delete not applied")
		}
	})
}

func TestMemoryDB(t *testing.T) {
	db := NewMemory()
	defer db.Close()
	testDB(t, db)
}

func TestMemoryDB_ValuesAreCopied(t *testing.T) {
	db := NewMemory()
	val := []byte("chunk")
	db.Put([]byte("k"), val)
	val[0] = 'X'

	got, _ := db.Get([]byte("k"))
	if string(got) != "chunk" {
		t.Errorf("stored value changed through caller slice: %q", got)
	}
	got[0] = 'Y'
	again, _ := db.Get([]byte("k"))
	if string(again) != "chunk" {
		t.Errorf("stored value changed through returned slice: %q", again)
	}
}

func TestBadgerDB(t *testing.T) {
	db, err := NewBadger(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	defer db.Close()
	testDB(t, db)
}

func TestBadgerDB_Persistence(t *testing.T) {
	dir := t.TempDir()

	db1, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	db1.Put([]byte("persist"), []byte("data"))
	db1.Close()

	db2, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger() reopen error: %v", err)
	}
	defer db2.Close()

	val, err := db2.Get([]byte("persist"))
	if err != nil {
		t.Fatalf("Get() after reopen error: %v", err)
	}
	if !bytes.Equal(val, []byte("data")) {
		t.Errorf("persisted value = %q, want %q", val, "data")
	}
}
