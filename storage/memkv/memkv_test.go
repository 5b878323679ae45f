package memkv

import (
	"context"
	"testing"

	"github.com/shoaldb/keel/storage"
)

func TestGetPutDelete(t *testing.T) {
	e, err := Open("", storage.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	_, ok, err := e.Get([]byte("a"))
	if err != nil || ok {
		t.Fatalf("expected absent, got ok=%v err=%v", ok, err)
	}

	if err := e.WriteBatch([]storage.Op{{Key: []byte("a"), Value: []byte("1")}}); err != nil {
		t.Fatal(err)
	}
	v, ok, err := e.Get([]byte("a"))
	if err != nil || !ok || string(v) != "1" {
		t.Fatalf("got %q ok=%v err=%v", v, ok, err)
	}

	if err := e.WriteBatch([]storage.Op{{Key: []byte("a"), Value: nil}}); err != nil {
		t.Fatal(err)
	}
	_, ok, err = e.Get([]byte("a"))
	if err != nil || ok {
		t.Fatalf("expected deleted, got ok=%v err=%v", ok, err)
	}
}

func TestIterateRange(t *testing.T) {
	e, _ := Open("", storage.Options{})
	defer e.Close()

	var ops []storage.Op
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		ops = append(ops, storage.Op{Key: []byte(k), Value: []byte(k)})
	}
	if err := e.WriteBatch(ops); err != nil {
		t.Fatal(err)
	}

	it, err := e.Iterate([]byte("b"), storage.SeekGE)
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	var got []string
	for it.Valid() {
		got = append(got, string(it.Key()))
		it.Next()
	}
	want := []string{"b", "c", "d", "e"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestHotBackup(t *testing.T) {
	e, _ := Open("", storage.Options{})
	defer e.Close()
	e.WriteBatch([]storage.Op{{Key: []byte("a"), Value: []byte("1")}})

	n, err := e.HotBackup(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Fatal("expected nonzero bytes copied")
	}
}
