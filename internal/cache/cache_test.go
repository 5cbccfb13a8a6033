package cache

import (
	"path/filepath"
	"testing"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "probes.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCacheMissOnEmptyDB(t *testing.T) {
	c := openTestCache(t)

	if _, hit, err := c.Get(Key([]byte("anything"))); err != nil || hit {
		t.Fatalf("expected a clean miss, got hit=%v err=%v", hit, err)
	}
}

func TestCachePutThenGetRoundTrips(t *testing.T) {
	c := openTestCache(t)
	key := Key([]byte("module bytes"))

	if err := c.Put(key, []byte("probe output")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	output, hit, err := c.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !hit {
		t.Fatal("expected a hit after Put")
	}
	if string(output) != "probe output" {
		t.Fatalf("got output %q, want %q", output, "probe output")
	}
}

func TestCachePutOverwritesExistingKey(t *testing.T) {
	c := openTestCache(t)
	key := Key([]byte("module bytes"))

	if err := c.Put(key, []byte("first")); err != nil {
		t.Fatalf("Put first: %v", err)
	}
	if err := c.Put(key, []byte("second")); err != nil {
		t.Fatalf("Put second: %v", err)
	}

	output, hit, err := c.Get(key)
	if err != nil || !hit {
		t.Fatalf("Get: output=%q hit=%v err=%v", output, hit, err)
	}
	if string(output) != "second" {
		t.Fatalf("got output %q, want the overwritten value %q", output, "second")
	}
}

func TestKeyIsStableAndContentAddressed(t *testing.T) {
	a := Key([]byte("same bytes"))
	b := Key([]byte("same bytes"))
	c := Key([]byte("different bytes"))

	if a != b {
		t.Fatalf("Key is not deterministic: %q != %q", a, b)
	}
	if a == c {
		t.Fatal("distinct inputs hashed to the same key")
	}
}
