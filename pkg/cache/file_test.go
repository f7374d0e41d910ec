package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileCacheRoundTrip(t *testing.T) {
	c, err := NewFileCache(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, ok, err := c.Get(ctx, "key")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(data) != "value" {
		t.Errorf("Get = %q, want value", data)
	}
}

func TestFileCacheMiss(t *testing.T) {
	c, err := NewFileCache(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok, err := c.Get(context.Background(), "absent"); ok || err != nil {
		t.Errorf("Get(absent): ok=%v err=%v, want clean miss", ok, err)
	}
}

func TestFileCacheExpiry(t *testing.T) {
	c, err := NewFileCache(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := c.Set(ctx, "key", []byte("value"), time.Nanosecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, ok, _ := c.Get(ctx, "key"); ok {
		t.Error("expired entry still served")
	}
}

func TestFileCacheZeroTTLNeverExpires(t *testing.T) {
	c, err := NewFileCache(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := c.Set(ctx, "key", []byte("value"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "key"); !ok {
		t.Error("entry without TTL expired")
	}
}

func TestFileCacheDelete(t *testing.T) {
	c, err := NewFileCache(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(ctx, "key"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "key"); ok {
		t.Error("deleted entry still served")
	}
	// Deleting an absent key is not an error.
	if err := c.Delete(ctx, "absent"); err != nil {
		t.Errorf("Delete(absent): %v", err)
	}
}

func TestFileCacheCorruptEntryIsMiss(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCache(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(c.path("key"), []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := c.Get(ctx, "key"); ok || err != nil {
		t.Errorf("corrupt entry: ok=%v err=%v, want clean miss", ok, err)
	}
}

func TestFileCacheEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	// Cap low enough that two entries exceed it but one fits.
	c, err := NewFileCache(dir, 60)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := c.Set(ctx, "old", []byte("aaaa"), 0); err != nil {
		t.Fatal(err)
	}
	// Distinct mtimes make the eviction order deterministic.
	past := time.Now().Add(-time.Minute)
	if err := os.Chtimes(c.path("old"), past, past); err != nil {
		t.Fatal(err)
	}
	if err := c.Set(ctx, "new", []byte("bbbb"), 0); err != nil {
		t.Fatal(err)
	}

	if _, ok, _ := c.Get(ctx, "old"); ok {
		t.Error("oldest entry survived eviction")
	}
	if _, ok, _ := c.Get(ctx, "new"); !ok {
		t.Error("newest entry evicted")
	}
}

func TestFileCachePathSharding(t *testing.T) {
	c, err := NewFileCache(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	p := c.path("some-key")
	sub := filepath.Base(filepath.Dir(p))
	if len(sub) != 2 {
		t.Errorf("shard dir = %q, want two hash characters", sub)
	}
}

func TestNullCache(t *testing.T) {
	c := NewNullCache()
	ctx := context.Background()

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, err := c.Get(ctx, "key"); ok || err != nil {
		t.Errorf("null cache served a value: ok=%v err=%v", ok, err)
	}
	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestHashStable(t *testing.T) {
	a := Hash([]byte("payload"))
	b := Hash([]byte("payload"))
	if a != b {
		t.Error("Hash is not deterministic")
	}
	if len(a) != 64 {
		t.Errorf("Hash length = %d, want 64 hex chars", len(a))
	}
	if Hash([]byte("other")) == a {
		t.Error("distinct inputs collided")
	}
}
