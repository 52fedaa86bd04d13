package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/curator/internal/model"
)

func TestKey(t *testing.T) {
	a := Key("http://extractor/extract", "https://example.com/post")
	b := Key("http://extractor/extract", " https://example.com/post ")
	c := Key("http://other/extract", "https://example.com/post")

	if !strings.HasPrefix(a, keyPrefix) {
		t.Errorf("expected prefix %q, got %q", keyPrefix, a)
	}
	if a != b {
		t.Error("expected surrounding whitespace to be ignored")
	}
	if a == c {
		t.Error("expected different endpoints to produce different keys")
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Hour, 0)
	if _, found := c.Get("k"); found {
		t.Fatal("expected empty cache")
	}

	if err := c.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if val, found := c.Get("k"); !found || string(val) != "v" {
		t.Errorf("expected v, got %q (found=%t)", val, found)
	}

	c.Set("short", []byte("x"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if _, found := c.Get("short"); found {
		t.Error("expected expired entry to be gone")
	}

	c.Delete("k")
	if _, found := c.Get("k"); found {
		t.Error("expected deleted entry to be gone")
	}

	c.Set("a", []byte("1"), 0)
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("expected empty cache after Clear, got %d entries", c.Len())
	}
}

func TestDiskCache(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)

	key := Key("e", "https://example.com")
	if err := c.Set(key, []byte("content"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if val, found := c.Get(key); !found || string(val) != "content" {
		t.Errorf("expected content, got %q (found=%t)", val, found)
	}

	// Entries survive a new cache instance on the same directory
	if val, found := NewDiskCache(dir, time.Hour).Get(key); !found || string(val) != "content" {
		t.Errorf("expected persisted content, got %q (found=%t)", val, found)
	}

	if err := c.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := c.Delete(key); err != nil {
		t.Errorf("expected deleting a missing entry to succeed, got %v", err)
	}
}

func TestDiskCache_Expiry(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("k", []byte("v"), time.Minute)
	now = now.Add(2 * time.Minute)
	if _, found := c.Get("k"); found {
		t.Error("expected expired entry to be gone")
	}
	if _, err := os.Stat(c.path("k")); !os.IsNotExist(err) {
		t.Errorf("expected expired file to be removed, got %v", err)
	}
}

func TestDiskCache_ClearKeepsOtherFiles(t *testing.T) {
	dir := t.TempDir()
	other := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(other, []byte("keep"), 0644); err != nil {
		t.Fatal(err)
	}

	c := NewDiskCache(dir, time.Hour)
	c.Set("a", []byte("1"), 0)
	c.Set("b", []byte("2"), 0)
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if _, found := c.Get("a"); found {
		t.Error("expected cleared entry to be gone")
	}
	if _, err := os.Stat(other); err != nil {
		t.Errorf("expected unrelated file to survive Clear, got %v", err)
	}

	if err := NewDiskCache(filepath.Join(dir, "missing"), time.Hour).Clear(); err != nil {
		t.Errorf("expected Clear on missing dir to succeed, got %v", err)
	}
}

func TestLayeredCache_Promotes(t *testing.T) {
	fast := NewMemoryCache(time.Hour, 0)
	slow := NewDiskCache(t.TempDir(), time.Hour)
	c := NewLayeredCache(fast, slow, time.Hour)

	slow.Set("k", []byte("from-disk"), 0)
	if val, found := c.Get("k"); !found || string(val) != "from-disk" {
		t.Fatalf("expected disk value, got %q (found=%t)", val, found)
	}
	if val, found := fast.Get("k"); !found || string(val) != "from-disk" {
		t.Errorf("expected value promoted to memory, got %q (found=%t)", val, found)
	}

	c.Set("both", []byte("x"), 0)
	if _, found := slow.Get("both"); !found {
		t.Error("expected Set to write through to disk")
	}

	c.Delete("both")
	if _, found := fast.Get("both"); found {
		t.Error("expected Delete to clear memory")
	}
	if _, found := slow.Get("both"); found {
		t.Error("expected Delete to clear disk")
	}
}

func TestFromConfig(t *testing.T) {
	if c := FromConfig(model.CacheConfig{Enabled: false}); c != nil {
		t.Errorf("expected nil cache when disabled, got %T", c)
	}
	if _, ok := FromConfig(model.CacheConfig{Enabled: true, MemoryTTL: time.Hour}).(*MemoryCache); !ok {
		t.Error("expected memory-only cache without a directory")
	}
	c := FromConfig(model.CacheConfig{Enabled: true, Dir: t.TempDir(), MemoryTTL: time.Hour, DiskTTL: time.Hour})
	if _, ok := c.(*LayeredCache); !ok {
		t.Errorf("expected layered cache, got %T", c)
	}
}
