package procache

import (
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := New[string](0)
	c.Set(42, "hello")
	v, ok := c.Get(42)
	if !ok || v != "hello" {
		t.Fatalf("expected cached value, got %q ok=%v", v, ok)
	}
}

func TestCache_Miss(t *testing.T) {
	c := New[int](0)
	_, ok := c.Get(1)
	if ok {
		t.Fatal("expected miss on empty cache")
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New[int](5 * time.Millisecond)
	c.Set(1, 99)
	time.Sleep(15 * time.Millisecond)
	_, ok := c.Get(1)
	if ok {
		t.Fatal("expected entry to expire")
	}
}

func TestCache_InvalidateAll(t *testing.T) {
	c := New[int](0)
	c.Set(1, 1)
	c.Set(2, 2)
	c.InvalidateAll()
	if _, ok := c.Get(1); ok {
		t.Fatal("expected cache cleared")
	}
	if _, ok := c.Get(2); ok {
		t.Fatal("expected cache cleared")
	}
}
