package dedup

import (
	"testing"
	"time"
)

func TestFingerprint(t *testing.T) {
	t.Run("same inputs produce same fingerprint", func(t *testing.T) {
		a := Fingerprint("luna", "user", "chan", "hello")
		b := Fingerprint("luna", "user", "chan", "hello")
		if a != b {
			t.Fatalf("fingerprints differ: %q vs %q", a, b)
		}
	})

	t.Run("different message produces different fingerprint", func(t *testing.T) {
		a := Fingerprint("luna", "user", "chan", "hello")
		b := Fingerprint("luna", "user", "chan", "hello!")
		if a == b {
			t.Fatal("fingerprints should differ for different messages")
		}
	})

	t.Run("empty channel maps to dm slot", func(t *testing.T) {
		a := Fingerprint("luna", "user", "", "hello")
		b := Fingerprint("luna", "user", "dm", "hello")
		if a != b {
			t.Fatalf("dm fingerprints differ: %q vs %q", a, b)
		}
	})
}

func TestCache(t *testing.T) {
	t.Run("check misses then hits after cache", func(t *testing.T) {
		c := New(time.Second)
		fp := Fingerprint("luna", "u", "c", "msg")

		if _, ok := c.Check(fp); ok {
			t.Fatal("Check() hit before Cache()")
		}
		c.Cache(fp, "req-1", "llm-req-1")
		entry, ok := c.Check(fp)
		if !ok {
			t.Fatal("Check() missed after Cache()")
		}
		if entry.RequestID != "req-1" || entry.JobID != "llm-req-1" {
			t.Fatalf("entry = %+v, want original ids", entry)
		}
	})

	t.Run("entries expire after ttl", func(t *testing.T) {
		c := New(time.Second)
		now := time.Now()
		c.nowFunc = func() time.Time { return now }

		c.Cache("fp", "req-1", "job-1")
		now = now.Add(2 * time.Second)
		if _, ok := c.Check("fp"); ok {
			t.Fatal("Check() hit after ttl elapsed")
		}
		if c.Size() != 0 {
			t.Fatalf("Size() = %d after lazy purge, want 0", c.Size())
		}
	})

	t.Run("dispose removes immediately", func(t *testing.T) {
		c := New(time.Minute)
		c.Cache("fp", "req-1", "job-1")
		c.Dispose("fp")
		if _, ok := c.Check("fp"); ok {
			t.Fatal("Check() hit after Dispose()")
		}
	})

	t.Run("sweep purges expired entries", func(t *testing.T) {
		c := New(time.Second)
		now := time.Now()
		c.nowFunc = func() time.Time { return now }

		c.Cache("a", "r1", "j1")
		c.Cache("b", "r2", "j2")
		now = now.Add(2 * time.Second)
		c.Cache("c", "r3", "j3")

		c.sweep()
		if got := c.Size(); got != 1 {
			t.Fatalf("Size() = %d after sweep, want 1", got)
		}
	})
}
