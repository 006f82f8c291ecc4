package audiocache

import (
	"testing"
	"time"

	"github.com/thunder45/service-translate/pkg/logging"
)

func newTestCache(t *testing.T, byteCap int64) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), byteCap, logging.New(true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestFingerprintIsDeterministicAndDistinct(t *testing.T) {
	a := Fingerprint("hello", "es", "voice-1", "neural")
	b := Fingerprint("hello", "es", "voice-1", "neural")
	if a != b {
		t.Fatalf("same inputs produced different fingerprints: %q vs %q", a, b)
	}

	c := Fingerprint("hello", "fr", "voice-1", "neural")
	if a == c {
		t.Fatalf("different language produced the same fingerprint")
	}
}

func TestPutThenLookup(t *testing.T) {
	c := newTestCache(t, 1<<20)

	fp := Fingerprint("hola", "es", "voice-1", "neural")
	art, err := c.Put(fp, "audio/mpeg", []byte("fake mp3 bytes"), time.Second)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if art.Fingerprint != fp {
		t.Fatalf("artifact fingerprint mismatch: %q", art.Fingerprint)
	}

	got, ok := c.Lookup(fp)
	if !ok {
		t.Fatalf("expected Lookup to find %q", fp)
	}
	if got.Size != int64(len("fake mp3 bytes")) {
		t.Fatalf("unexpected size: %d", got.Size)
	}
}

func TestPutIsIdempotentPerFingerprint(t *testing.T) {
	c := newTestCache(t, 1<<20)
	fp := Fingerprint("hola", "es", "voice-1", "neural")

	first, err := c.Put(fp, "audio/mpeg", []byte("aaa"), time.Second)
	if err != nil {
		t.Fatalf("first Put: %v", err)
	}
	second, err := c.Put(fp, "audio/mpeg", []byte("bbb bbb"), time.Second)
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if second.Size != first.Size {
		t.Fatalf("second Put for an existing fingerprint should return the existing artifact unchanged, got size %d want %d", second.Size, first.Size)
	}
}

func TestEvictionStaysUnderByteCap(t *testing.T) {
	// Each blob is 10 bytes; cap of 25 bytes should keep at most 2.
	c := newTestCache(t, 25)

	for i, text := range []string{"zero------", "one-------", "two-------", "three-----"} {
		fp := Fingerprint(text, "es", "voice-1", "neural")
		if _, err := c.Put(fp, "audio/mpeg", []byte(text), time.Second); err != nil {
			t.Fatalf("Put %d: %v", i, err)
		}
	}

	if total := c.TotalSize(); total > 25 {
		t.Fatalf("total size %d exceeds byte cap of 25", total)
	}

	firstFP := Fingerprint("zero------", "es", "voice-1", "neural")
	if _, ok := c.Lookup(firstFP); ok {
		t.Fatalf("oldest artifact should have been evicted under the byte cap")
	}

	lastFP := Fingerprint("three-----", "es", "voice-1", "neural")
	if _, ok := c.Lookup(lastFP); !ok {
		t.Fatalf("most recently written artifact should still be present")
	}
}

func TestSweepRemovesStaleArtifacts(t *testing.T) {
	c := newTestCache(t, 1<<20)
	fp := Fingerprint("hola", "es", "voice-1", "neural")
	if _, err := c.Put(fp, "audio/mpeg", []byte("data"), time.Second); err != nil {
		t.Fatalf("Put: %v", err)
	}

	removed := c.Sweep(0) // everything is older than "now"
	if removed != 1 {
		t.Fatalf("expected Sweep to remove 1 artifact, removed %d", removed)
	}
	if _, ok := c.Lookup(fp); ok {
		t.Fatalf("expected artifact to be gone after Sweep")
	}
}
