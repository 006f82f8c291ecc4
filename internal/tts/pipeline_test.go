package tts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thunder45/service-translate/internal/audiocache"
	"github.com/thunder45/service-translate/internal/session"
	"github.com/thunder45/service-translate/internal/tts/upstream"
	"github.com/thunder45/service-translate/pkg/logging"
)

type fakeSigner struct{}

func (fakeSigner) SignedAudioURL(fingerprint, ext string) string {
	return "/audio/" + fingerprint + "." + ext
}

func newTestPipeline(t *testing.T, synthesisCalls *int32) *Pipeline {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if synthesisCalls != nil {
			atomic.AddInt32(synthesisCalls, 1)
		}
		time.Sleep(10 * time.Millisecond) // widen the race window for in-flight dedup
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("fake mp3 bytes"))
	}))
	t.Cleanup(srv.Close)

	cache, err := audiocache.New(t.TempDir(), 1<<20, logging.New(true))
	if err != nil {
		t.Fatalf("audiocache.New: %v", err)
	}
	client := upstream.New(srv.URL, time.Second)
	voices := VoiceTable{"es": {session.TTSModeNeural: "voice-1"}}

	return New(cache, client, voices, fakeSigner{}, logging.New(true))
}

func TestResolveDisabledModeReturnsEmptyResult(t *testing.T) {
	p := newTestPipeline(t, nil)
	result := p.Resolve(context.Background(), "hola", "es", session.TTSModeDisabled)
	if result != (Result{}) {
		t.Fatalf("expected empty result for disabled mode, got %+v", result)
	}
}

func TestResolveLocalModeDelegatesToListener(t *testing.T) {
	p := newTestPipeline(t, nil)
	result := p.Resolve(context.Background(), "hola", "es", session.TTSModeLocal)
	if !result.UseLocalTTS || result.AudioURL != "" {
		t.Fatalf("expected UseLocalTTS with no audio URL, got %+v", result)
	}
}

func TestResolveSynthesizesThenServesFromCache(t *testing.T) {
	var calls int32
	p := newTestPipeline(t, &calls)

	first := p.Resolve(context.Background(), "hola", "es", session.TTSModeNeural)
	if first.AudioURL == "" {
		t.Fatalf("expected an audio URL from first Resolve, got %+v", first)
	}
	if first.BilledCharacters != len("hola") {
		t.Fatalf("expected first Resolve to bill synthesis, got %+v", first)
	}

	second := p.Resolve(context.Background(), "hola", "es", session.TTSModeNeural)
	if second.AudioURL != first.AudioURL {
		t.Fatalf("expected the same cached audio URL on repeat, got %q vs %q", second.AudioURL, first.AudioURL)
	}
	if second.BilledCharacters != 0 {
		t.Fatalf("expected a cache hit to bill nothing, got %+v", second)
	}

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly 1 upstream synthesis call, got %d", calls)
	}
}

func TestResolveDedupsConcurrentSynthesisForSameFingerprint(t *testing.T) {
	var calls int32
	p := newTestPipeline(t, &calls)

	const n = 8
	var wg sync.WaitGroup
	results := make([]Result, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = p.Resolve(context.Background(), "concurrent phrase", "es", session.TTSModeNeural)
		}(i)
	}
	wg.Wait()

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly 1 upstream call across %d concurrent requests, got %d", n, calls)
	}

	billed := 0
	for _, r := range results {
		if r.AudioURL == "" {
			t.Fatalf("expected every concurrent caller to get an audio URL, got %+v", r)
		}
		if r.BilledCharacters > 0 {
			billed++
		}
	}
	if billed != 1 {
		t.Fatalf("expected exactly 1 caller to be billed, got %d", billed)
	}
}

func TestResolveDegradesToLocalOnUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cache, err := audiocache.New(t.TempDir(), 1<<20, logging.New(true))
	if err != nil {
		t.Fatalf("audiocache.New: %v", err)
	}
	client := upstream.New(srv.URL, time.Second)
	voices := VoiceTable{"es": {session.TTSModeNeural: "voice-1"}}
	p := New(cache, client, voices, fakeSigner{}, logging.New(true))

	result := p.Resolve(context.Background(), "hola", "es", session.TTSModeNeural)
	if !result.UseLocalTTS || result.AudioURL != "" {
		t.Fatalf("expected a text/local fallback on upstream failure, got %+v", result)
	}
}
