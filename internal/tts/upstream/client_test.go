package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/thunder45/service-translate/internal/apierrors"
)

func TestSynthesizeReturnsAudioBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("fake mp3 bytes"))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	data, mime, err := c.Synthesize(context.Background(), "hola", "voice-1", "neural")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(data) != "fake mp3 bytes" {
		t.Fatalf("unexpected data: %q", data)
	}
	if mime != "audio/mpeg" {
		t.Fatalf("unexpected mime: %q", mime)
	}
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	c := New("http://unused", time.Second)
	_, _, err := c.Synthesize(context.Background(), "", "voice-1", "neural")
	if apierrors.CodeOf(err) != apierrors.CodeUpstreamSynthesisFailure {
		t.Fatalf("expected CodeUpstreamSynthesisFailure, got %v", err)
	}
}

func TestSynthesizeMapsNonOKStatusToUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, _, err := c.Synthesize(context.Background(), "hola", "voice-1", "neural")
	if apierrors.CodeOf(err) != apierrors.CodeUpstreamSynthesisFailure {
		t.Fatalf("expected CodeUpstreamSynthesisFailure, got %v", err)
	}
}

func TestSynthesizeMapsTimeoutToUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Millisecond)
	_, _, err := c.Synthesize(context.Background(), "hola", "voice-1", "neural")
	if apierrors.CodeOf(err) != apierrors.CodeUpstreamSynthesisFailure {
		t.Fatalf("expected CodeUpstreamSynthesisFailure on timeout, got %v", err)
	}
}
