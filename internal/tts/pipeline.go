// Package tts implements the TTS Pipeline and fallback chain (C7), spec
// §4.7: fingerprint → cache lookup → in-flight dedup → upstream synthesis
// → {neural/standard → local → text-only} degradation.
package tts

import (
	"context"
	"sync"

	"github.com/thunder45/service-translate/internal/audiocache"
	"github.com/thunder45/service-translate/internal/session"
	"github.com/thunder45/service-translate/internal/tts/upstream"
	"github.com/thunder45/service-translate/pkg/logging"
)

// Result is what the Router attaches to an outbound translation frame.
// BilledCharacters is non-zero only when Resolve actually performed a
// fresh upstream synthesis call, so the Router's Cost Tracker records
// exactly the paid usage and nothing for cache hits or fallbacks.
type Result struct {
	AudioURL         string
	UseLocalTTS      bool
	BilledCharacters int
}

// URLSigner mints the short-lived `/audio/{fingerprint}.{ext}` URL for a
// cached artifact (§6); implemented by internal/httpapi, passed in by
// construction to avoid a package cycle.
type URLSigner interface {
	SignedAudioURL(fingerprint, ext string) string
}

type inflightCall struct {
	done   chan struct{}
	result Result
}

// Pipeline is the TTS Pipeline.
type Pipeline struct {
	cache    *audiocache.Cache
	upstream *upstream.Client
	voices   VoiceTable
	signer   URLSigner
	logger   *logging.Logger

	inflightMu sync.Mutex
	inflight   map[string]*inflightCall
}

func New(cache *audiocache.Cache, client *upstream.Client, voices VoiceTable, signer URLSigner, logger *logging.Logger) *Pipeline {
	return &Pipeline{
		cache:    cache,
		upstream: client,
		voices:   voices,
		signer:   signer,
		logger:   logger,
		inflight: make(map[string]*inflightCall),
	}
}

// Resolve synthesizes (or reuses, or falls back for) a translation
// segment and returns the TTS hint for the outbound frame.
func (p *Pipeline) Resolve(ctx context.Context, text, language string, mode session.TTSMode) Result {
	switch mode {
	case session.TTSModeDisabled:
		return Result{}
	case session.TTSModeLocal:
		return Result{UseLocalTTS: true}
	}

	voice := p.voices.Voice(language, mode)
	fingerprint := audiocache.Fingerprint(text, language, voice, string(mode))

	if a, ok := p.cache.Lookup(fingerprint); ok {
		return Result{AudioURL: p.signer.SignedAudioURL(a.Fingerprint, p.cache.Ext(a))}
	}

	return p.synthesizeOrJoin(ctx, fingerprint, text, language, voice, mode)
}

// synthesizeOrJoin ensures at most one upstream call per fingerprint is
// in flight at a time (§5, §8 invariant 4): a second caller for the same
// fingerprint waits on the first's result instead of issuing its own.
func (p *Pipeline) synthesizeOrJoin(ctx context.Context, fingerprint, text, language, voice string, mode session.TTSMode) Result {
	p.inflightMu.Lock()
	if call, ok := p.inflight[fingerprint]; ok {
		p.inflightMu.Unlock()
		<-call.done
		result := call.result
		result.BilledCharacters = 0 // only the winner of the race bills
		return result
	}
	call := &inflightCall{done: make(chan struct{})}
	p.inflight[fingerprint] = call
	p.inflightMu.Unlock()

	result := p.synthesize(ctx, fingerprint, text, language, voice, mode)

	call.result = result
	close(call.done)

	p.inflightMu.Lock()
	delete(p.inflight, fingerprint)
	p.inflightMu.Unlock()

	return result
}

func (p *Pipeline) synthesize(ctx context.Context, fingerprint, text, language, voice string, mode session.TTSMode) Result {
	data, mimeType, err := p.upstream.Synthesize(ctx, text, voice, string(mode))
	if err != nil {
		p.logger.Warnf("tts synthesis failed for language %s, degrading to local synthesis: %v", language, err)
		return Result{UseLocalTTS: true}
	}

	a, err := p.cache.Put(fingerprint, mimeType, data, 0)
	if err != nil {
		p.logger.Errorf("tts cache write failed, degrading to local synthesis: %v", err)
		return Result{UseLocalTTS: true}
	}

	return Result{
		AudioURL:         p.signer.SignedAudioURL(a.Fingerprint, p.cache.Ext(a)),
		BilledCharacters: len(text),
	}
}
