// Package app wires every server component into a single dependency graph
// and hands the result to cmd/server/main.go.
package app

import (
	"context"
	"time"

	"github.com/thunder45/service-translate/internal/audiocache"
	"github.com/thunder45/service-translate/internal/config"
	"github.com/thunder45/service-translate/internal/cost"
	"github.com/thunder45/service-translate/internal/fanout"
	"github.com/thunder45/service-translate/internal/httpapi"
	"github.com/thunder45/service-translate/internal/identity"
	"github.com/thunder45/service-translate/internal/metrics"
	"github.com/thunder45/service-translate/internal/router"
	"github.com/thunder45/service-translate/internal/session"
	"github.com/thunder45/service-translate/internal/tokencache"
	"github.com/thunder45/service-translate/internal/tts"
	"github.com/thunder45/service-translate/internal/tts/upstream"
	"github.com/thunder45/service-translate/internal/wsserver"
	"github.com/thunder45/service-translate/pkg/logging"
)

// App bundles every long-lived component so cmd/server/main.go only has to
// construct one of these and mount its routes.
type App struct {
	Config     *config.Settings
	Logger     *logging.Logger
	Identities *identity.Store
	Validator  *identity.Validator
	Tokens     tokencache.Cache
	Sessions   *session.Registry
	Fanout     *fanout.Index
	AudioCache *audiocache.Cache
	Pipeline   *tts.Pipeline
	Signer     *httpapi.Signer
	Supervisor *wsserver.Supervisor
	Router     *router.Router

	stop chan struct{}
}

// New builds and wires every component, rehydrating the session registry
// and starting the background sweepers before returning.
func New(cfg *config.Settings, logger *logging.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, stop: make(chan struct{})}

	identities, err := identity.NewStore(cfg.Persistence.AdminIdentityDir, logger.Named("identity-store"))
	if err != nil {
		return nil, err
	}
	if cfg.Persistence.SQLiteMirrorPath != "" {
		mirror, err := identity.OpenMirror(cfg.Persistence.SQLiteMirrorPath, logger.Named("identity-mirror"))
		if err != nil {
			logger.Warnf("admin identity mirror unavailable, continuing without it: %v", err)
		} else {
			identities = identities.WithMirror(mirror)
		}
	}
	a.Identities = identities

	provider := identity.NewStaticProvider()
	a.Validator = identity.NewValidator(provider, logger.Named("identity-validator"), cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)

	a.Tokens = tokencache.New(time.Minute)

	sessions, err := session.NewRegistry(cfg.Persistence.SessionDir, logger.Named("session-registry"))
	if err != nil {
		return nil, err
	}
	if n, err := sessions.Rehydrate(cfg.Persistence.RehydrateWindow); err != nil {
		logger.Errorf("session rehydration failed: %v", err)
	} else if n > 0 {
		logger.Infof("rehydrated %d sessions from disk", n)
	}
	a.Sessions = sessions

	a.Fanout = fanout.NewIndex()

	audioCache, err := audiocache.New(cfg.AudioCache.Dir, cfg.AudioCache.ByteCap, logger.Named("audio-cache"))
	if err != nil {
		return nil, err
	}
	audioCache.StartSweep(a.stop, cfg.AudioCache.SweepPeriod, cfg.AudioCache.MaxAge)
	a.AudioCache = audioCache

	a.Signer = httpapi.NewSigner(cfg.Auth.JWTSecret, cfg.AudioCache.URLTokenTTL)

	voices := buildVoiceTable(cfg.TTS.Voices)
	upstreamClient := upstream.New(cfg.TTS.UpstreamURL, cfg.TTS.Timeout)
	a.Pipeline = tts.New(audioCache, upstreamClient, voices, a.Signer, logger.Named("tts-pipeline"))

	a.Supervisor = wsserver.New(wsserver.Config{
		AuthGraceWindow:   cfg.Auth.JoinGraceWindow,
		PingInterval:      cfg.Connection.PingInterval,
		PongTimeout:       cfg.Connection.PongTimeout,
		IdleTimeout:       cfg.Connection.IdleTimeout,
		DrainPeriod:       cfg.Connection.DrainPeriod,
		OutboundQueueSize: cfg.Connection.OutboundQueueSize,
	}, nil, logger.Named("connection-supervisor"))

	costPrices := cost.Prices{
		cost.ServiceTranscription: cfg.Cost.TranscriptionPricePerSec,
		cost.ServiceTranslation:   cfg.Cost.TranslationPricePerChar,
		cost.ServiceSynthesis:     cfg.Cost.SynthesisPricePerChar,
	}
	r := router.New(a.Validator, a.Identities, a.Tokens, a.Sessions, a.Fanout, a.Pipeline, a.Supervisor, router.Config{
		CostPrices:    costPrices,
		CostThreshold: cfg.Cost.HourlyThreshold,
		CostCooldown:  cfg.Cost.WarningCooldown,
	}, logger.Named("router"))
	a.Router = r
	a.Supervisor.SetHandler(r)

	a.Identities.StartRetentionSweep(a.stop, time.Hour, cfg.Persistence.IdentityRetention, a.Router.HasActiveConnection)

	a.startMetricsLoop()

	return a, nil
}

func buildVoiceTable(entries []config.VoiceEntry) tts.VoiceTable {
	table := make(tts.VoiceTable)
	for _, e := range entries {
		byMode, ok := table[e.Language]
		if !ok {
			byMode = make(map[session.TTSMode]string)
			table[e.Language] = byMode
		}
		byMode[session.TTSMode(e.Mode)] = e.Voice
	}
	return table
}

// startMetricsLoop periodically refreshes the gauges that summarize
// component-held state rather than point-in-time events, per the DOMAIN
// STACK expansion's Prometheus surface.
func (a *App) startMetricsLoop() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.ActiveSessions.Set(float64(a.Sessions.Count()))
				metrics.AudioCacheBytes.Set(float64(a.AudioCache.TotalSize()))
			case <-a.stop:
				return
			}
		}
	}()
}

// Shutdown drains WebSocket connections and stops background sweepers.
func (a *App) Shutdown(ctx context.Context) error {
	close(a.stop)
	return a.Supervisor.Shutdown(ctx)
}
