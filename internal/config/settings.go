// Package config loads server behavior parameters from environment
// variables via viper, with fail-fast validation on Load.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig is the WebSocket/HTTP bind configuration (§6 HTTP surface).
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// IdentityProviderConfig points at the external identity provider (§1, §4.2
// — a black box the server only consumes a contract from). Endpoint is
// required and startup fails fast if it is empty; Issuer is not checked.
type IdentityProviderConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Issuer   string `mapstructure:"issuer"`
}

// AuthConfig covers local signing/verification of the access and refresh
// tokens the Identity Validator (C1) issues after delegating to the
// identity provider.
type AuthConfig struct {
	JWTSecret        string        `mapstructure:"jwt_secret"`
	AccessTokenTTL   time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL  time.Duration `mapstructure:"refresh_token_ttl"`
	JoinGraceWindow  time.Duration `mapstructure:"join_grace_window"`
}

// PersistenceConfig names the two on-disk directories §6 requires: one for
// admin identity records, one for session records.
type PersistenceConfig struct {
	AdminIdentityDir string        `mapstructure:"admin_identity_dir"`
	SessionDir       string        `mapstructure:"session_dir"`
	RehydrateWindow  time.Duration `mapstructure:"rehydrate_window"`
	IdentityRetention time.Duration `mapstructure:"identity_retention"`
	SQLiteMirrorPath string        `mapstructure:"sqlite_mirror_path"`
}

// AudioCacheConfig configures the Audio Cache (C6): byte cap, eviction, and
// the age-based sweep named in §4.7.
type AudioCacheConfig struct {
	Dir         string        `mapstructure:"dir"`
	ByteCap     int64         `mapstructure:"byte_cap"`
	MaxAge      time.Duration `mapstructure:"max_age"`
	SweepPeriod time.Duration `mapstructure:"sweep_period"`
	URLTokenTTL time.Duration `mapstructure:"url_token_ttl"`
}

// VoiceEntry is one row of the fixed (language, mode) -> voice table §4.7
// describes.
type VoiceEntry struct {
	Language string `mapstructure:"language"`
	Mode     string `mapstructure:"mode"`
	Voice    string `mapstructure:"voice"`
}

// TTSConfig configures the upstream paid synthesis call and its fallback
// timings.
type TTSConfig struct {
	UpstreamURL string        `mapstructure:"upstream_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Voices      []VoiceEntry  `mapstructure:"voices"`
}

// CostConfig carries per-service unit prices and the hourly alarm threshold
// (C8, default $3/hour per §4.8).
type CostConfig struct {
	TranslationPricePerChar  float64       `mapstructure:"translation_price_per_char"`
	SynthesisPricePerChar    float64       `mapstructure:"synthesis_price_per_char"`
	TranscriptionPricePerSec float64       `mapstructure:"transcription_price_per_sec"`
	HourlyThreshold          float64       `mapstructure:"hourly_threshold"`
	WarningCooldown          time.Duration `mapstructure:"warning_cooldown"`
}

// ConnectionConfig covers the Connection Supervisor's (C10) heartbeat and
// timeouts (§4.1, §5).
type ConnectionConfig struct {
	AuthGraceWindow time.Duration `mapstructure:"auth_grace_window"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	PongTimeout     time.Duration `mapstructure:"pong_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	DrainPeriod     time.Duration `mapstructure:"drain_period"`
	OutboundQueueSize int         `mapstructure:"outbound_queue_size"`
}

type Settings struct {
	Env         string                 `mapstructure:"env"`
	Debug       bool                   `mapstructure:"debug"`
	Server      ServerConfig           `mapstructure:"server"`
	Identity    IdentityProviderConfig `mapstructure:"identity_provider"`
	Auth        AuthConfig             `mapstructure:"auth"`
	Persistence PersistenceConfig      `mapstructure:"persistence"`
	AudioCache  AudioCacheConfig       `mapstructure:"audio_cache"`
	TTS         TTSConfig              `mapstructure:"tts"`
	Cost        CostConfig             `mapstructure:"cost"`
	Connection  ConnectionConfig       `mapstructure:"connection"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("debug", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8089)
	v.SetDefault("auth.access_token_ttl", time.Hour)
	v.SetDefault("auth.refresh_token_ttl", 24*time.Hour)
	v.SetDefault("auth.join_grace_window", 10*time.Second)
	v.SetDefault("persistence.admin_identity_dir", "./data/admins")
	v.SetDefault("persistence.session_dir", "./data/sessions")
	v.SetDefault("persistence.rehydrate_window", 30*time.Minute)
	v.SetDefault("persistence.identity_retention", 90*24*time.Hour)
	v.SetDefault("persistence.sqlite_mirror_path", "./data/admins.db")
	v.SetDefault("audio_cache.dir", "./data/audio-cache")
	v.SetDefault("audio_cache.byte_cap", int64(512*1024*1024))
	v.SetDefault("audio_cache.max_age", 24*time.Hour)
	v.SetDefault("audio_cache.sweep_period", 10*time.Minute)
	v.SetDefault("audio_cache.url_token_ttl", 10*time.Minute)
	v.SetDefault("tts.timeout", 8*time.Second)
	v.SetDefault("cost.translation_price_per_char", 0.000015)
	v.SetDefault("cost.synthesis_price_per_char", 0.000016)
	v.SetDefault("cost.transcription_price_per_sec", 0.0004)
	v.SetDefault("cost.hourly_threshold", 3.0)
	v.SetDefault("cost.warning_cooldown", time.Hour)
	v.SetDefault("connection.auth_grace_window", 10*time.Second)
	v.SetDefault("connection.ping_interval", 20*time.Second)
	v.SetDefault("connection.pong_timeout", 10*time.Second)
	v.SetDefault("connection.idle_timeout", 60*time.Second)
	v.SetDefault("connection.drain_period", 5*time.Second)
	v.SetDefault("connection.outbound_queue_size", 64)
}

// Load reads Settings from environment variables (prefixed TRANSLATE_, with
// "." in key paths mapped to "_"), optionally layered over a config file
// named by TRANSLATE_CONFIG. Startup fails fast if required
// identity-provider variables are missing, per §6.
func Load() (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("translate")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgPath := v.GetString("config"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if settings.Identity.Endpoint == "" {
		return nil, fmt.Errorf("TRANSLATE_IDENTITY_PROVIDER_ENDPOINT is required")
	}
	if settings.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("TRANSLATE_AUTH_JWT_SECRET is required")
	}

	return &settings, nil
}
