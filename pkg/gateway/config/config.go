package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultGeminiModels is the candidate list tried in order when
// EXAMINER_GEMINI_MODELS is unset.
var DefaultGeminiModels = []string{"gemini-flash-latest", "gemini-2.5-flash", "gemini-2.0-flash"}

type Config struct {
	Addr     string
	LogLevel slog.Level

	// Generation backend. An empty key leaves the backend unconfigured:
	// the server still starts and every exam turn reports the fixed error.
	GeminiAPIKey  string
	GeminiBaseURL string
	GeminiModels  []string
	Temperature   float32

	// Transcription backend (OpenAI-compatible /audio/transcriptions).
	STTAPIKey          string
	STTBaseURL         string
	STTModel           string
	STTForwardHints    bool
	STTMaxRetries      int
	Language           string
	PreviewInterval    time.Duration
	ProfilePath        string
	AutoStart          bool
	MaxSessionDuration time.Duration
	TurnTimeout        time.Duration

	// CORS / websocket origin allowlist. "*" allows every origin.
	CORSAllowedOrigins map[string]struct{}

	// Websocket limits.
	MaxAudioFrameBytes     int
	MaxMessageBytes        int64
	MaxBufferBytes         int
	MaxAudioFPS            int
	MaxAudioBytesPerSecond int64
	InboundBurstSeconds    int
	WSPingInterval         time.Duration
	WSWriteTimeout         time.Duration
	WSReadTimeout          time.Duration

	// Optional archive. Empty values disable the matching store.
	DatabaseURL    string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3UseSSL       bool
	ArchiveTimeout time.Duration

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration

	// Upstream HTTP client defaults
	UpstreamConnectTimeout        time.Duration
	UpstreamResponseHeaderTimeout time.Duration
}

// BackendConfigured reports whether a generation credential is present.
func (c Config) BackendConfigured() bool {
	return strings.TrimSpace(c.GeminiAPIKey) != ""
}

// OriginAllowed reports whether a browser origin may open a session.
// Requests without an Origin header are always allowed.
func (c Config) OriginAllowed(origin string) bool {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return true
	}
	if _, ok := c.CORSAllowedOrigins["*"]; ok {
		return true
	}
	_, ok := c.CORSAllowedOrigins[origin]
	return ok
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                          envOr("EXAMINER_ADDR", ":8000"),
		GeminiAPIKey:                  envOr("EXAMINER_GEMINI_API_KEY", os.Getenv("GEMINI_API_KEY")),
		GeminiBaseURL:                 envOr("EXAMINER_GEMINI_BASE_URL", ""),
		GeminiModels:                  splitCSV(os.Getenv("EXAMINER_GEMINI_MODELS")),
		Temperature:                   float32(envFloat64Or("EXAMINER_TEMPERATURE", 0.7)),
		STTAPIKey:                     envOr("EXAMINER_STT_API_KEY", os.Getenv("OPENAI_API_KEY")),
		STTBaseURL:                    envOr("EXAMINER_STT_BASE_URL", "https://api.openai.com/v1/"),
		STTModel:                      envOr("EXAMINER_STT_MODEL", "whisper-1"),
		STTForwardHints:               envBoolOr("EXAMINER_STT_FORWARD_HINTS", false),
		STTMaxRetries:                 envIntOr("EXAMINER_STT_MAX_RETRIES", 1),
		Language:                      envOr("EXAMINER_LANGUAGE", "en"),
		PreviewInterval:               envDurationOr("EXAMINER_PREVIEW_INTERVAL", 500*time.Millisecond),
		ProfilePath:                   envOr("EXAMINER_PROFILE_PATH", ""),
		AutoStart:                     envBoolOr("EXAMINER_AUTO_START", true),
		MaxSessionDuration:            envDurationOr("EXAMINER_MAX_SESSION_DURATION", time.Hour),
		TurnTimeout:                   envDurationOr("EXAMINER_TURN_TIMEOUT", 0),
		CORSAllowedOrigins:            make(map[string]struct{}),
		MaxAudioFrameBytes:            envIntOr("EXAMINER_MAX_AUDIO_FRAME_BYTES", 256<<10),
		MaxMessageBytes:               envInt64Or("EXAMINER_MAX_MESSAGE_BYTES", 1<<20),
		MaxBufferBytes:                envIntOr("EXAMINER_MAX_BUFFER_BYTES", 16<<20),
		MaxAudioFPS:                   envIntOr("EXAMINER_MAX_AUDIO_FPS", 50),
		MaxAudioBytesPerSecond:        envInt64Or("EXAMINER_MAX_AUDIO_BPS", 512<<10),
		InboundBurstSeconds:           envIntOr("EXAMINER_INBOUND_BURST_SECONDS", 2),
		WSPingInterval:                envDurationOr("EXAMINER_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:                envDurationOr("EXAMINER_WS_WRITE_TIMEOUT", 5*time.Second),
		WSReadTimeout:                 envDurationOr("EXAMINER_WS_READ_TIMEOUT", 0),
		DatabaseURL:                   envOr("EXAMINER_DATABASE_URL", ""),
		S3Endpoint:                    envOr("EXAMINER_S3_ENDPOINT", ""),
		S3AccessKey:                   envOr("EXAMINER_S3_ACCESS_KEY", ""),
		S3SecretKey:                   envOr("EXAMINER_S3_SECRET_KEY", ""),
		S3Bucket:                      envOr("EXAMINER_S3_BUCKET", "exam-audio"),
		S3UseSSL:                      envBoolOr("EXAMINER_S3_USE_SSL", true),
		ArchiveTimeout:                envDurationOr("EXAMINER_ARCHIVE_TIMEOUT", 10*time.Second),
		ReadHeaderTimeout:             envDurationOr("EXAMINER_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:           envDurationOr("EXAMINER_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		UpstreamConnectTimeout:        envDurationOr("EXAMINER_CONNECT_TIMEOUT", 5*time.Second),
		UpstreamResponseHeaderTimeout: envDurationOr("EXAMINER_RESPONSE_HEADER_TIMEOUT", 90*time.Second),
	}

	if len(cfg.GeminiModels) == 0 {
		cfg.GeminiModels = append([]string(nil), DefaultGeminiModels...)
	}

	origins := splitCSV(os.Getenv("EXAMINER_CORS_ORIGINS"))
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	for _, origin := range origins {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	level, err := parseLevel(envOr("EXAMINER_LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel = level

	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return Config{}, fmt.Errorf("EXAMINER_TEMPERATURE must be between 0 and 2")
	}
	if strings.TrimSpace(cfg.STTModel) == "" {
		return Config{}, fmt.Errorf("EXAMINER_STT_MODEL must not be empty")
	}
	if cfg.STTMaxRetries < 0 {
		return Config{}, fmt.Errorf("EXAMINER_STT_MAX_RETRIES must be >= 0")
	}
	if cfg.PreviewInterval <= 0 {
		return Config{}, fmt.Errorf("EXAMINER_PREVIEW_INTERVAL must be > 0")
	}
	if cfg.MaxSessionDuration < 0 {
		return Config{}, fmt.Errorf("EXAMINER_MAX_SESSION_DURATION must be >= 0")
	}
	if cfg.TurnTimeout < 0 {
		return Config{}, fmt.Errorf("EXAMINER_TURN_TIMEOUT must be >= 0")
	}
	if cfg.MaxAudioFrameBytes <= 0 {
		return Config{}, fmt.Errorf("EXAMINER_MAX_AUDIO_FRAME_BYTES must be > 0")
	}
	if cfg.MaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("EXAMINER_MAX_MESSAGE_BYTES must be > 0")
	}
	if int64(cfg.MaxAudioFrameBytes) > cfg.MaxMessageBytes {
		return Config{}, fmt.Errorf("EXAMINER_MAX_AUDIO_FRAME_BYTES must be <= EXAMINER_MAX_MESSAGE_BYTES")
	}
	if cfg.MaxBufferBytes <= 0 {
		return Config{}, fmt.Errorf("EXAMINER_MAX_BUFFER_BYTES must be > 0")
	}
	if cfg.MaxAudioFPS < 0 {
		return Config{}, fmt.Errorf("EXAMINER_MAX_AUDIO_FPS must be >= 0")
	}
	if cfg.MaxAudioBytesPerSecond < 0 {
		return Config{}, fmt.Errorf("EXAMINER_MAX_AUDIO_BPS must be >= 0")
	}
	if (cfg.MaxAudioFPS > 0 || cfg.MaxAudioBytesPerSecond > 0) && cfg.InboundBurstSeconds < 1 {
		return Config{}, fmt.Errorf("EXAMINER_INBOUND_BURST_SECONDS must be >= 1 when inbound audio limits are enabled")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("EXAMINER_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("EXAMINER_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSReadTimeout < 0 {
		return Config{}, fmt.Errorf("EXAMINER_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.S3Endpoint != "" {
		if cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
			return Config{}, fmt.Errorf("EXAMINER_S3_ACCESS_KEY and EXAMINER_S3_SECRET_KEY must be set when EXAMINER_S3_ENDPOINT is set")
		}
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return Config{}, fmt.Errorf("EXAMINER_S3_BUCKET must not be empty")
		}
	}
	if cfg.ArchiveTimeout <= 0 {
		return Config{}, fmt.Errorf("EXAMINER_ARCHIVE_TIMEOUT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("EXAMINER_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("EXAMINER_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.UpstreamConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("EXAMINER_CONNECT_TIMEOUT must be > 0")
	}
	if cfg.UpstreamResponseHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("EXAMINER_RESPONSE_HEADER_TIMEOUT must be > 0")
	}

	return cfg, nil
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("EXAMINER_LOG_LEVEL must be one of debug|info|warn|error")
	}
	return level, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return strings.TrimSpace(def)
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
