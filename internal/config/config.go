// Package config provides configuration loading for sessiond. A single
// immutable Config is built at startup and passed by value into every
// analyzer constructor; nothing reads configuration ambiently.
package config

import (
	"fmt"
	"time"
)

// Duration wraps time.Duration for text unmarshaling (YAML, env vars).
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config is the root configuration object.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Store     StoreConfig     `koanf:"store"`
	Engine    EngineConfig    `koanf:"engine"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig configures the OTEL metrics pipeline.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	Insecure    bool   `koanf:"insecure"`
	ServiceName string `koanf:"service_name"`
}

// StoreConfig configures the session document store.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// ContentWeights blends the six content-similarity components. The weights
// should sum to 1; Validate enforces a small tolerance.
type ContentWeights struct {
	Text     float64 `koanf:"text"`
	Keywords float64 `koanf:"keywords"`
	Entities float64 `koanf:"entities"`
	Topics   float64 `koanf:"topics"`
	Errors   float64 `koanf:"errors"`
	Code     float64 `koanf:"code"`
}

// KeywordLists holds the bilingual indicator phrase lists consumed by the
// state analyzer. All matching is case-insensitive substring matching.
type KeywordLists struct {
	Problem      []string `koanf:"problem"`
	Resolution   []string `koanf:"resolution"`
	Gratitude    []string `koanf:"gratitude"`
	Confusion    []string `koanf:"confusion"`
	Continuation []string `koanf:"continuation"`
	Completion   []string `koanf:"completion"`
}

// FeatureFlags gates which analyzers the orchestrator invokes while
// building context.
type FeatureFlags struct {
	Semantic     bool `koanf:"semantic"`
	State        bool `koanf:"state"`
	Relationship bool `koanf:"relationship"`
}

// EngineConfig is the analyzer-facing configuration surface.
type EngineConfig struct {
	// SimilarityThreshold is the minimum confidence for a relationship
	// to be kept.
	SimilarityThreshold float64 `koanf:"similarity_threshold"`

	// ActiveTimeout bounds how recently a session must have seen
	// activity to count as active. Sessions idle past 4x this value are
	// stale.
	ActiveTimeout Duration `koanf:"active_timeout"`

	// FollowUpWindow bounds the activity gap for follow_up
	// classification.
	FollowUpWindow Duration `koanf:"follow_up_window"`

	// CacheMaxEntries bounds each analyzer cache; CacheTTL of zero
	// disables expiry.
	CacheMaxEntries int      `koanf:"cache_max_entries"`
	CacheTTL        Duration `koanf:"cache_ttl"`

	// MaxTokenBudget is the per-request computational allowance;
	// operation types receive a fixed fraction of it.
	MaxTokenBudget int `koanf:"max_token_budget"`

	// DocReadyThreshold is the documentation-readiness point score a
	// session must reach to be flagged worth documenting.
	DocReadyThreshold int `koanf:"doc_ready_threshold"`

	ContentWeights ContentWeights `koanf:"content_weights"`
	Keywords       KeywordLists   `koanf:"keywords"`
	Features       FeatureFlags   `koanf:"features"`
}

// Default returns the built-in configuration. Keyword defaults cover
// English and Spanish, matching the bilingual sessions the engine ingests.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8710,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			Insecure:    true,
			ServiceName: "sessiond",
		},
		Store: StoreConfig{
			Path: "sessiond.db",
		},
		Engine: EngineConfig{
			SimilarityThreshold: 0.75,
			ActiveTimeout:       Duration(30 * time.Minute),
			FollowUpWindow:      Duration(24 * time.Hour),
			CacheMaxEntries:     500,
			CacheTTL:            0,
			MaxTokenBudget:      8000,
			DocReadyThreshold:   50,
			ContentWeights: ContentWeights{
				Text:     0.2,
				Keywords: 0.15,
				Entities: 0.2,
				Topics:   0.25,
				Errors:   0.1,
				Code:     0.1,
			},
			Keywords: KeywordLists{
				Problem: []string{
					"error", "bug", "issue", "problem", "broken", "fail",
					"crash", "exception", "not working", "doesn't work",
					"fallo", "problema", "no funciona", "se rompe",
				},
				Resolution: []string{
					"fixed", "solved", "resolved", "works now", "working now",
					"that worked", "perfecto", "resuelto", "funciona",
					"arreglado", "solucionado",
				},
				Gratitude: []string{
					"thanks", "thank you", "appreciate", "gracias",
					"perfecto", "perfect", "awesome", "great",
				},
				Confusion: []string{
					"confused", "i don't understand", "what do you mean",
					"unclear", "no entiendo", "no comprendo", "still stuck",
				},
				Continuation: []string{
					"continue", "next", "also", "one more", "another",
					"siguiente", "además", "otra cosa",
				},
				Completion: []string{
					"done", "finished", "complete", "all set", "wrapped up",
					"listo", "terminado", "completado",
				},
			},
			Features: FeatureFlags{
				Semantic:     true,
				State:        true,
				Relationship: true,
			},
		},
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c Config) Validate() error {
	if c.Engine.SimilarityThreshold < 0 || c.Engine.SimilarityThreshold > 1 {
		return fmt.Errorf("engine.similarity_threshold must be in [0,1], got %v", c.Engine.SimilarityThreshold)
	}
	if c.Engine.ActiveTimeout.Duration() <= 0 {
		return fmt.Errorf("engine.active_timeout must be positive")
	}
	if c.Engine.CacheMaxEntries <= 0 {
		return fmt.Errorf("engine.cache_max_entries must be positive, got %d", c.Engine.CacheMaxEntries)
	}
	if c.Engine.MaxTokenBudget <= 0 {
		return fmt.Errorf("engine.max_token_budget must be positive, got %d", c.Engine.MaxTokenBudget)
	}
	w := c.Engine.ContentWeights
	sum := w.Text + w.Keywords + w.Entities + w.Topics + w.Errors + w.Code
	if sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("engine.content_weights must sum to 1, got %v", sum)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in (0,65535], got %d", c.Server.Port)
	}
	return nil
}
