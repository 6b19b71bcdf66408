package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// envPrefix namespaces sessiond environment variables.
	envPrefix = "SESSIOND_"
)

// Load builds the configuration from defaults, then an optional YAML file,
// then environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SESSIOND_SERVER_PORT, SESSIOND_ENGINE_CACHE_MAX_ENTRIES, ...)
//  2. YAML config file, when configPath is non-empty and the file exists
//  3. Built-in defaults
//
// Environment variables drop the prefix, lowercase, and split on the first
// underscore to form the koanf path:
//
//	SESSIOND_SERVER_PORT             -> server.port
//	SESSIOND_ENGINE_ACTIVE_TIMEOUT   -> engine.active_timeout
//	SESSIOND_LOGGING_LEVEL           -> logging.level
func Load(configPath string) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if configPath != "" {
		content, err := readConfigFile(configPath)
		if err != nil {
			return Config{}, err
		}
		if content != nil {
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		// SESSIOND_SERVER_PORT -> server.port; the section is everything
		// before the first underscore, the field keeps its underscores.
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// readConfigFile reads the file if it exists, enforcing the size cap.
// A missing file is not an error; defaults and env vars still apply.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}
