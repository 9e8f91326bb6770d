// Package config loads the dispatcher's tunables from three layered
// sources, lowest to highest priority: built-in defaults, an optional
// YAML file, and ZEUS_-prefixed environment variables. It uses koanf
// rather than a hand-rolled flag/env reader so every tunable gets the
// same override story without per-field plumbing.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is every runtime-tunable constant the bus exposes, collected
// in one place so cmd/zeusd and cmd/zeus-msg build their components
// from a single loaded value instead of scattered os.Getenv calls.
type Config struct {
	StateDir string `koanf:"state_dir"`

	MaxHeartbeatAge time.Duration `koanf:"max_heartbeat_age"`
	InflightLease   time.Duration `koanf:"inflight_lease"`
	SweepInterval   time.Duration `koanf:"sweep_interval"`
	AttemptsNotify  int           `koanf:"attempts_notify"`
	NotifyThrottle  time.Duration `koanf:"notify_throttle"`
	ReresolveAfter  time.Duration `koanf:"reresolve_after"`

	MetricsAddr string `koanf:"metrics_addr"`
	LogLevel    string `koanf:"log_level"`
}

// defaults mirrors Config's zero-override values; keys match the
// `koanf` struct tags above so confmap.Provider can seed them without
// reflection gymnastics.
func defaults() map[string]any {
	return map[string]any{
		"max_heartbeat_age": "30s",
		"inflight_lease":    "120s",
		"sweep_interval":    "2s",
		"attempts_notify":   3,
		"notify_throttle":   "60s",
		"reresolve_after":   "60s",
		"metrics_addr":      "127.0.0.1:9327",
		"log_level":         "info",
	}
}

// Load builds a Config from defaults, optionally overlaid with
// yamlPath (ignored if empty or missing), then with any ZEUS_-prefixed
// environment variable.
func Load(stateDir, yamlPath string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, err
	}

	if yamlPath != "" {
		if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
			// A missing or unreadable file falls back to defaults+env;
			// only report genuine parse errors.
			if !isMissingFile(err) {
				return Config{}, err
			}
		}
	}

	envProvider := env.Provider("ZEUS_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "ZEUS_"))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, err
	}
	if cfg.StateDir == "" {
		cfg.StateDir = stateDir
	}
	return cfg, nil
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file") || strings.Contains(err.Error(), "cannot find the file")
}
