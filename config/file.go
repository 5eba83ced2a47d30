package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tranvictor/walletfactory/ens"
	"github.com/tranvictor/walletfactory/metrics"
)

// EnvPrefix prefixes environment overrides, e.g. WF_LOG__LEVEL=debug.
const EnvPrefix = "WF_"

type LogConfig struct {
	Level   string `json:"level"`
	Console bool   `json:"console"`
}

type MetricsConfig struct {
	// Textfile is where counters are written after each command, for the
	// node exporter textfile collector. Empty disables it.
	Textfile string `json:"textfile"`
	// Influx receives one point per creation attempt when URL is set.
	Influx metrics.InfluxConfig `json:"influx"`
}

type EventsConfig struct {
	// Broker is the MQTT broker committed events are published to, e.g.
	// tcp://localhost:1883. Empty disables publishing.
	Broker string `json:"broker"`
	Prefix string `json:"prefix"`
}

// Config is the persistent configuration of the CLI.
type Config struct {
	DataDir  string        `json:"datadir"`
	Admin    string        `json:"admin"`
	RootName string        `json:"rootName"`
	Log      LogConfig     `json:"log"`
	Metrics  MetricsConfig `json:"metrics"`
	Events   EventsConfig  `json:"events"`
}

func (c *Config) SetDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir()
	}
	if c.RootName == "" {
		c.RootName = ens.DefaultRootName
	}
	if c.Events.Prefix == "" {
		c.Events.Prefix = "walletfactory"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	if strings.Trim(c.RootName, ".") == "" {
		return fmt.Errorf("root name cannot be empty")
	}
	return nil
}

// DefaultDataDir is ~/.walletfactory, or ./.walletfactory when the home
// directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".walletfactory"
	}
	return filepath.Join(home, ".walletfactory")
}

// Load reads path (yaml or json) when it is not empty, then applies WF_
// environment overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		var parser koanf.Parser
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
