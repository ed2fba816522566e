package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

var ErrUnknownKeys = errors.New("unknown configuration keys")

// Duration reads TOML strings such as "30m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}

	d.Duration = parsed

	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Verifier struct {
	Kind      string `toml:"kind"`
	Secret    string `toml:"secret"`
	URL       string `toml:"url"`
	CacheSize int    `toml:"cache_size"`
}

type Valkey struct {
	Addr    string `toml:"addr"`
	Channel string `toml:"channel"`
}

type Config struct {
	Port         int      `toml:"port"`
	DataDir      string   `toml:"data_dir"`
	RevealWindow Duration `toml:"reveal_window"`
	LogLevel     string   `toml:"log_level"`

	Verifier Verifier `toml:"verifier"`
	Valkey   Valkey   `toml:"valkey"`
}

func Default() Config {
	return Config{
		Port:         3000,
		DataDir:      "./janken/data",
		RevealWindow: Duration{30 * time.Minute},
		LogLevel:     "info",
		Verifier: Verifier{
			Kind:      "accept-all",
			CacheSize: 1024,
		},
		Valkey: Valkey{
			Channel: "janken:events",
		},
	}
}

// Load overlays the TOML file at path onto the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}

		return cfg, fmt.Errorf("%w in %s: %s", ErrUnknownKeys, path, strings.Join(keys, ", "))
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}

	if c.RevealWindow.Duration <= 0 {
		return fmt.Errorf("reveal window must be positive, got %s", c.RevealWindow)
	}

	if c.DataDir == "" {
		return errors.New("data dir must be set")
	}

	return nil
}
