// Package config holds the runtime configuration of the control gateway and
// the stub service manager behind it.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

const (
	DefaultListenAddr       = "127.0.0.1:9632"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultCommandQueueSize = 16
	DefaultBldrURL          = "https://bldr.habitat.sh"
	DefaultBldrChannel      = "stable"
	DefaultRegistryName     = "supctl-gateway"
	DefaultRegistryTTL      = 10 * time.Second
)

type Config struct {
	Gateway  Gateway
	Manager  Manager
	Registry Registry
	Log      Log
	Metrics  Metrics
}

// Gateway configures the ctl listener.
type Gateway struct {
	ListenAddr string
	// AdvertiseAddr is published to the registry. Defaults to ListenAddr.
	AdvertiseAddr    string
	AuthKey          string
	HandshakeTimeout time.Duration
	CommandQueueSize int
}

// Manager configures the command consumer. BldrURL and BldrChannel are the
// defaults applied to SvcLoad/SvcStart requests that leave them empty.
type Manager struct {
	SpecsDir    string
	BldrURL     string
	BldrChannel string
	RateLimit   float64
	RateBurst   int
}

type Registry struct {
	Endpoints []string
	Name      string
	TTL       time.Duration
}

func (r Registry) Enabled() bool {
	return len(r.Endpoints) > 0
}

type Log struct {
	Level  string
	Format string
}

type Metrics struct {
	ListenAddr string
}

func Default() Config {
	return Config{
		Gateway: Gateway{
			ListenAddr:       DefaultListenAddr,
			HandshakeTimeout: DefaultHandshakeTimeout,
			CommandQueueSize: DefaultCommandQueueSize,
		},
		Manager: Manager{
			SpecsDir:    "specs",
			BldrURL:     DefaultBldrURL,
			BldrChannel: DefaultBldrChannel,
		},
		Registry: Registry{
			Name: DefaultRegistryName,
			TTL:  DefaultRegistryTTL,
		},
		Log: Log{
			Level:  "info",
			Format: "console",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Gateway.ListenAddr) == "" {
		return errors.New("config: gateway listen_addr is required")
	}
	if c.Gateway.AuthKey == "" {
		return errors.New("config: gateway auth_key is required")
	}
	if c.Gateway.HandshakeTimeout <= 0 {
		return fmt.Errorf("config: gateway handshake_timeout must be positive, got %s", c.Gateway.HandshakeTimeout)
	}
	if c.Gateway.CommandQueueSize <= 0 {
		return fmt.Errorf("config: gateway command_queue_size must be positive, got %d", c.Gateway.CommandQueueSize)
	}
	if c.Manager.SpecsDir == "" {
		return errors.New("config: manager specs_dir is required")
	}
	if c.Manager.RateLimit < 0 {
		return fmt.Errorf("config: manager rate_limit must not be negative, got %v", c.Manager.RateLimit)
	}
	if c.Manager.RateLimit > 0 && c.Manager.RateBurst <= 0 {
		return errors.New("config: manager rate_burst must be positive when rate_limit is set")
	}
	if c.Registry.Enabled() && c.Registry.TTL < time.Second {
		return fmt.Errorf("config: registry ttl must be at least 1s, got %s", c.Registry.TTL)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

type fileConfig struct {
	Gateway struct {
		ListenAddr       string `toml:"listen_addr"`
		AdvertiseAddr    string `toml:"advertise_addr"`
		AuthKey          string `toml:"auth_key"`
		HandshakeTimeout string `toml:"handshake_timeout"`
		CommandQueueSize int    `toml:"command_queue_size"`
	} `toml:"gateway"`
	Manager struct {
		SpecsDir    string  `toml:"specs_dir"`
		BldrURL     string  `toml:"bldr_url"`
		BldrChannel string  `toml:"bldr_channel"`
		RateLimit   float64 `toml:"rate_limit"`
		RateBurst   int     `toml:"rate_burst"`
	} `toml:"manager"`
	Registry struct {
		Endpoints []string `toml:"endpoints"`
		Name      string   `toml:"name"`
		TTL       string   `toml:"ttl"`
	} `toml:"registry"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
	Metrics struct {
		ListenAddr string `toml:"listen_addr"`
	} `toml:"metrics"`
}

// Load reads a TOML file on top of Default. Keys absent from the file keep
// their default value. An empty path returns the defaults unvalidated so that
// flags can still fill in required values.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, errors.Wrapf(err, "load config %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config: unknown key %q in %s", undecoded[0].String(), path)
	}

	if meta.IsDefined("gateway", "listen_addr") {
		cfg.Gateway.ListenAddr = strings.TrimSpace(raw.Gateway.ListenAddr)
	}
	if meta.IsDefined("gateway", "advertise_addr") {
		cfg.Gateway.AdvertiseAddr = strings.TrimSpace(raw.Gateway.AdvertiseAddr)
	}
	if meta.IsDefined("gateway", "auth_key") {
		cfg.Gateway.AuthKey = raw.Gateway.AuthKey
	}
	if meta.IsDefined("gateway", "handshake_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Gateway.HandshakeTimeout))
		if err != nil {
			return Config{}, errors.Wrap(err, "parse gateway.handshake_timeout")
		}
		cfg.Gateway.HandshakeTimeout = d
	}
	if meta.IsDefined("gateway", "command_queue_size") {
		cfg.Gateway.CommandQueueSize = raw.Gateway.CommandQueueSize
	}

	if meta.IsDefined("manager", "specs_dir") {
		cfg.Manager.SpecsDir = strings.TrimSpace(raw.Manager.SpecsDir)
	}
	if meta.IsDefined("manager", "bldr_url") {
		cfg.Manager.BldrURL = strings.TrimSpace(raw.Manager.BldrURL)
	}
	if meta.IsDefined("manager", "bldr_channel") {
		cfg.Manager.BldrChannel = strings.TrimSpace(raw.Manager.BldrChannel)
	}
	if meta.IsDefined("manager", "rate_limit") {
		cfg.Manager.RateLimit = raw.Manager.RateLimit
	}
	if meta.IsDefined("manager", "rate_burst") {
		cfg.Manager.RateBurst = raw.Manager.RateBurst
	}

	if meta.IsDefined("registry", "endpoints") {
		cfg.Registry.Endpoints = normalizeList(raw.Registry.Endpoints)
	}
	if meta.IsDefined("registry", "name") {
		cfg.Registry.Name = strings.TrimSpace(raw.Registry.Name)
	}
	if meta.IsDefined("registry", "ttl") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Registry.TTL))
		if err != nil {
			return Config{}, errors.Wrap(err, "parse registry.ttl")
		}
		cfg.Registry.TTL = d
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "format") {
		cfg.Log.Format = strings.TrimSpace(raw.Log.Format)
	}
	if meta.IsDefined("metrics", "listen_addr") {
		cfg.Metrics.ListenAddr = strings.TrimSpace(raw.Metrics.ListenAddr)
	}

	return cfg, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
