// Package config loads engine settings from a TOML file. Connection
// strings stay in the environment (DATABASE_URL, REDIS_URL); the file
// carries the tunables.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Server configures the HTTP listener.
type Server struct {
	Addr            string   `toml:"addr"`
	ReadTimeout     duration `toml:"read_timeout"`
	WriteTimeout    duration `toml:"write_timeout"`
	IdleTimeout     duration `toml:"idle_timeout"`
	RequestTimeout  duration `toml:"request_timeout"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// PriceFeed configures the market-data client and the aggregator.
type PriceFeed struct {
	Endpoint     string   `toml:"endpoint"`
	FetchTimeout duration `toml:"fetch_timeout"`
	CacheTTL     duration `toml:"cache_ttl"`
	FetchWorkers int      `toml:"fetch_workers"`
}

// Trust configures the score blend. Weights are normalized at scoring
// time; the clamp bounds average performance so one outlier trade cannot
// dominate; the decay horizon discounts stale recommenders.
type Trust struct {
	ConsistencyWeight   float64  `toml:"consistency_weight"`
	PerformanceWeight   float64  `toml:"performance_weight"`
	RecencyWeight       float64  `toml:"recency_weight"`
	PerformanceClampPct float64  `toml:"performance_clamp_pct"`
	DecayHorizon        duration `toml:"decay_horizon"`
}

// Store configures cache behavior in front of the primary store.
type Store struct {
	CacheTTL duration `toml:"cache_ttl"`
}

// Config is the root of the TOML file.
type Config struct {
	Server    Server    `toml:"server"`
	PriceFeed PriceFeed `toml:"price_feed"`
	Trust     Trust     `toml:"trust"`
	Store     Store     `toml:"store"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     duration{10 * time.Second},
			WriteTimeout:    duration{10 * time.Second},
			IdleTimeout:     duration{60 * time.Second},
			RequestTimeout:  duration{30 * time.Second},
			ShutdownTimeout: duration{5 * time.Second},
		},
		PriceFeed: PriceFeed{
			FetchTimeout: duration{5 * time.Second},
			CacheTTL:     duration{30 * time.Second},
			FetchWorkers: 8,
		},
		Trust: Trust{
			ConsistencyWeight:   0.5,
			PerformanceWeight:   0.3,
			RecencyWeight:       0.2,
			PerformanceClampPct: 100,
			DecayHorizon:        duration{30 * 24 * time.Hour},
		},
		Store: Store{
			CacheTTL: duration{30 * time.Second},
		},
	}
}

// Load reads a TOML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// duration wraps time.Duration so TOML values can be written as "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}
