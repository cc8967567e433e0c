package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration, loaded from a TOML file.
type Config struct {
	RPCAddress  string `toml:"RPCAddress"`
	DataDir     string `toml:"DataDir"`
	Backend     string `toml:"Backend"`
	Environment string `toml:"Environment"`

	LogFile       string `toml:"LogFile,omitempty"`
	LogMaxSizeMB  int    `toml:"LogMaxSizeMB,omitempty"`
	LogMaxBackups int    `toml:"LogMaxBackups,omitempty"`
	LogMaxAgeDays int    `toml:"LogMaxAgeDays,omitempty"`

	Fees      FeesConfig      `toml:"fees"`
	Venue     VenueConfig     `toml:"venue"`
	RPC       RPCConfig       `toml:"rpc"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// FeesConfig sets the protocol fee taken from every settlement, expressed in
// basis points over the denominator.
type FeesConfig struct {
	FeeBps   uint64 `toml:"FeeBps"`
	BpsDenom uint64 `toml:"BpsDenom"`
}

// VenueConfig selects and parametrises the swap venue. Mode "static" serves
// local development with fixed rates; mode "http" talks to an external
// aggregator.
type VenueConfig struct {
	Mode        string       `toml:"Mode"`
	Endpoint    string       `toml:"Endpoint,omitempty"`
	APIKeyEnv   string       `toml:"APIKeyEnv,omitempty"`
	StaticRates []StaticRate `toml:"StaticRates,omitempty"`
}

// StaticRate configures one conversion pair for the static venue.
type StaticRate struct {
	Source      string `toml:"Source"`
	Destination string `toml:"Destination"`
	Numerator   uint64 `toml:"Numerator"`
	Denominator uint64 `toml:"Denominator"`
}

// RPCConfig controls the JSON-RPC surface.
type RPCConfig struct {
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateBurst          int     `toml:"RateBurst"`
	AdminJWTSecretEnv  string  `toml:"AdminJWTSecretEnv"`
	EnableFaucet       bool    `toml:"EnableFaucet"`
}

// TelemetryConfig controls the OTLP exporters.
type TelemetryConfig struct {
	Enabled  bool   `toml:"Enabled"`
	Endpoint string `toml:"Endpoint,omitempty"`
	Insecure bool   `toml:"Insecure,omitempty"`
	Headers  string `toml:"Headers,omitempty"`
}

// Load reads the configuration from path. A missing file is created with
// defaults so a fresh checkout starts without manual setup.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration a fresh deployment starts from.
func Default() *Config {
	return &Config{
		RPCAddress:  ":8080",
		DataDir:     "./splitpay-data",
		Backend:     "leveldb",
		Environment: "local",
		Fees: FeesConfig{
			FeeBps:   10,
			BpsDenom: 10_000,
		},
		Venue: VenueConfig{
			Mode: "static",
		},
		RPC: RPCConfig{
			RateLimitPerSecond: 50,
			RateBurst:          100,
			AdminJWTSecretEnv:  "SPLITPAY_ADMIN_JWT_SECRET",
			EnableFaucet:       true,
		},
	}
}

func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
