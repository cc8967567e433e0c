package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"splitpay/config"
	"splitpay/core"
	"splitpay/native/settlement"
	"splitpay/native/swap"
	"splitpay/observability"
	"splitpay/observability/logging"
	"splitpay/observability/otel"
	"splitpay/rpc"
	"splitpay/storage"
)

const envPrefix = "SPLITPAY_ENV"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	env := cfg.Environment
	if fromEnv := strings.TrimSpace(os.Getenv(envPrefix)); fromEnv != "" {
		env = fromEnv
	}
	logger := logging.SetupWithOptions("splitpayd", env, logging.Options{
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	venue, err := buildVenue(cfg)
	if err != nil {
		logger.Error("failed to configure swap venue", slog.Any("error", err))
		os.Exit(1)
	}

	node := core.NewNode(db)
	node.SetVenue(venue)
	node.SetEmitter(observability.NewEmitter(logger))
	if err := node.SetFeePolicy(feePolicy(cfg)); err != nil {
		logger.Error("invalid fee policy", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := otel.Init(context.Background(), otel.Config{
			ServiceName: "splitpayd",
			Environment: env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     otel.ParseHeaders(cfg.Telemetry.Headers),
			Traces:      true,
		})
		if err != nil {
			logger.Error("failed to initialise telemetry", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.Warn("telemetry shutdown", slog.Any("error", err))
			}
		}()
	}

	var adminSecret []byte
	if envName := strings.TrimSpace(cfg.RPC.AdminJWTSecretEnv); envName != "" {
		if secret := strings.TrimSpace(os.Getenv(envName)); secret != "" {
			adminSecret = []byte(secret)
		} else {
			logger.Warn("admin secret env not set; privileged methods disabled",
				slog.String("env", envName))
		}
	}

	server := rpc.NewServer(node, rpc.Options{
		AdminSecret:        adminSecret,
		RateLimitPerSecond: cfg.RPC.RateLimitPerSecond,
		RateBurst:          cfg.RPC.RateBurst,
		EnableFaucet:       cfg.RPC.EnableFaucet,
		Logger:             logger,
	})
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "memory":
		return storage.NewMemDB(), nil
	case "leveldb":
		return storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	case "bolt":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "state.db"))
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
}

func buildVenue(cfg *config.Config) (swap.Venue, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Venue.Mode)) {
	case "static":
		venue := swap.NewStaticVenue()
		for _, rate := range cfg.Venue.StaticRates {
			venue.SetRate(
				strings.ToUpper(strings.TrimSpace(rate.Source)),
				strings.ToUpper(strings.TrimSpace(rate.Destination)),
				swap.Rate{Numerator: rate.Numerator, Denominator: rate.Denominator},
			)
		}
		return venue, nil
	case "http":
		apiKey := ""
		if envName := strings.TrimSpace(cfg.Venue.APIKeyEnv); envName != "" {
			apiKey = os.Getenv(envName)
		}
		return swap.NewHTTPVenue(nil, cfg.Venue.Endpoint, apiKey)
	default:
		return nil, fmt.Errorf("unsupported venue mode %q", cfg.Venue.Mode)
	}
}

func feePolicy(cfg *config.Config) settlement.FeePolicy {
	return settlement.FeePolicy{FeeBps: cfg.Fees.FeeBps, BpsDenom: cfg.Fees.BpsDenom}
}
