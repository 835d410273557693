// Package config loads the node's runtime configuration from the
// environment, optionally seeded from a dotenv file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/Smart-Charging/scn-node/store"
)

// Config is the node's full runtime configuration.
type Config struct {
	// NodeURL is this node's public base URL, as registered on-chain and
	// substituted into proxied links and callbacks.
	NodeURL string

	// ListenAddr is the HTTP listen address.
	ListenAddr string

	// APIKey guards the admin provisioning endpoint.
	APIKey string

	// PrivateKey is the node wallet's secp256k1 key in hex.
	PrivateKey string

	// Signatures is the default message-signing requirement applied to
	// newly registered platforms.
	Signatures bool

	// RequestTimeout bounds forwarded platform and node requests.
	RequestTimeout time.Duration

	// Web3Provider is the JSON-RPC endpoint backing registry lookups.
	Web3Provider string

	// RegistryContract is the registry smart contract address.
	RegistryContract string

	// Database holds the PostgreSQL connection parameters. Nil means the
	// in-memory store, for development only.
	Database *store.PostgresConfig
}

// Load reads the configuration from the environment. When envFile is
// non-empty it is loaded first; variables already set in the environment
// win.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("could not load env file %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		NodeURL:          os.Getenv("SCN_NODE_URL"),
		ListenAddr:       envOr("SCN_NODE_ADDR", ":8080"),
		APIKey:           os.Getenv("SCN_NODE_APIKEY"),
		PrivateKey:       os.Getenv("SCN_NODE_PRIVATE_KEY"),
		Signatures:       envBool("SCN_NODE_SIGNATURES", true),
		RequestTimeout:   envDuration("SCN_NODE_REQUEST_TIMEOUT", 30*time.Second),
		Web3Provider:     os.Getenv("SCN_NODE_WEB3_PROVIDER"),
		RegistryContract: os.Getenv("SCN_NODE_REGISTRY_CONTRACT"),
	}

	if cfg.NodeURL == "" {
		return nil, fmt.Errorf("SCN_NODE_URL is required")
	}
	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("SCN_NODE_PRIVATE_KEY is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("SCN_NODE_APIKEY is required")
	}
	if cfg.Web3Provider == "" {
		return nil, fmt.Errorf("SCN_NODE_WEB3_PROVIDER is required")
	}
	if cfg.RegistryContract == "" {
		return nil, fmt.Errorf("SCN_NODE_REGISTRY_CONTRACT is required")
	}

	if host := os.Getenv("SCN_NODE_DB_HOST"); host != "" {
		port, err := strconv.Atoi(envOr("SCN_NODE_DB_PORT", "5432"))
		if err != nil {
			return nil, fmt.Errorf("invalid SCN_NODE_DB_PORT: %w", err)
		}
		cfg.Database = &store.PostgresConfig{
			Host:     host,
			Port:     port,
			User:     envOr("SCN_NODE_DB_USER", "scn"),
			Password: os.Getenv("SCN_NODE_DB_PASSWORD"),
			Database: envOr("SCN_NODE_DB_NAME", "scn_node"),
			SSLMode:  os.Getenv("SCN_NODE_DB_SSLMODE"),
		}
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
