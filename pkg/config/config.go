package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port string `yaml:"port"`

	LedgerBaseURL  string `yaml:"ledger_base_url"`
	ProofServerURL string `yaml:"proof_server_url"`

	// IndexerDatabaseURL is optional. When empty, sender proofs are read from
	// the ledger gateway instead of the indexer database.
	IndexerDatabaseURL string `yaml:"indexer_database_url"`
	IndexerMaxConns    int32  `yaml:"indexer_max_conns"`

	LogLevel       string `yaml:"log_level"`
	LogDevelopment bool   `yaml:"log_development"`

	OracleConcurrency      int `yaml:"oracle_concurrency"`
	UpstreamTimeoutSeconds int `yaml:"upstream_timeout_seconds"`
}

func Defaults() Config {
	return Config{
		Port:                   "8090",
		LedgerBaseURL:          "http://localhost:9000",
		ProofServerURL:         "http://localhost:8088",
		IndexerMaxConns:        10,
		LogLevel:               "info",
		OracleConcurrency:      8,
		UpstreamTimeoutSeconds: 30,
	}
}

// Load reads the optional YAML file at path and then applies environment
// overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, errors.Wrapf(err, "parse config file %s", path)
			}
		case os.IsNotExist(err):
		default:
			return Config{}, errors.Wrapf(err, "read config file %s", path)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString("SERVICE_PORT", &cfg.Port)
	setString("LEDGER_BASE_URL", &cfg.LedgerBaseURL)
	setString("PROOF_SERVER_URL", &cfg.ProofServerURL)
	setString("INDEXER_DATABASE_URL", &cfg.IndexerDatabaseURL)
	setString("LOG_LEVEL", &cfg.LogLevel)

	if v := strings.TrimSpace(os.Getenv("LOG_DEVELOPMENT")); v != "" {
		cfg.LogDevelopment = strings.EqualFold(v, "true")
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"ORACLE_CONCURRENCY", &cfg.OracleConcurrency},
		{"UPSTREAM_TIMEOUT_SECONDS", &cfg.UpstreamTimeoutSeconds},
	}
	for _, e := range ints {
		v := strings.TrimSpace(os.Getenv(e.key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "%s must be an integer", e.key)
		}
		*e.dst = n
	}
	if v := strings.TrimSpace(os.Getenv("INDEXER_MAX_CONNS")); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return errors.Wrap(err, "INDEXER_MAX_CONNS must be an integer")
		}
		cfg.IndexerMaxConns = int32(n)
	}
	return nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return errors.New("port is required")
	}
	if strings.TrimSpace(c.LedgerBaseURL) == "" {
		return errors.New("ledger_base_url is required")
	}
	if strings.TrimSpace(c.ProofServerURL) == "" {
		return errors.New("proof_server_url is required")
	}
	if c.OracleConcurrency <= 0 {
		return errors.New("oracle_concurrency must be positive")
	}
	if c.UpstreamTimeoutSeconds <= 0 {
		return errors.New("upstream_timeout_seconds must be positive")
	}
	if c.IndexerDatabaseURL != "" && c.IndexerMaxConns <= 0 {
		return errors.New("indexer_max_conns must be positive")
	}
	return nil
}

func (c Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.UpstreamTimeoutSeconds) * time.Second
}
