package server

import (
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Provider names for the durable snapshot backend
const (
	ProviderFile   = "file"
	ProviderSQLite = "sqlite"
)

// Config represents a server config
type Config struct {
	ListenAddr    string
	TLSListenAddr string
	TLSOnly       bool
	TLS           *TLSConfig
	Verbose       bool
	// Origin is the base URL uncached requests are forwarded to
	Origin string
	// TTL is the per-entry expiry applied to cached responses
	TTL time.Duration
	// CacheFilePath is the durable snapshot location for the file provider
	CacheFilePath string
	// Provider selects the snapshot backend, file or sqlite
	Provider string
	// SQLitePath is the database location for the sqlite provider
	SQLitePath string
	// Coalesce shares one upstream call between concurrent misses on a key
	Coalesce bool
}

// TLSConfig represents a TLS configuration
type TLSConfig struct {
	KeyFile  string
	CertFile string
}

type fileConfig struct {
	ListenAddr    string `yaml:"listenAddr"`
	TLSListenAddr string `yaml:"tlsListenAddr"`
	TLSOnly       bool   `yaml:"tlsOnly"`
	TLSKeyFile    string `yaml:"tlsKeyFile"`
	TLSCertFile   string `yaml:"tlsCertFile"`
	Verbose       bool   `yaml:"verbose"`
	Origin        string `yaml:"origin"`
	TTLSeconds    int    `yaml:"ttlSeconds"`
	CacheFile     string `yaml:"cacheFile"`
	Provider      string `yaml:"provider"`
	SQLitePath    string `yaml:"sqlitePath"`
	Coalesce      bool   `yaml:"coalesce"`
}

// LoadConfig reads a YAML config file into a Config
func LoadConfig(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	return &Config{
		ListenAddr:    fc.ListenAddr,
		TLSListenAddr: fc.TLSListenAddr,
		TLSOnly:       fc.TLSOnly,
		TLS: &TLSConfig{
			KeyFile:  fc.TLSKeyFile,
			CertFile: fc.TLSCertFile,
		},
		Verbose:       fc.Verbose,
		Origin:        fc.Origin,
		TTL:           time.Duration(fc.TTLSeconds) * time.Second,
		CacheFilePath: fc.CacheFile,
		Provider:      fc.Provider,
		SQLitePath:    fc.SQLitePath,
		Coalesce:      fc.Coalesce,
	}, nil
}

// applyDefaults fills in unset config values
func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.TTL == 0 {
		c.TTL = 5 * time.Minute
	}
	if c.CacheFilePath == "" {
		c.CacheFilePath = "cache.json"
	}
	if c.Provider == "" {
		c.Provider = ProviderFile
	}
	if c.SQLitePath == "" {
		c.SQLitePath = "cache.db"
	}
	if c.TLS == nil {
		c.TLS = &TLSConfig{}
	}
}
