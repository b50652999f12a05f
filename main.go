package main

import (
	"time"

	"github.com/memoproxy/memoproxy/server"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	configFile := pflag.String("config", "", "YAML config file path")
	listAddr := pflag.StringP("listenaddr", "l", ":8080", "http listen address")
	tlsListAddr := pflag.StringP("tlsaddr", "t", ":8443", "https listen address")
	tlsKey := pflag.StringP("tlskey", "k", "", "TLS private key file path")
	tlsCert := pflag.StringP("tlscert", "c", "", "TLS certificate file path")
	tlsOnly := pflag.BoolP("tlsonly", "s", false, "Only serve TLS")
	origin := pflag.StringP("origin", "o", "", "Origin base URL to forward uncached requests to")
	ttl := pflag.Int("ttl", 300, "Cache entry expiry in seconds")
	cacheFile := pflag.StringP("cachefile", "f", "cache.json", "Durable cache snapshot file path")
	provider := pflag.StringP("provider", "p", server.ProviderFile, "Snapshot provider (file or sqlite)")
	sqlitePath := pflag.String("sqlitepath", "cache.db", "sqlite database path for the sqlite provider")
	coalesce := pflag.Bool("coalesce", false, "Share one upstream call between concurrent misses on a key")
	verbose := pflag.BoolP("verbose", "v", false, "Verbose output")
	pflag.Parse()

	var c *server.Config
	if *configFile != "" {
		loaded, err := server.LoadConfig(*configFile)
		if err != nil {
			log.Fatal(err)
		}
		c = loaded
	} else {
		c = &server.Config{TLS: &server.TLSConfig{}}
	}

	// flags set on the command line override config file values
	set := func(name string) bool { return pflag.CommandLine.Changed(name) }
	if set("listenaddr") || c.ListenAddr == "" {
		c.ListenAddr = *listAddr
	}
	if set("tlsaddr") || c.TLSListenAddr == "" {
		c.TLSListenAddr = *tlsListAddr
	}
	if set("tlskey") {
		c.TLS.KeyFile = *tlsKey
	}
	if set("tlscert") {
		c.TLS.CertFile = *tlsCert
	}
	if set("tlsonly") {
		c.TLSOnly = *tlsOnly
	}
	if set("origin") {
		c.Origin = *origin
	}
	if set("ttl") {
		c.TTL = time.Duration(*ttl) * time.Second
	}
	if set("cachefile") {
		c.CacheFilePath = *cacheFile
	}
	if set("provider") {
		c.Provider = *provider
	}
	if set("sqlitepath") {
		c.SQLitePath = *sqlitePath
	}
	if set("coalesce") {
		c.Coalesce = *coalesce
	}
	if set("verbose") {
		c.Verbose = *verbose
	}

	if c.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	s, err := server.New(c)
	if err != nil {
		log.Fatal(err)
	}

	s.ListenAndServe()
}
