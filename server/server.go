package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/memoproxy/memoproxy/cache"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// New creates a new server instance
func New(c *Config) (*Server, error) {
	if c.Origin == "" {
		return nil, errors.New("no origin provided")
	}
	c.applyDefaults()

	if err := probeOrigin(c.Origin); err != nil {
		// hits can still be served while the origin is down
		log.Warnf("origin %s is not reachable: %s", c.Origin, err)
	}

	persister, err := newPersister(c)
	if err != nil {
		return nil, err
	}

	store, err := cache.NewStore(persister, c.TTL)
	if err != nil {
		// a corrupt snapshot starts us empty, never aborts startup
		log.Warnf("starting with an empty cache: %s", err)
	}

	forward, err := cache.NewForwarder(c.Origin, &http.Client{})
	if err != nil {
		return nil, err
	}

	return &Server{
		c:        c,
		store:    store,
		resolver: cache.NewResolver(store, c.TTL, c.Coalesce),
		forward:  forward,
	}, nil
}

func newPersister(c *Config) (cache.Persister, error) {
	switch c.Provider {
	case ProviderFile:
		return cache.NewFilePersister(c.CacheFilePath)
	case ProviderSQLite:
		return cache.NewSQLitePersister(c.SQLitePath)
	default:
		return nil, errors.Errorf("unsupported snapshot provider: %s", c.Provider)
	}
}

// Server represents a server instance
type Server struct {
	c        *Config
	store    *cache.Store
	resolver *cache.Resolver
	forward  cache.ForwardFunc
}

// Router builds the request router: the administrative clear route first,
// then the catch-all proxy route.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	h := newHandlers(s.resolver, s.forward, s.store)

	r.HandleFunc("/-/cache", h.ClearHandler).Methods("DELETE")
	r.PathPrefix("/").HandlerFunc(h.ProxyHandler)

	return r
}

// ListenAndServe listens for new requests and serves them
func (s *Server) ListenAndServe() {
	r := s.Router()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tlsEnabled := s.c.TLS.CertFile != "" && s.c.TLS.KeyFile != ""
	if !s.c.TLSOnly {
		go listenAndServe(ctx, cancel, s.c.ListenAddr, r)
	}

	if tlsEnabled {
		go listenAndServeTLS(ctx, cancel, s.c.TLSListenAddr, s.c.TLS, r)
	}

	<-ctx.Done()
}

// listenAndServe serves a plain http webserver
func listenAndServe(ctx context.Context, cancel func(), addr string, handler http.Handler) {
	defer cancel()
	addrStr := getAddrString(addr)
	log.Infof("http server listening on: http://%s\n", addrStr)
	log.Error(http.ListenAndServe(addr, handler))
}

// listenAndServeTLS serves a tls webserver
func listenAndServeTLS(ctx context.Context, cancel func(), addr string, tls *TLSConfig, handler http.Handler) {
	defer cancel()
	addrStr := getAddrString(addr)
	log.Infof("https server listening on: https://%s\n", addrStr)
	log.Error(http.ListenAndServeTLS(addr, tls.CertFile, tls.KeyFile, handler))
}

func probeOrigin(url string) error {
	resp, err := http.Head(url)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func getAddrString(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = fmt.Sprintf("0.0.0.0%s", addr)
	}
	return addr
}
