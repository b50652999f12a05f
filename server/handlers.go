package server

import (
	"net/http"

	"github.com/memoproxy/memoproxy/cache"
	log "github.com/sirupsen/logrus"
)

// cacheHeader exposes the HIT/MISS classification to callers
const cacheHeader = "X-Cache"

func newHandlers(resolver *cache.Resolver, forward cache.ForwardFunc, store *cache.Store) *handlers {
	return &handlers{
		resolver: resolver,
		forward:  forward,
		store:    store,
	}
}

type handlers struct {
	resolver *cache.Resolver
	forward  cache.ForwardFunc
	store    *cache.Store
}

// ProxyHandler resolves the request against the cache, forwarding upstream
// on a miss. The X-Cache header tells the caller whether the body came from
// the store or from a fresh forward.
func (h *handlers) ProxyHandler(res http.ResponseWriter, req *http.Request) {
	d := cache.NewDescriptor(req)

	payload, origin, err := h.resolver.Resolve(req.Context(), d, h.forward)
	if err != nil {
		status := cache.ErrorStatus(err)
		log.Errorf("failed to resolve %s %s: %s", d.Method, d.Target, err)
		http.Error(res, err.Error(), status)
		return
	}

	res.Header().Set(cacheHeader, string(origin))
	res.WriteHeader(http.StatusOK)
	if _, err := res.Write(payload); err != nil {
		log.Errorf("failed to write response for %s %s: %s", d.Method, d.Target, err)
	}
}

// ClearHandler empties the store and removes the durable snapshot.
// It succeeds whether or not anything is currently cached.
func (h *handlers) ClearHandler(res http.ResponseWriter, req *http.Request) {
	if err := h.store.Clear(); err != nil {
		log.Errorf("failed to clear cache: %s", err)
		http.Error(res, err.Error(), http.StatusInternalServerError)
		return
	}

	log.Info("cache cleared")
	res.WriteHeader(http.StatusNoContent)
}
