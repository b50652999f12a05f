package cache

import (
	"context"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Origin classifies where a resolved payload came from
type Origin string

const (
	// OriginHit means the payload was served from the store
	OriginHit Origin = "HIT"
	// OriginMiss means the payload was freshly fetched from upstream
	OriginMiss Origin = "MISS"
)

// UpstreamResult is the outcome of a completed upstream call
type UpstreamResult struct {
	Status int
	Body   []byte
}

// ForwardFunc performs the outbound call to the configured origin for the
// given descriptor. It is external to the resolver; retry policy, if any,
// belongs to it.
type ForwardFunc func(ctx context.Context, d Descriptor) (*UpstreamResult, error)

// UpstreamError reports a failed upstream resolution. Status carries the
// status reported by the origin, or a gateway error status when the call
// never completed.
type UpstreamError struct {
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream request failed: %s", e.Err)
	}
	return fmt.Sprintf("upstream returned status %d", e.Status)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ErrorStatus returns the status code to report for a resolution error,
// defaulting to bad gateway when no upstream status is known.
func ErrorStatus(err error) int {
	if ue, ok := err.(*UpstreamError); ok && ue.Status != 0 {
		return ue.Status
	}
	return http.StatusBadGateway
}

// conditionalHeaders are request validators stripped before forwarding, so
// the origin is asked for a full representation rather than a delta.
var conditionalHeaders = []string{
	"If-Match",
	"If-Modified-Since",
	"If-None-Match",
	"If-Range",
	"If-Unmodified-Since",
}

// stripConditional returns a copy of the descriptor without
// conditional-request headers. The original descriptor, and with it the
// derived cache key, is left untouched.
func stripConditional(d Descriptor) Descriptor {
	stripped := Descriptor{
		Method: d.Method,
		Target: d.Target,
		Header: d.Header.Clone(),
	}
	if stripped.Header == nil {
		stripped.Header = make(http.Header)
	}
	for _, name := range conditionalHeaders {
		stripped.Header.Del(name)
	}
	return stripped
}

// NewResolver returns a resolver over the given store. Entries created on
// miss are stored with ttl. With coalesce enabled, concurrent misses on the
// same key share a single in-flight upstream call instead of each hitting
// the origin independently.
func NewResolver(store *Store, ttl time.Duration, coalesce bool) *Resolver {
	r := &Resolver{
		store: store,
		ttl:   ttl,
	}
	if coalesce {
		r.group = &singleflight.Group{}
	}
	return r
}

// Resolver decides per request whether to serve from the store or forward
// upstream, and writes successful fetches back into the store.
type Resolver struct {
	store *Store
	ttl   time.Duration
	group *singleflight.Group
}

type resolution struct {
	payload []byte
	origin  Origin
}

// Resolve returns the payload for the descriptor together with its origin
// classification. Upstream failures are returned as *UpstreamError and leave
// the store untouched; they are never retried here.
func (r *Resolver) Resolve(ctx context.Context, d Descriptor, forward ForwardFunc) ([]byte, Origin, error) {
	key := DeriveKey(d)

	if value, ok := r.store.Get(key); ok {
		log.Debugf("cache hit for %s %s", d.Method, d.Target)
		return value, OriginHit, nil
	}

	if r.group == nil {
		res, err := r.resolveMiss(ctx, key, d, forward)
		if err != nil {
			return nil, OriginMiss, err
		}
		return res.payload, res.origin, nil
	}

	v, err, shared := r.group.Do(key, func() (interface{}, error) {
		// another caller may have stored the entry while this one waited
		if value, ok := r.store.Get(key); ok {
			return &resolution{payload: value, origin: OriginHit}, nil
		}
		return r.resolveMiss(ctx, key, d, forward)
	})
	if err != nil {
		return nil, OriginMiss, err
	}
	res := v.(*resolution)
	if shared && res.origin == OriginMiss {
		log.Debugf("coalesced upstream fetch for %s %s", d.Method, d.Target)
	}
	return res.payload, res.origin, nil
}

func (r *Resolver) resolveMiss(ctx context.Context, key string, d Descriptor, forward ForwardFunc) (*resolution, error) {
	stripped := stripConditional(d)

	result, err := forward(ctx, stripped)
	if err != nil {
		return nil, &UpstreamError{Status: http.StatusBadGateway, Err: err}
	}

	if result.Status == http.StatusNotModified {
		// the origin confirms a cached copy is still valid; a concurrent
		// request may have filled the store since the first lookup
		if value, ok := r.store.Get(key); ok {
			return &resolution{payload: value, origin: OriginHit}, nil
		}

		// not-modified for content we never cached: ask again for a full
		// representation
		log.Debugf("not-modified without cached baseline for %s %s, refetching", d.Method, d.Target)
		result, err = forward(ctx, stripped)
		if err != nil {
			return nil, &UpstreamError{Status: http.StatusBadGateway, Err: err}
		}
		if result.Status == http.StatusNotModified {
			return nil, &UpstreamError{Status: http.StatusBadGateway, Err: fmt.Errorf("origin insists on not-modified for uncached content")}
		}
	}

	if result.Status < 200 || result.Status >= 300 {
		return nil, &UpstreamError{Status: result.Status}
	}

	if err := r.store.Set(key, result.Body, r.ttl); err != nil {
		// the in-memory entry is set regardless, only durability suffered
		log.Warnf("failed to persist entry for %s %s: %s", d.Method, d.Target, err)
	}
	log.Debugf("cached %s %s (%d bytes)", d.Method, d.Target, len(result.Body))

	return &resolution{payload: result.Body, origin: OriginMiss}, nil
}
