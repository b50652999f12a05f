package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingOrigin struct {
	mu   sync.Mutex
	gets int
}

func (o *countingOrigin) handler() http.Handler {
	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		if req.Method == "HEAD" {
			return
		}
		switch req.URL.Path {
		case "/x":
			o.mu.Lock()
			o.gets++
			o.mu.Unlock()
			res.Header().Set("Content-Type", "application/json")
			res.Write([]byte(`{"a":1}`))
		case "/boom":
			http.Error(res, "origin exploded", http.StatusInternalServerError)
		default:
			http.NotFound(res, req)
		}
	})
}

func (o *countingOrigin) getCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gets
}

func newTestServer(t *testing.T, origin string, cacheFile string) *Server {
	s, err := New(&Config{
		Origin:        origin,
		TTL:           time.Minute,
		CacheFilePath: cacheFile,
	})
	require.NoError(t, err)
	return s
}

func TestProxyHitAfterMiss(t *testing.T) {
	assert := assert.New(t)

	o := &countingOrigin{}
	upstream := httptest.NewServer(o.handler())
	defer upstream.Close()

	cacheFile := filepath.Join(t.TempDir(), "cache.json")
	s := newTestServer(t, upstream.URL, cacheFile)
	router := s.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal(`{"a":1}`, rec.Body.String())
	assert.Equal("MISS", rec.Header().Get("X-Cache"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal(`{"a":1}`, rec.Body.String())
	assert.Equal("HIT", rec.Header().Get("X-Cache"))

	// the origin answered exactly one GET across both requests
	assert.Equal(1, o.getCount())

	// write-through: the durable snapshot holds the entry
	_, err := os.Stat(cacheFile)
	assert.NoError(err)
}

func TestProxySurvivesRestart(t *testing.T) {
	assert := assert.New(t)

	o := &countingOrigin{}
	upstream := httptest.NewServer(o.handler())
	defer upstream.Close()

	cacheFile := filepath.Join(t.TempDir(), "cache.json")

	s := newTestServer(t, upstream.URL, cacheFile)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	assert.Equal("MISS", rec.Header().Get("X-Cache"))

	// a fresh server over the same snapshot file serves the entry as a hit
	restarted := newTestServer(t, upstream.URL, cacheFile)
	rec = httptest.NewRecorder()
	restarted.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal(`{"a":1}`, rec.Body.String())
	assert.Equal("HIT", rec.Header().Get("X-Cache"))
	assert.Equal(1, o.getCount())
}

func TestProxyUpstreamFailure(t *testing.T) {
	assert := assert.New(t)

	o := &countingOrigin{}
	upstream := httptest.NewServer(o.handler())
	defer upstream.Close()

	s := newTestServer(t, upstream.URL, filepath.Join(t.TempDir(), "cache.json"))

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/boom", nil))
	assert.Equal(http.StatusInternalServerError, rec.Code)
	assert.Empty(rec.Header().Get("X-Cache"))
}

func TestClearHandler(t *testing.T) {
	assert := assert.New(t)

	o := &countingOrigin{}
	upstream := httptest.NewServer(o.handler())
	defer upstream.Close()

	cacheFile := filepath.Join(t.TempDir(), "cache.json")
	s := newTestServer(t, upstream.URL, cacheFile)
	router := s.Router()

	// clearing before anything is cached succeeds
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("DELETE", "/-/cache", nil))
	assert.Equal(http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	assert.Equal("MISS", rec.Header().Get("X-Cache"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("DELETE", "/-/cache", nil))
	assert.Equal(http.StatusNoContent, rec.Code)
	_, err := os.Stat(cacheFile)
	assert.True(os.IsNotExist(err))

	// the next request misses again
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	assert.Equal("MISS", rec.Header().Get("X-Cache"))
	assert.Equal(2, o.getCount())
}

func TestNewRequiresOrigin(t *testing.T) {
	_, err := New(&Config{})
	assert.Error(t, err)
}
