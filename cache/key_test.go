package cache

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testDescriptor() Descriptor {
	return Descriptor{
		Method: "GET",
		Target: "/x?b=2&a=1",
		Header: http.Header{
			"Accept":     []string{"application/json"},
			"User-Agent": []string{"test-client"},
		},
	}
}

func TestDeriveKeyDeterminism(t *testing.T) {
	assert := assert.New(t)

	d1 := testDescriptor()
	d2 := testDescriptor()

	assert.Equal(DeriveKey(d1), DeriveKey(d2))
	assert.Equal(DeriveKey(d1), DeriveKey(d1))
}

func TestDeriveKeyShape(t *testing.T) {
	assert := assert.New(t)

	key := DeriveKey(testDescriptor())
	assert.Len(key, 32)
	assert.Regexp("^[0-9a-f]+$", key)

	// degenerate descriptors still yield a well-formed key
	assert.Len(DeriveKey(Descriptor{}), 32)
}

func TestDeriveKeyDiffers(t *testing.T) {
	assert := assert.New(t)

	base := testDescriptor()
	baseKey := DeriveKey(base)

	method := testDescriptor()
	method.Method = "POST"
	assert.NotEqual(baseKey, DeriveKey(method))

	target := testDescriptor()
	target.Target = "/x?b=2&a=2"
	assert.NotEqual(baseKey, DeriveKey(target))

	headerValue := testDescriptor()
	headerValue.Header.Set("Accept", "text/html")
	assert.NotEqual(baseKey, DeriveKey(headerValue))

	extraHeader := testDescriptor()
	extraHeader.Header.Set("If-None-Match", `"abc"`)
	assert.NotEqual(baseKey, DeriveKey(extraHeader))
}

func TestDeriveKeyDoesNotMutate(t *testing.T) {
	assert := assert.New(t)

	d := testDescriptor()
	DeriveKey(d)

	assert.Equal("GET", d.Method)
	assert.Equal("/x?b=2&a=1", d.Target)
	assert.Equal([]string{"application/json"}, d.Header["Accept"])
	assert.Len(d.Header, 2)
}

func TestNewDescriptor(t *testing.T) {
	assert := assert.New(t)

	req := httptest.NewRequest("GET", "http://example.com/x?a=1", nil)
	req.Header.Set("Accept", "application/json")

	d := NewDescriptor(req)
	assert.Equal("GET", d.Method)
	assert.Equal("/x?a=1", d.Target)
	assert.Equal("application/json", d.Header.Get("Accept"))

	// the captured header set is a copy
	req.Header.Set("Accept", "text/html")
	assert.Equal("application/json", d.Header.Get("Accept"))
}
