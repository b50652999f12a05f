package cache

import (
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
)

// Descriptor captures the identity of an inbound request: its method, the
// target (path and query) and the full header set. It is captured once from
// the request and never mutated afterwards.
type Descriptor struct {
	Method string
	Target string
	Header http.Header
}

// NewDescriptor captures a Descriptor from an inbound request.
// The header set is cloned so later mutations of the request do not leak
// into the descriptor.
func NewDescriptor(req *http.Request) Descriptor {
	return Descriptor{
		Method: req.Method,
		Target: req.URL.RequestURI(),
		Header: req.Header.Clone(),
	}
}

// DeriveKey maps a descriptor to a fixed-width hex key.
// The method, target and the complete header mapping are serialized into a
// canonical byte sequence (header names sorted, values in captured order)
// and hashed with a 128-bit digest. Two descriptors with the same method,
// target and header mapping always produce the same key.
//
// Including every inbound header makes the key sensitive to headers that
// clients vary per call (auth tokens, user agents, conditional validators),
// which fragments the cache across otherwise identical requests. That is
// intentional: a header-blind key could serve one client's cached response
// to a request negotiated differently.
func DeriveKey(d Descriptor) string {
	var b strings.Builder
	b.WriteString(d.Method)
	b.WriteByte('\n')
	b.WriteString(d.Target)
	b.WriteByte('\n')

	names := make([]string, 0, len(d.Header))
	for name := range d.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(strings.Join(d.Header[name], ", "))
		b.WriteByte('\n')
	}

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
