package cache

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

// NewForwarder returns a ForwardFunc that performs the outbound call against
// the given origin base URL. The descriptor's target is resolved against the
// origin and its header set is copied onto the outbound request.
func NewForwarder(origin string, client *http.Client) (ForwardFunc, error) {
	base, err := url.Parse(origin)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse origin URL")
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("origin URL %q needs a scheme and host", origin)
	}
	if client == nil {
		client = &http.Client{}
	}

	return func(ctx context.Context, d Descriptor) (*UpstreamResult, error) {
		target, err := url.Parse(d.Target)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse request target")
		}
		u := base.ResolveReference(target)

		req, err := http.NewRequestWithContext(ctx, d.Method, u.String(), nil)
		if err != nil {
			return nil, errors.Wrap(err, "failed to build origin request")
		}
		for name, values := range d.Header {
			for _, v := range values {
				req.Header.Add(name, v)
			}
		}
		req.Host = base.Host

		resp, err := client.Do(req)
		if err != nil {
			return nil, errors.Wrap(err, "origin request failed")
		}
		defer resp.Body.Close()

		body, err := ioutil.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read origin response body")
		}

		return &UpstreamResult{
			Status: resp.StatusCode,
			Body:   body,
		}, nil
	}, nil
}
