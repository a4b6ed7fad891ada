// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package depresolver

import (
	"net/http"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
)

const userAgent = "terraflex/0 (+https://github.com/terraflex/terraflex)"

type userAgentRoundTripper struct {
	inner http.RoundTripper
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}
	return rt.inner.RoundTrip(req)
}

// newHTTPClient returns a pooled HTTP client that stamps a terraflex
// User-Agent on every request.
func newHTTPClient() *http.Client {
	cli := cleanhttp.DefaultPooledClient()
	cli.Transport = &userAgentRoundTripper{inner: cli.Transport}
	return cli
}
