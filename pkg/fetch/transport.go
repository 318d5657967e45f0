package fetch

import "net/http"

// HeaderTransport injects fixed headers into every request, for sites that
// require a Referer, cookies or a browser User-Agent on segment requests.
type HeaderTransport struct {
	Headers map[string]string
	Base    http.RoundTripper
}

// NewClient returns an http.Client that sends headers with each request.
func NewClient(headers map[string]string) *http.Client {
	if len(headers) == 0 {
		return &http.Client{}
	}
	return &http.Client{
		Transport: &HeaderTransport{Headers: headers},
	}
}

func (t *HeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if len(t.Headers) == 0 {
		return base.RoundTrip(req)
	}

	// RoundTrippers must not modify the caller's request
	req = req.Clone(req.Context())
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}
	return base.RoundTrip(req)
}
