package testmerchant

import (
	"errors"
	"net/http"
	"net/url"
)

// ErrTLSUnavailable is returned for https requests made through RoutingClient
var ErrTLSUnavailable = errors.New("testmerchant: https not served")

type routingTransport struct {
	target *url.URL
	base   http.RoundTripper
}

func (t *routingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme == "https" {
		return nil, ErrTLSUnavailable
	}
	out := req.Clone(req.Context())
	out.URL.Scheme = t.target.Scheme
	out.URL.Host = t.target.Host
	out.Host = req.URL.Host
	return t.base.RoundTrip(out)
}

// RoutingClient returns an HTTP client that sends every plain-http request to
// serverURL whatever its host, and fails every https request. It lets tests
// discover a merchant by a bare domain such as shop.test.
func RoutingClient(serverURL string) *http.Client {
	target, err := url.Parse(serverURL)
	if err != nil {
		panic(err)
	}
	return &http.Client{Transport: &routingTransport{target: target, base: http.DefaultTransport}}
}
