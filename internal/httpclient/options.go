package httpclient

import (
	"net/http"
	"time"
)

type options struct {
	client         *http.Client
	requestTimeout time.Duration
	headers        map[string]string
}

// Option configures the Client.
type Option func(*options)

func newOptions(opts ...Option) options {
	o := options{
		requestTimeout: defaultRequestTimeout,
		headers:        map[string]string{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithHTTPClient supplies a pre-configured http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.client = client }
}

// WithRequestTimeout overrides the default request timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithDefaultHeader adds a header applied to every request.
func WithDefaultHeader(key, value string) Option {
	return func(o *options) { o.headers[key] = value }
}
