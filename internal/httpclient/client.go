package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/torosent/kvcrank/internal/catalog"
)

// RequestBuilder turns one catalog operation into ready-to-send requests.
type RequestBuilder struct {
	name    string
	method  string
	target  string
	headers http.Header
	body    BodySource
}

// NewRequestBuilder validates op against the catalog base URL and prepares
// everything a request needs, so Build does no parsing.
func NewRequestBuilder(cat *catalog.Catalog, op catalog.Operation) (*RequestBuilder, error) {
	if cat == nil {
		return nil, errors.New("catalog cannot be nil")
	}

	target := cat.URL(op)
	if _, err := url.ParseRequestURI(target); err != nil {
		return nil, fmt.Errorf("operation %s: invalid target %q: %w", op.Name, target, err)
	}

	method := strings.ToUpper(strings.TrimSpace(op.Method))
	if method == "" {
		method = http.MethodGet
	}

	headers := http.Header{}
	for key, values := range op.Headers {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" || strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("operation %s: invalid header key %q", op.Name, key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		for _, value := range values {
			if strings.ContainsAny(value, "\r\n") {
				return nil, fmt.Errorf("operation %s: invalid header value for %s", op.Name, canonicalKey)
			}
			headers.Add(canonicalKey, value)
		}
	}

	return &RequestBuilder{
		name:    op.Name,
		method:  method,
		target:  target,
		headers: headers,
		body:    NewBodySource(op.Body),
	}, nil
}

// Name returns the operation name the builder was created for.
func (b *RequestBuilder) Name() string {
	return b.name
}

// Method returns the HTTP method of built requests.
func (b *RequestBuilder) Method() string {
	return b.method
}

// Target returns the absolute request URL.
func (b *RequestBuilder) Target() string {
	return b.target
}

func (b *RequestBuilder) Build(ctx context.Context) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	reader, err := b.body.NewReader()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, b.method, b.target, reader)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}

	req.Header = b.headers.Clone()

	if length, ok := b.body.ContentLength(); ok {
		req.ContentLength = length
	}

	if _, empty := b.body.(emptyBodySource); !empty {
		req.GetBody = func() (io.ReadCloser, error) {
			return b.body.NewReader()
		}
	}

	return req, nil
}

// NewClient returns an http.Client tuned for many short concurrent calls to a
// single host. maxConnsPerHost <= 0 leaves the per-host connection count
// unbounded.
func NewClient(timeout time.Duration, maxConnsPerHost int) *http.Client {
	if timeout < 0 {
		timeout = 0
	}
	if maxConnsPerHost < 0 {
		maxConnsPerHost = 0
	}

	idlePerHost := maxConnsPerHost
	if idlePerHost == 0 {
		idlePerHost = 256
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          idlePerHost,
		MaxIdleConnsPerHost:   idlePerHost,
		MaxConnsPerHost:       maxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
