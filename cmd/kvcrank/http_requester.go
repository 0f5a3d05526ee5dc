package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/kvcrank/internal/auth"
	"github.com/torosent/kvcrank/internal/catalog"
	"github.com/torosent/kvcrank/internal/httpclient"
	"github.com/torosent/kvcrank/internal/runner"
	"github.com/torosent/kvcrank/internal/tracing"
)

const maxLoggedBodyBytes = 1024

// httpRequester implements runner.Requester for one catalog operation.
type httpRequester struct {
	client    *http.Client
	builder   *httpclient.RequestBuilder
	tracer    trace.Tracer
	propagate bool
	auth      *auth.Provider
}

func newRequesters(cat *catalog.Catalog, client *http.Client, tp *tracing.Provider, authProvider *auth.Provider) ([]*httpRequester, error) {
	ops := cat.Operations()
	reqs := make([]*httpRequester, 0, len(ops))
	for _, op := range ops {
		builder, err := httpclient.NewRequestBuilder(cat, op)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, &httpRequester{
			client:    client,
			builder:   builder,
			tracer:    tp.Tracer(),
			propagate: tp.ShouldPropagate(),
			auth:      authProvider,
		})
	}
	return reqs, nil
}

// Name returns the catalog operation name.
func (r *httpRequester) Name() string {
	return r.builder.Name()
}

// Do sends one request and drains the response. Status codes of 400 and above
// are reported as *runner.HTTPError.
func (r *httpRequester) Do(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartOperationSpan(ctx, r.tracer, r.builder.Name(), r.builder.Method(), r.builder.Target())

	req, err := r.builder.Build(ctx)
	if err != nil {
		err = fmt.Errorf("build request: %w", err)
		tracing.EndSpan(span, err)
		return err
	}
	if err := r.auth.InjectHeader(req); err != nil {
		tracing.EndSpan(span, err)
		return err
	}
	if r.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		tracing.EndSpan(span, err)
		return err
	}
	defer resp.Body.Close()

	var resultErr error
	if resp.StatusCode >= 400 {
		snippet, readErr := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBodyBytes))
		if readErr != nil {
			resultErr = readErr
		} else {
			resultErr = &runner.HTTPError{
				StatusCode: resp.StatusCode,
				Body:       strings.TrimSpace(string(snippet)),
			}
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	tracing.EndSpan(span, resultErr, tracing.StatusCodeAttr(resp.StatusCode))
	return resultErr
}
