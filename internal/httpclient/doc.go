// Package httpclient provides HTTP client utilities for the kvcrank load testing tool.
//
// The httpclient package handles request construction for catalog operations and
// the shared client used to send them:
//   - Header validation (no CR/LF injection) done once per operation
//   - Replayable request bodies with known content length
//   - A transport tuned for many concurrent calls to one host
//
// # Request Building
//
// Use [NewRequestBuilder] once per catalog operation, then build a fresh request
// for every dispatch:
//
//	builder, err := httpclient.NewRequestBuilder(cat, cat.At(0))
//	if err != nil {
//		return err
//	}
//	req, err := builder.Build(ctx)
//
// # HTTP Client
//
// [NewClient] creates a client with a per-request timeout and an optional cap on
// connections per host:
//
//	client := httpclient.NewClient(30*time.Second, 0)
//	resp, err := client.Do(req)
package httpclient
