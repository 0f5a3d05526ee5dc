// Package metrics aggregates operation outcomes when a run opts into statistics.
//
// By default the harness discards every outcome. With statistics enabled, a
// [Collector] is fed through the runner's result sink and records latency,
// success and failure counts, status codes and a per-operation breakdown:
//
//	collector := metrics.NewCollector()
//
//	collector.RecordRequest(latency, err, &metrics.RequestMetadata{
//		Operation:  "read",
//		StatusCode: "404",
//	})
//
//	stats := collector.Stats(elapsed)
//
// Failures are grouped by [Classify] into a fixed set of categories. Latency
// percentiles come from an HDR histogram tracking 1µs to 60s with three
// significant figures. The Collector is safe for concurrent use.
package metrics
