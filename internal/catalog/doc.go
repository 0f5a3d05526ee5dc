// Package catalog describes the fixed set of operations a kvcrank run fires at
// the target service.
//
// A [Catalog] is an ordered list of [Operation] values bound to one base URL.
// The dispatch harness selects operations round-robin by index, so order only
// matters for which operation a given sequence number maps to. The same logical
// action may appear more than once.
//
// [Canonical] builds the standard CRUD + list mix:
//
//	cat, err := catalog.Canonical(catalog.Options{
//		BaseURL: "http://localhost:8080",
//		Key:     "test_key",
//	})
//
// Every operation is self-contained: its path, method and encoded body are
// captured at construction and nothing is supplied at invocation time.
package catalog
