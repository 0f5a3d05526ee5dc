package catalog

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ErrEmptyCatalog is returned when a catalog is built without operations.
var ErrEmptyCatalog = errors.New("catalog has no operations")

// Operation names used by the canonical catalog.
const (
	OpCreate      = "create"
	OpCreateNamed = "create-named"
	OpRead        = "read"
	OpUpdate      = "update"
	OpDelete      = "delete"
	OpList        = "list"
)

// Operation is a single HTTP call against the catalog's base URL.
type Operation struct {
	Name    string
	Method  string
	Path    string // path and optional query, relative to the base URL
	Body    []byte // nil for bodiless requests
	Headers http.Header
}

// HasBody reports whether the operation sends a payload.
func (o Operation) HasBody() bool {
	return o.Body != nil
}

// Catalog is an ordered, immutable sequence of operations bound to a base URL.
type Catalog struct {
	base string
	ops  []Operation
}

// New builds a catalog from explicit operations. The base URL must be an
// absolute http or https URL.
func New(base string, ops ...Operation) (*Catalog, error) {
	normalized, err := normalizeBase(base)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, ErrEmptyCatalog
	}
	copied := make([]Operation, len(ops))
	for i, op := range ops {
		method := strings.ToUpper(strings.TrimSpace(op.Method))
		if method == "" {
			return nil, fmt.Errorf("operations[%d]: method is required", i)
		}
		if !strings.HasPrefix(op.Path, "/") {
			return nil, fmt.Errorf("operations[%d]: path %q must start with /", i, op.Path)
		}
		op.Method = method
		op.Headers = op.Headers.Clone()
		if op.Body != nil {
			op.Body = append([]byte{}, op.Body...)
		}
		copied[i] = op
	}
	return &Catalog{base: normalized, ops: copied}, nil
}

// Base returns the base URL without a trailing slash.
func (c *Catalog) Base() string {
	return c.base
}

// Len returns the number of operations.
func (c *Catalog) Len() int {
	return len(c.ops)
}

// At returns the operation selected for sequence number i, wrapping around the
// catalog size.
func (c *Catalog) At(i int) Operation {
	n := len(c.ops)
	idx := i % n
	if idx < 0 {
		idx += n
	}
	return c.ops[idx]
}

// Operations returns a copy of the ordered operation list.
func (c *Catalog) Operations() []Operation {
	return append([]Operation(nil), c.ops...)
}

// URL resolves an operation path against the catalog base.
func (c *Catalog) URL(op Operation) string {
	return c.base + op.Path
}

func normalizeBase(base string) (string, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		return "", errors.New("base URL is required")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("base URL must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base URL %q has no host", trimmed)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("base URL %q must not carry a query or fragment", trimmed)
	}
	return strings.TrimRight(trimmed, "/"), nil
}
