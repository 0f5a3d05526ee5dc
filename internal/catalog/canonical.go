package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Defaults mirror the payloads the harness has always sent.
const (
	DefaultKey          = "test_key"
	DefaultCreateRecord = `{"test_key":"test_value"}`
	DefaultUpdateRecord = `{"new_test_key":"new_test_value"}`
	DefaultListSkip     = 5
	DefaultListLimit    = 100
)

// Options configure the canonical CRUD + list catalog.
type Options struct {
	BaseURL      string
	Key          string // record key used by create-named, read, update and delete
	Collection   string // optional collection segment for create; empty targets "/"
	CreateRecord string // JSON object sent by create and create-named
	UpdateRecord string // JSON object sent by update; must differ from CreateRecord
	ListSkip     int
	ListLimit    int
	Headers      http.Header // extra headers applied to every operation
}

// Canonical builds the six-operation catalog in its fixed order:
// create, create-named, read, update, delete, list.
//
// create-named precedes the key-based operations in dispatch order only. With
// concurrent dispatch, read/update/delete may still reach the target before the
// key exists.
func Canonical(opts Options) (*Catalog, error) {
	key := opts.Key
	if key == "" {
		key = DefaultKey
	}
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("key must not be blank")
	}

	createRaw := opts.CreateRecord
	if strings.TrimSpace(createRaw) == "" {
		createRaw = DefaultCreateRecord
	}
	updateRaw := opts.UpdateRecord
	if strings.TrimSpace(updateRaw) == "" {
		updateRaw = DefaultUpdateRecord
	}

	createBody, err := encodeRecord(createRaw)
	if err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	updateBody, err := encodeRecord(updateRaw)
	if err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}
	if bytes.Equal(createBody, updateBody) {
		return nil, errors.New("update record must differ from create record")
	}

	if opts.ListSkip < 0 {
		return nil, fmt.Errorf("list skip must be >= 0, got %d", opts.ListSkip)
	}
	if opts.ListLimit < 0 {
		return nil, fmt.Errorf("list limit must be >= 0, got %d", opts.ListLimit)
	}

	keyPath := "/" + url.PathEscape(key)
	jsonHeaders := withJSON(opts.Headers)
	plainHeaders := opts.Headers.Clone()

	ops := []Operation{
		{Name: OpCreate, Method: http.MethodPut, Path: collectionPath(opts.Collection), Body: createBody, Headers: jsonHeaders},
		{Name: OpCreateNamed, Method: http.MethodPut, Path: keyPath, Body: createBody, Headers: jsonHeaders},
		{Name: OpRead, Method: http.MethodGet, Path: keyPath, Headers: plainHeaders},
		{Name: OpUpdate, Method: http.MethodPatch, Path: keyPath, Body: updateBody, Headers: jsonHeaders},
		{Name: OpDelete, Method: http.MethodDelete, Path: keyPath, Headers: plainHeaders},
		{Name: OpList, Method: http.MethodGet, Path: listPath(opts.ListSkip, opts.ListLimit), Headers: plainHeaders},
	}
	return New(opts.BaseURL, ops...)
}

func encodeRecord(raw string) ([]byte, error) {
	if !gjson.Valid(raw) {
		return nil, errors.New("not valid JSON")
	}
	if !gjson.Parse(raw).IsObject() {
		return nil, errors.New("must be a JSON object")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func collectionPath(collection string) string {
	trimmed := strings.Trim(strings.TrimSpace(collection), "/")
	if trimmed == "" {
		return "/"
	}
	segments := strings.Split(trimmed, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return "/" + strings.Join(segments, "/") + "/"
}

func listPath(skip, limit int) string {
	return "/list/?skip=" + strconv.Itoa(skip) + "&limit=" + strconv.Itoa(limit)
}

func withJSON(headers http.Header) http.Header {
	h := headers.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/json")
	return h
}
