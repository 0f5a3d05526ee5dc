package config

import (
	"fmt"
	"strings"
	"time"
)

// section reads typed values out of one decoded config-file map. Keys are
// given in snake_case and also match their hyphenated and joined spellings,
// so "list_skip", "list-skip" and "listskip" are the same setting. The first
// conversion failure is kept and every later read becomes a no-op.
type section struct {
	entries map[string]interface{}
	err     error
}

func newSection(value interface{}) (*section, error) {
	if value == nil {
		return &section{}, nil
	}
	entries, err := toStringKeyMap(value)
	if err != nil {
		return nil, err
	}
	return &section{entries: entries}, nil
}

func (s *section) lookup(name string, aliases ...string) (interface{}, bool) {
	if s.err != nil || len(s.entries) == 0 {
		return nil, false
	}
	for _, key := range append([]string{name}, aliases...) {
		if raw, ok := lookupSetting(s.entries, key, strings.ReplaceAll(key, "_", "-"), strings.ReplaceAll(key, "_", "")); ok {
			return raw, true
		}
	}
	return nil, false
}

// with hands the raw value of name to fn and records fn's error under name.
func (s *section) with(name string, fn func(raw interface{}) error, aliases ...string) {
	raw, ok := s.lookup(name, aliases...)
	if !ok {
		return
	}
	if err := fn(raw); err != nil {
		s.err = fmt.Errorf("%s: %w", name, err)
	}
}

func (s *section) text(dst *string, name string, aliases ...string) {
	s.with(name, func(raw interface{}) error {
		v, err := asString(raw)
		*dst = strings.TrimSpace(v)
		return err
	}, aliases...)
}

// lower is text folded to lower case, for enumerated settings.
func (s *section) lower(dst *string, name string, aliases ...string) {
	s.text(dst, name, aliases...)
	*dst = strings.ToLower(*dst)
}

func (s *section) integer(dst *int, name string) {
	s.with(name, func(raw interface{}) (err error) {
		*dst, err = asInt(raw)
		return err
	})
}

func (s *section) number(dst *float64, name string) {
	s.with(name, func(raw interface{}) (err error) {
		*dst, err = asFloat64(raw)
		return err
	})
}

func (s *section) boolean(dst *bool, name string) {
	s.with(name, func(raw interface{}) (err error) {
		*dst, err = asBool(raw)
		return err
	})
}

func (s *section) duration(dst *time.Duration, name string) {
	s.with(name, func(raw interface{}) (err error) {
		*dst, err = asDuration(raw)
		return err
	})
}
