// Package options parses the analysis options mini-language handed over
// by the host at submission time:
//
//	option1=value1,option2=value2,option3=value3
//
// The parsed map is passed to the analysis package at construction.
package options

import (
	"context"
	"log/slog"
	"strings"
)

// Map holds parsed analysis options keyed by option name.
type Map map[string]string

// Get returns the value for key or fallback when the key is absent.
func (m Map) Get(key, fallback string) string {
	if v, ok := m[key]; ok {
		return v
	}
	return fallback
}

// Parse splits raw into a Map. Malformed fields (missing or extra =) are
// logged and dropped, parsing itself never fails. Whitespace around keys
// and values is insignificant. Empty input yields an empty Map.
func Parse(ctx context.Context, raw string) Map {
	m := make(Map)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return m
	}

	for field := range strings.SplitSeq(raw, ",") {
		field = strings.TrimSpace(field)
		key, value, ok := strings.Cut(field, "=")
		if !ok || strings.Contains(value, "=") {
			slog.WarnContext(ctx, "failed parsing option, skipping", "field", field)
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			slog.WarnContext(ctx, "failed parsing option, skipping", "field", field)
			continue
		}
		m[key] = strings.TrimSpace(value)
	}
	return m
}
