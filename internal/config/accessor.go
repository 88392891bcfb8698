package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// PathValue is a single flattened config entry.
type PathValue struct {
	Path  string
	Value any
}

// GetByPath retrieves a config value by dot-notation path (e.g. "backend.answerModel").
func GetByPath(cfg *Config, path string) (any, error) {
	m, err := toMap(cfg)
	if err != nil {
		return nil, err
	}

	var current any = m
	for _, key := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]any:
			val, ok := v[key]
			if !ok {
				return nil, fmt.Errorf("key not found: %s", path)
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("invalid array index: %s", key)
			}
			current = v[idx]
		default:
			return nil, fmt.Errorf("cannot traverse into %T at %s", current, key)
		}
	}
	return current, nil
}

// SetByPath sets a config value by dot-notation path. Only existing keys can
// be set, and the resulting config must pass Validate; cfg is left untouched
// on error.
func SetByPath(cfg *Config, path string, value any) error {
	m, err := toMap(cfg)
	if err != nil {
		return err
	}

	parts := strings.Split(path, ".")
	parent := m
	for _, key := range parts[:len(parts)-1] {
		child, ok := parent[key].(map[string]any)
		if !ok {
			return fmt.Errorf("key not found: %s", path)
		}
		parent = child
	}

	last := parts[len(parts)-1]
	existing, ok := parent[last]
	if !ok && !isOptionalKey(path) {
		return fmt.Errorf("key not found: %s", path)
	}
	if _, isString := existing.(string); isString {
		parent[last] = value
	} else {
		parent[last] = parseValue(value)
	}

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	updated := *cfg
	if err := json.Unmarshal(data, &updated); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	if err := Validate(&updated); err != nil {
		return err
	}
	*cfg = updated
	return nil
}

// optional keys are omitted from JSON when empty, so they may be absent from the map.
var optionalKeys = map[string]bool{
	"general.logFile":        true,
	"backend.apiKey":         true,
	"backend.thinkingBudget": true,
	"browser.selectorsFile":  true,
	"context.maxTokens":      true,
	"render.fontFamily":      true,
	"render.extraArgs":       true,
}

func isOptionalKey(path string) bool { return optionalKeys[path] }

// parseValue converts CLI string values to bool/int/float where they parse.
func parseValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return b
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Sanitize returns a copy of the config with the backend credential masked.
func Sanitize(cfg *Config) *Config {
	copy := *cfg
	copy.Render.ExtraArgs = append([]string(nil), cfg.Render.ExtraArgs...)
	if copy.Backend.APIKey != "" {
		copy.Backend.APIKey = maskString(copy.Backend.APIKey)
	}
	return &copy
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths returns every settable config path with its current value, sorted by path.
func ListPaths(cfg *Config) []PathValue {
	m, err := toMap(cfg)
	if err != nil {
		return nil
	}
	var out []PathValue
	flattenMap("", m, &out)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func flattenMap(prefix string, m map[string]any, out *[]PathValue) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			flattenMap(path, child, out)
			continue
		}
		*out = append(*out, PathValue{Path: path, Value: v})
	}
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
