package dispatch

import (
	"fmt"

	"calmd/internal/calmerr"
)

// argString reads an optional string argument, defaulting to "".
func argString(args map[string]interface{}, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// requireString reads a required non-empty string argument.
func requireString(args map[string]interface{}, key string) (string, error) {
	s := argString(args, key)
	if s == "" {
		return "", calmerr.New(calmerr.KindValidation, "missing required argument %q", key)
	}
	return s, nil
}

// argInt reads an optional integer argument (JSON numbers decode as
// float64), defaulting to def.
func argInt(args map[string]interface{}, key string, def int) int {
	v, ok := args[key]
	if !ok || v == nil {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}

// argFloat reads an optional float argument, defaulting to def.
func argFloat(args map[string]interface{}, key string, def float64) float64 {
	v, ok := args[key]
	if !ok || v == nil {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return def
	}
}

// argBool reads an optional boolean argument, defaulting to def.
func argBool(args map[string]interface{}, key string, def bool) bool {
	v, ok := args[key]
	if !ok || v == nil {
		return def
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

// argStringSlice reads an optional array-of-string argument.
func argStringSlice(args map[string]interface{}, key string) []string {
	v, ok := args[key]
	if !ok || v == nil {
		return nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// argObject reads an optional nested object argument as a map.
func argObject(args map[string]interface{}, key string) map[string]interface{} {
	v, ok := args[key]
	if !ok || v == nil {
		return nil
	}
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return nil
}
