package api

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"
)

// parseRoutineConfig normalizes the "config" field of an execute request into
// a map[string]any. It accepts a JSON object directly, or a string that may
// itself be YAML, then JSON, falling back to a raw map with the text under
// "raw" if neither parses — mirroring original_source/main.py's
// try-YAML-then-JSON-then-raw-text chain.
func parseRoutineConfig(raw any) map[string]any {
	switch v := raw.(type) {
	case nil:
		return nil
	case map[string]any:
		return v
	case string:
		txt := strings.TrimSpace(v)
		if txt == "" {
			return nil
		}
		var yamlOut map[string]any
		if err := yaml.Unmarshal([]byte(txt), &yamlOut); err == nil && yamlOut != nil {
			return yamlOut
		}
		var jsonOut map[string]any
		if err := json.Unmarshal([]byte(txt), &jsonOut); err == nil {
			return jsonOut
		}
		return map[string]any{"raw": txt}
	default:
		return nil
	}
}
