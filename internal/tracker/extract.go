package tracker

import (
	"encoding/json"
	"strconv"
	"strings"
)

// StatusExtractor reads a transaction status from a status API response.
// An empty result means the status could not be determined.
type StatusExtractor func(body []byte, statusCode int) string

// JSONFieldExtractor returns a [StatusExtractor] that reads the field at a
// dot-separated path, e.g. "tx_status" or "result.status".
//
// Non-2xx responses, unparseable bodies and missing fields yield "".
// Strings are lower-cased; booleans and numbers are formatted.
func JSONFieldExtractor(path string) StatusExtractor {
	parts := strings.Split(path, ".")

	return func(body []byte, statusCode int) string {
		if statusCode < 200 || statusCode >= 300 {
			return ""
		}

		var data any
		if err := json.Unmarshal(body, &data); err != nil {
			return ""
		}
		return strings.ToLower(extractJSONPath(data, parts))
	}
}

// extractJSONPath walks a JSON structure using dot notation parts.
func extractJSONPath(data any, parts []string) string {
	current := data

	for _, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current, ok = obj[part]
		if !ok {
			return ""
		}
	}

	switch v := current.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
