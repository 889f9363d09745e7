package provider

import (
	"encoding/json"
	"regexp"
)

// RedactionMarker replaces recipient addresses in payloads before they are
// logged or persisted.
const RedactionMarker = "REDACTED"

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// ScrubSESMessage removes recipient email addresses embedded in an SES
// bounce or complaint message while leaving structural fields intact.
func ScrubSESMessage(message []byte) ([]byte, error) {
	var decoded map[string]any
	if err := json.Unmarshal(message, &decoded); err != nil {
		return nil, err
	}

	scrubValue(decoded)
	return json.Marshal(decoded)
}

// scrubValue walks the decoded payload and redacts any string that looks
// like an email address. Field names and non-address values are preserved.
func scrubValue(value any) {
	switch v := value.(type) {
	case map[string]any:
		for key, item := range v {
			if s, ok := item.(string); ok {
				if emailPattern.MatchString(s) {
					v[key] = RedactionMarker
				}
				continue
			}
			scrubValue(item)
		}
	case []any:
		for i, item := range v {
			if s, ok := item.(string); ok {
				if emailPattern.MatchString(s) {
					v[i] = RedactionMarker
				}
				continue
			}
			scrubValue(item)
		}
	}
}
