package sources

import (
	"bytes"
	"encoding/json"
)

// parsePayload validates body as JSON. When strict parsing fails it makes one
// more attempt on the body trimmed down to its outermost brackets.
func parsePayload(body []byte) (json.RawMessage, bool) {
	if json.Valid(body) {
		return json.RawMessage(body), true
	}

	trimmed := trimToJSON(body)
	if trimmed == nil || !json.Valid(trimmed) {
		return nil, false
	}
	return json.RawMessage(trimmed), true
}

// trimToJSON drops whitespace, everything before the first '{' or '[' and
// everything after the last '}' or ']'. It never rewrites the content in between.
func trimToJSON(body []byte) []byte {
	b := bytes.TrimSpace(body)

	start := bytes.IndexAny(b, "{[")
	end := bytes.LastIndexAny(b, "}]")
	if start < 0 || end < start {
		return nil
	}
	return b[start : end+1]
}
