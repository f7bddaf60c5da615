package logging

import (
	"encoding/json"
	"fmt"
	"strings"
)

const redacted = "[REDACTED]"

// secretHeaderParts mark headers whose values are never logged.
var secretHeaderParts = []string{"password", "secret", "private-key", "privatekey"}

// credentialHeaders are logged with only their last four characters.
var credentialHeaders = map[string]bool{
	"authorization": true,
	"x-admin-token": true,
	"x-api-key":     true,
}

// MaskHeader returns a header value safe to log. Secret headers are fully
// redacted; credential headers keep their auth scheme and last four
// characters ("Bearer ****x9Qk").
func MaskHeader(name, value string) string {
	lower := strings.ToLower(name)
	for _, part := range secretHeaderParts {
		if strings.Contains(lower, part) {
			return redacted
		}
	}
	if !credentialHeaders[lower] {
		return value
	}

	scheme, cred, found := strings.Cut(value, " ")
	if !found {
		return tail(value)
	}
	return scheme + " " + tail(strings.TrimSpace(cred))
}

func tail(s string) string {
	if len(s) < 8 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// MaskJSONBody redacts every scalar JSON field whose key is not in allowlist.
// Objects and arrays are walked so allowlisted keys stay visible at any depth.
// A nil allowlist disables masking. Bodies that are not JSON are returned as is.
func MaskJSONBody(body []byte, allowlist []string) []byte {
	if allowlist == nil || len(body) == 0 {
		return body
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return body
	}

	allowed := make(map[string]struct{}, len(allowlist))
	for _, k := range allowlist {
		allowed[k] = struct{}{}
	}

	out, err := json.Marshal(maskValue(doc, allowed))
	if err != nil {
		return body
	}
	return out
}

func maskValue(v any, allowed map[string]struct{}) any {
	switch v := v.(type) {
	case map[string]any:
		for key, child := range v {
			switch child.(type) {
			case map[string]any, []any:
				v[key] = maskValue(child, allowed)
			default:
				if _, ok := allowed[key]; !ok {
					v[key] = redacted
				}
			}
		}
		return v
	case []any:
		for i := range v {
			v[i] = maskValue(v[i], allowed)
		}
		return v
	default:
		return v
	}
}

// FormatBinaryData describes a non-text body by size.
func FormatBinaryData(data []byte) string {
	return fmt.Sprintf("[binary body: %d bytes]", len(data))
}
