package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// schemaTag is mixed into every fingerprint so that a change to the
// normalization rules below invalidates old entries by miss rather than by
// silently mismatched content (SPEC_FULL.md §9: normalization is a
// contract).
const schemaTag = "claw-router-cache-v1"

const (
	fieldSep   = "\x1F" // separates role from content within a message
	recordSep  = "\x1E" // terminates each encoded message
)

// Message is the cache's view of a chat message.
type Message struct {
	Role    string
	Content string
}

// OutputParams holds the output-affecting request parameters the
// fingerprint must cover. Fields left unset (nil) are omitted entirely
// rather than encoded as null/zero, per SPEC_FULL.md §4.4.
type OutputParams struct {
	Temperature    *float64       `json:"temperature,omitempty"`
	TopP           *float64       `json:"top_p,omitempty"`
	MaxTokens      *int           `json:"max_tokens,omitempty"`
	Stop           []string       `json:"stop,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
	Tools          []map[string]any `json:"tools,omitempty"`
	ToolChoice     any            `json:"tool_choice,omitempty"`
}

// Fingerprint computes the SHA-256 fingerprint over the schema tag, target
// model, ordered messages, and canonical output-affecting params.
func Fingerprint(targetModel string, messages []Message, params OutputParams) string {
	h := sha256.New()
	h.Write([]byte(schemaTag))
	h.Write([]byte(fieldSep))
	h.Write([]byte(targetModel))
	h.Write([]byte(fieldSep))

	for _, m := range messages {
		h.Write([]byte(m.Role))
		h.Write([]byte(fieldSep))
		h.Write([]byte(m.Content))
		h.Write([]byte(recordSep))
	}

	h.Write([]byte(canonicalJSON(params)))

	return hex.EncodeToString(h.Sum(nil))
}

// canonicalJSON marshals v with object keys sorted, giving a stable byte
// sequence regardless of struct field order or map iteration order.
func canonicalJSON(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return raw
	}
	return marshalSorted(generic)
}

func marshalSorted(v any) []byte {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := []byte("{")
		for i, k := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			kb, _ := json.Marshal(k)
			out = append(out, kb...)
			out = append(out, ':')
			out = append(out, marshalSorted(val[k])...)
		}
		out = append(out, '}')
		return out
	case []any:
		out := []byte("[")
		for i, item := range val {
			if i > 0 {
				out = append(out, ',')
			}
			out = append(out, marshalSorted(item)...)
		}
		out = append(out, ']')
		return out
	default:
		b, _ := json.Marshal(val)
		return b
	}
}
