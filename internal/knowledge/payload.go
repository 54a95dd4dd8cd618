package knowledge

import (
	"encoding/json"
	"strings"
)

// Payload is the canonical shape of an indexed document's metadata.
type Payload struct {
	Name    string         `json:"name"`
	Content string         `json:"content"`
	Meta    map[string]any `json:"meta_data"`
}

var metaFields = []string{"name", "brand", "file_name", "source", "industry", "file_path"}

// NormalizePayload maps the payload shapes found in the index (written by
// different ingest generations) to a Payload:
//
//	name    <- name, brand, file_name, "unknown"
//	content <- content, text, content_preview
//	meta    <- meta_data when it is an object, else built from the known fields
func NormalizePayload(raw map[string]any) Payload {
	p := Payload{
		Name:    firstString(raw, "name", "brand", "file_name"),
		Content: firstString(raw, "content", "text", "content_preview"),
	}
	if p.Name == "" {
		p.Name = "unknown"
	}
	if meta, ok := raw["meta_data"].(map[string]any); ok {
		p.Meta = meta
		return p
	}
	p.Meta = make(map[string]any)
	for _, k := range metaFields {
		if v, ok := raw[k]; ok && v != nil {
			p.Meta[k] = v
		}
	}
	return p
}

// DecodePayload parses a JSON payload column and normalizes it.
func DecodePayload(b []byte) (Payload, error) {
	raw := map[string]any{}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &raw); err != nil {
			return Payload{}, err
		}
	}
	return NormalizePayload(raw), nil
}

func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
