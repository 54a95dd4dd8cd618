package knowledge

import "testing"

func TestNormalizePayload(t *testing.T) {
	cases := []struct {
		name        string
		raw         map[string]any
		wantName    string
		wantContent string
		wantMetaKey string
	}{
		{"canonical", map[string]any{"name": "n", "content": "c", "meta_data": map[string]any{"x": 1}}, "n", "c", "x"},
		{"brand and text", map[string]any{"brand": "acme", "text": "t", "industry": "saas"}, "acme", "t", "industry"},
		{"file name preview", map[string]any{"file_name": "rules.pdf", "content_preview": "p"}, "rules.pdf", "p", "file_name"},
		{"empty", map[string]any{}, "unknown", "", ""},
		{"meta not object", map[string]any{"name": "n", "meta_data": "oops", "source": "s"}, "n", "", "source"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NormalizePayload(tc.raw)
			if p.Name != tc.wantName || p.Content != tc.wantContent {
				t.Fatalf("got %+v", p)
			}
			if tc.wantMetaKey != "" {
				if _, ok := p.Meta[tc.wantMetaKey]; !ok {
					t.Fatalf("meta missing %q: %v", tc.wantMetaKey, p.Meta)
				}
			}
		})
	}
	if _, err := DecodePayload([]byte("{bad")); err == nil {
		t.Fatal("expected decode error")
	}
}
