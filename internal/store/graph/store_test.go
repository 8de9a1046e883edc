package graph

import "testing"

func TestSanitizeRelType(t *testing.T) {
	cases := map[string]string{
		"cites":        "CITES",
		"part-of":      "PARTOF",
		"":             "RELATED_TO",
		"!!!":          "RELATED_TO",
		"depends_on_1": "DEPENDS_ON_1",
	}
	for in, want := range cases {
		if got := sanitizeRelType(in); got != want {
			t.Errorf("sanitizeRelType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNodeToMapAndBack(t *testing.T) {
	n := Node{
		ID:              "e1",
		KnowledgeBaseID: "kb1",
		Name:            "Acme Corp",
		Type:            "organization",
		Properties:      map[string]string{"industry": "retail"},
	}
	m := nodeToMap(n)
	if m["id"] != "e1" || m["name"] != "Acme Corp" || m["prop_industry"] != "retail" {
		t.Fatalf("unexpected map: %+v", m)
	}

	back := nodeFromProps(m)
	if back.ID != n.ID || back.Name != n.Name || back.Properties["industry"] != "retail" {
		t.Errorf("round trip mismatch: %+v", back)
	}
}

func TestStrPropMissing(t *testing.T) {
	if s := strProp(map[string]any{}, "name"); s != "" {
		t.Errorf("expected empty string, got %q", s)
	}
}

func TestStrPropNonString(t *testing.T) {
	if s := strProp(map[string]any{"name": 5}, "name"); s != "" {
		t.Errorf("expected empty string for non-string prop, got %q", s)
	}
}

func TestNodeFromPropsIgnoresNonStringPropValues(t *testing.T) {
	n := nodeFromProps(map[string]any{"id": "e1", "prop_count": 5})
	if _, ok := n.Properties["count"]; ok {
		t.Error("expected non-string prop_ value to be skipped")
	}
}
