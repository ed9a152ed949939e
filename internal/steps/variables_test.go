package steps

import (
	"strings"
	"testing"
)

func TestVariables_SetAndGet(t *testing.T) {
	v := NewVariables()

	v.Set("plant", "Rose")

	val, ok := v.Get("plant")
	if !ok || val != "Rose" {
		t.Errorf("expected 'Rose', got '%s'", val)
	}

	if _, ok := v.Get("nonexistent"); ok {
		t.Error("expected nonexistent key to return false")
	}
}

func TestVariables_Replace(t *testing.T) {
	v := NewVariables()
	v.Set("plant", "Rose")
	v.Set("id", "42")

	tests := []struct {
		input    string
		expected string
	}{
		{"{{plant}}", "Rose"},
		{"/api/plants/{{id}}", "/api/plants/42"},
		{"{{plant}} #{{id}}", "Rose #42"},
		{"no placeholders", "no placeholders"},
		{"{{unknown}} stays", "{{unknown}} stays"},
		{"{{random:0}} stays", "{{random:0}} stays"},
		{"{{sequence:}} stays", "{{sequence:}} stays"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := v.Replace(tt.input); got != tt.expected {
				t.Errorf("Replace(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestVariables_Random(t *testing.T) {
	v := NewVariables()

	got := v.Replace("R{{random:8}}")
	if len(got) != 9 || !strings.HasPrefix(got, "R") {
		t.Fatalf("unexpected value %q", got)
	}

	digits := v.Replace("{{random:6:numeric}}")
	if len(digits) != 6 {
		t.Fatalf("expected 6 digits, got %q", digits)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			t.Errorf("non-digit %q in %q", r, digits)
		}
	}
}

func TestVariables_SameTextSameValue(t *testing.T) {
	v := NewVariables()

	first := v.Replace("Rose{{random:5}}")
	second := v.Replace("Rose{{random:5}}")
	if first != second {
		t.Errorf("expected the same expansion, got %q and %q", first, second)
	}
}

func TestVariables_Sequence(t *testing.T) {
	v := NewVariables()

	if got := v.Replace("{{sequence:order}}"); got != "1" {
		t.Errorf("first sequence = %q, want 1", got)
	}
	if got := v.Replace("#{{sequence:order}}"); got != "#2" {
		t.Errorf("second sequence = %q, want #2", got)
	}
	if got := v.Replace("{{sequence:other}}"); got != "1" {
		t.Errorf("other sequence = %q, want 1", got)
	}
}

func TestVariables_UUIDAndTimestamp(t *testing.T) {
	v := NewVariables()

	if got := v.Replace("{{uuid}}"); len(got) != 36 {
		t.Errorf("uuid = %q", got)
	}
	if got := v.Replace("{{timestamp:unix}}"); got == "{{timestamp:unix}}" || got == "" {
		t.Errorf("timestamp:unix not expanded: %q", got)
	}
	if got := v.Replace("{{timestamp}}"); !strings.Contains(got, "T") {
		t.Errorf("timestamp = %q, want RFC 3339", got)
	}
}
