package store

import "testing"

func TestValidateSessionPath(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"session_2026-08-30T10-00-00", true},
		{"", false},
		{"../etc", false},
		{"session_../x", false},
		{"output/session_x", false},
		{`session_a\b`, false},
		{"stray", false},
	}
	for _, tc := range cases {
		err := ValidateSessionPath(tc.name)
		if tc.valid && err != nil {
			t.Errorf("ValidateSessionPath(%q) unexpected error: %v", tc.name, err)
		}
		if !tc.valid && err == nil {
			t.Errorf("ValidateSessionPath(%q) expected error", tc.name)
		}
	}
}
