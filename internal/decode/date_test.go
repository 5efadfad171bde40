package decode

import "testing"

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"20210401", "2021-04-01", true},
		{"20251231", "2025-12-31", true},
		{"1-Apr-21", "2021-04-01", true},
		{"15-Aug-26", "2026-08-15", true},
		{"15-Aug-2026", "2026-08-15", true},
		{"1-April-21", "2021-04-01", true},
		// The Gateway sometimes scatters separators through the rendering.
		{"1-Ap-r--21", "2021-04-01", true},
		{"15--Au-g--26", "2026-08-15", true},
		// No year: not a date.
		{"4-Aug-", "", false},
		{"4-Aug", "", false},
		// Garbage shapes.
		{"", "", false},
		{"ñ", "", false},
		{"notadate", "", false},
		{"2021", "", false},
		{"1-Xyz-21", "", false},
		{"20211301", "", false}, // month 13
		{"99999999", "", false},
		{"1-2-3-4", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseDate(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseDate(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
