package ident

import (
	"strings"
	"testing"
)

func TestNewLengthAndAlphabet(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := New()
		if len(id) != 24 {
			t.Fatalf("New() length = %d, want 24 (%q)", len(id), id)
		}
		for _, c := range id {
			if !strings.ContainsRune(base62Alphabet, c) {
				t.Fatalf("New() produced non-base62 character %q in %q", c, id)
			}
		}
	}
}

func TestNewUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 10000; i++ {
		id := New()
		if seen[id] {
			t.Fatalf("duplicate id generated: %q", id)
		}
		seen[id] = true
	}
}

func TestEncodeTimestampSortable(t *testing.T) {
	tests := []struct {
		name    string
		earlier int64
		later   int64
	}{
		{"adjacent seconds", 1700000000, 1700000001},
		{"minutes apart", 1700000000, 1700000060},
		{"years apart", 1600000000, 1700000000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := encodeTimestamp(tt.earlier)
			b := encodeTimestamp(tt.later)
			if !(a < b) {
				t.Errorf("encodeTimestamp(%d) = %q not < encodeTimestamp(%d) = %q",
					tt.earlier, a, tt.later, b)
			}
		})
	}
}
