package notification

import (
	"strings"
	"testing"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "hello", 10, "hello"},
		{"trimmed", "  hello \n", 10, "hello"},
		{"cut", "abcdefghij", 4, "abcd..."},
		{"runes", "ääääää", 3, "äää..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.in, tt.n); got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}

	long := strings.Repeat("x", maxMessageLen+50)
	if got := truncate(long, maxMessageLen); len(got) != maxMessageLen+3 {
		t.Fatalf("expected %d characters, got %d", maxMessageLen+3, len(got))
	}
}
