package hotkey

import (
	"testing"
)

func TestKeyNameToRawcodes(t *testing.T) {
	tests := []struct {
		keyName  string
		expected []uint16
	}{
		// Modifier keys
		{"ctrl", []uint16{162, 163}},
		{"alt", []uint16{164, 165}},
		{"shift", []uint16{160, 161}},
		{"win", []uint16{91, 92}},
		{"cmd", []uint16{91, 92}},
		{"super", []uint16{91, 92}},

		// Letter keys
		{"q", []uint16{81}},
		{"e", []uint16{69}},
		{"o", []uint16{79}},
		{"t", []uint16{84}},

		// Number keys
		{"0", []uint16{48}},
		{"1", []uint16{49}},
		{"9", []uint16{57}},

		// Function keys
		{"f1", []uint16{112}},
		{"f12", []uint16{123}},
		{"f13", []uint16{124}},
		{"f24", []uint16{135}},

		// Special keys
		{"space", []uint16{32}},
		{"enter", []uint16{13}},
		{"esc", []uint16{27}},

		// Unknown key
		{"unknown", nil},
	}

	for _, tt := range tests {
		t.Run(tt.keyName, func(t *testing.T) {
			result := keyNameToRawcodes(tt.keyName)
			if len(result) != len(tt.expected) {
				t.Errorf("keyNameToRawcodes(%q) returned %d rawcodes, expected %d",
					tt.keyName, len(result), len(tt.expected))
				return
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("keyNameToRawcodes(%q)[%d] = %d, expected %d",
						tt.keyName, i, result[i], tt.expected[i])
				}
			}
		})
	}
}

func TestParseHotkey(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"Ctrl+Alt+Q", []string{"ctrl", "alt", "q"}},
		{"Ctrl+Shift+O", []string{"ctrl", "shift", "o"}},
		{"Ctrl+alt+e", []string{"ctrl", "alt", "e"}},
		{"Alt+F4", []string{"alt", "f4"}},
		{"Ctrl+Shift+F13", []string{"ctrl", "shift", "f13"}},
		{"Alt+F24", []string{"alt", "f24"}},
		{"Ctrl+Shift+T", []string{"ctrl", "shift", "t"}},
		{"Ctrl+Win+E", []string{"ctrl", "cmd", "e"}},
		{"Win+Shift+S", []string{"cmd", "shift", "s"}},
		{"Super+Alt+T", []string{"cmd", "alt", "t"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseHotkey(tt.input)
			if len(result) != len(tt.expected) {
				t.Errorf("parseHotkey(%q) returned %d keys, expected %d",
					tt.input, len(result), len(tt.expected))
				return
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("parseHotkey(%q)[%d] = %q, expected %q",
						tt.input, i, result[i], tt.expected[i])
				}
			}
		})
	}
}

func TestMatcherFiresOnFullCombination(t *testing.T) {
	caught, shown := 0, 0
	m, err := newMatcher([]Binding{
		{Combo: "Ctrl+Shift+P", Action: func() { caught++ }},
		{Combo: "Ctrl+Shift+S", Action: func() { shown++ }},
		{Combo: "", Action: func() { t.Fatal("empty combo must be ignored") }},
	})
	if err != nil {
		t.Fatalf("newMatcher failed: %v", err)
	}

	fire := func(actions []func()) {
		for _, a := range actions {
			a()
		}
	}
	fire(m.press(162)) // left ctrl
	fire(m.press(161)) // right shift
	if caught != 0 || shown != 0 {
		t.Fatal("partial combination must not fire")
	}
	fire(m.press(80))
	if caught != 1 || shown != 0 {
		t.Fatalf("expected catch to fire once, got catch=%d show=%d", caught, shown)
	}

	// states reset after firing; releasing and pressing again fires again
	m.release(80)
	fire(m.press(163))
	fire(m.press(160))
	m.release(160)
	fire(m.press(83))
	if shown != 0 {
		t.Fatal("released shift must not count")
	}
	fire(m.press(160))
	if shown != 1 {
		t.Fatalf("expected show to fire, got %d", shown)
	}
}

func TestMatcherRejectsUnknownKey(t *testing.T) {
	if _, err := newMatcher([]Binding{{Combo: "Ctrl+Bogus"}}); err == nil {
		t.Fatal("expected error for unknown key")
	}
}
