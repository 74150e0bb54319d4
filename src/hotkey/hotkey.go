package hotkey

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"game-overlay/src/hookevents"

	gohook "github.com/robotn/gohook"
)

const eventBuffer = 256

// Binding ties a key combination such as "Ctrl+Shift+P" to an action.
type Binding struct {
	Combo  string
	Action func()
}

type keyState struct {
	name     string
	rawcodes []uint16
	pressed  bool
}

type combo struct {
	text   string
	keys   []keyState
	action func()
}

// matcher tracks pressed keys for every configured combination.
type matcher struct {
	mu     sync.Mutex
	combos []*combo
}

func newMatcher(bindings []Binding) (*matcher, error) {
	m := &matcher{}
	for _, b := range bindings {
		if strings.TrimSpace(b.Combo) == "" {
			continue
		}
		c := &combo{text: b.Combo, action: b.Action}
		for _, name := range parseHotkey(b.Combo) {
			rawcodes := keyNameToRawcodes(name)
			if len(rawcodes) == 0 {
				return nil, fmt.Errorf("hotkey %q: unknown key %q", b.Combo, name)
			}
			c.keys = append(c.keys, keyState{name: name, rawcodes: rawcodes})
		}
		m.combos = append(m.combos, c)
	}
	return m, nil
}

// press records a key down and returns the actions of completed combinations.
func (m *matcher) press(rawcode uint16) []func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	var fire []func()
	for _, c := range m.combos {
		all := true
		for i := range c.keys {
			if hasRawcode(c.keys[i].rawcodes, rawcode) {
				c.keys[i].pressed = true
			}
			all = all && c.keys[i].pressed
		}
		if all {
			log.Printf("Hotkey %s activated", c.text)
			for i := range c.keys {
				c.keys[i].pressed = false
			}
			if c.action != nil {
				fire = append(fire, c.action)
			}
		}
	}
	return fire
}

func (m *matcher) release(rawcode uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.combos {
		for i := range c.keys {
			if hasRawcode(c.keys[i].rawcodes, rawcode) {
				c.keys[i].pressed = false
			}
		}
	}
}

func hasRawcode(codes []uint16, rawcode uint16) bool {
	for _, c := range codes {
		if c == rawcode {
			return true
		}
	}
	return false
}

// Listen subscribes to the shared hook event stream and serves every
// binding. Actions run on the listener goroutine and must not block. The
// returned function stops it.
func Listen(bindings []Binding) (func(), error) {
	m, err := newMatcher(bindings)
	if err != nil {
		return nil, err
	}
	if len(m.combos) == 0 {
		return func() {}, nil
	}

	evChan, cancel, err := hookevents.Subscribe(eventBuffer)
	if err != nil {
		return nil, fmt.Errorf("hotkey: %w", err)
	}
	for _, c := range m.combos {
		log.Printf("Hotkey listener configured for: %s", c.text)
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC in hotkey goroutine: %v", r)
			}
		}()
		for ev := range evChan {
			switch ev.Kind {
			case gohook.KeyDown:
				for _, action := range m.press(ev.Rawcode) {
					action()
				}
			case gohook.KeyUp:
				m.release(ev.Rawcode)
			}
		}
		log.Printf("Hotkey event channel closed")
	}()

	return cancel, nil
}

// parseHotkey converts a hotkey string like "Ctrl+Alt+q" to normalized key names
func parseHotkey(hotkeyConfig string) []string {
	var keys []string
	for _, part := range strings.Split(strings.ToLower(hotkeyConfig), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "win", "cmd", "super":
			keys = append(keys, "cmd")
		default:
			keys = append(keys, part)
		}
	}
	return keys
}

var specialKeys = map[string]uint16{
	"space": 32, "enter": 13, "return": 13, "esc": 27, "escape": 27,
	"tab": 9, "backspace": 8, "delete": 46, "del": 46, "insert": 45, "ins": 45,
	"home": 36, "end": 35, "pageup": 33, "pgup": 33, "pagedown": 34, "pgdn": 34,
	"left": 37, "up": 38, "right": 39, "down": 40,
}

// keyNameToRawcodes maps a key name to its Windows virtual key codes.
// Modifiers map to both their left and right variants.
func keyNameToRawcodes(keyName string) []uint16 {
	keyName = strings.ToLower(strings.TrimSpace(keyName))

	switch keyName {
	case "ctrl":
		return []uint16{162, 163} // VK_LCONTROL, VK_RCONTROL
	case "alt":
		return []uint16{164, 165} // VK_LMENU, VK_RMENU
	case "shift":
		return []uint16{160, 161} // VK_LSHIFT, VK_RSHIFT
	case "win", "cmd", "super":
		return []uint16{91, 92} // VK_LWIN, VK_RWIN
	}

	if len(keyName) == 1 {
		switch c := keyName[0]; {
		case c >= 'a' && c <= 'z':
			return []uint16{uint16(c-'a') + 65}
		case c >= '0' && c <= '9':
			return []uint16{uint16(c-'0') + 48}
		}
	}
	if strings.HasPrefix(keyName, "f") {
		if n, err := strconv.Atoi(keyName[1:]); err == nil && n >= 1 && n <= 24 {
			return []uint16{uint16(111 + n)} // VK_F1 is 112
		}
	}
	if code, ok := specialKeys[keyName]; ok {
		return []uint16{code}
	}

	log.Printf("WARNING: Unknown key name '%s', cannot map to rawcode", keyName)
	return nil
}
