// Package hotkey dispatches global key combinations to actions.
package hotkey

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	gohook "github.com/robotn/gohook"
)

// Binding ties a combination such as "Ctrl+Enter" to an action. An empty
// combination disables the binding.
type Binding struct {
	Name   string
	Combo  string
	Action func()
}

type keyState struct {
	name     string
	rawcodes []uint16
	modifier bool
	pressed  bool
}

type combo struct {
	binding Binding
	keys    []keyState
}

// Listener tracks key state for every binding from one hook stream.
type Listener struct {
	mu     sync.Mutex
	combos []*combo
}

// NewListener parses the bindings. Bindings with an empty combination are
// skipped; an unmappable key is an error.
func NewListener(bindings []Binding) (*Listener, error) {
	l := &Listener{}
	for _, b := range bindings {
		if strings.TrimSpace(b.Combo) == "" {
			log.Printf("hotkey: %s disabled", b.Name)
			continue
		}
		c := &combo{binding: b}
		for _, key := range parseHotkey(b.Combo) {
			rawcodes := keyNameToRawcodes(key)
			if len(rawcodes) == 0 {
				return nil, fmt.Errorf("hotkey %s: cannot map key %q in %q", b.Name, key, b.Combo)
			}
			c.keys = append(c.keys, keyState{name: key, rawcodes: rawcodes, modifier: isModifier(key)})
		}
		if len(c.keys) == 0 {
			return nil, fmt.Errorf("hotkey %s: no keys in %q", b.Name, b.Combo)
		}
		l.combos = append(l.combos, c)
		log.Printf("hotkey: %s bound to %s", b.Name, b.Combo)
	}
	return l, nil
}

// Start runs the hook until ctx is done.
func (l *Listener) Start(ctx context.Context) {
	if len(l.combos) == 0 {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("hotkey: PANIC in hook goroutine: %v", r)
			}
		}()

		evChan := gohook.Start()
		if evChan == nil {
			log.Printf("hotkey: gohook.Start() returned nil channel")
			return
		}
		defer gohook.End()
		log.Printf("hotkey: listening")

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-evChan:
				if !ok {
					log.Printf("hotkey: event channel closed")
					return
				}
				switch ev.Kind {
				case gohook.KeyDown:
					for _, action := range l.keyDown(ev.Rawcode) {
						action()
					}
				case gohook.KeyUp:
					l.keyUp(ev.Rawcode)
				}
			}
		}
	}()
}

// keyDown records the press and returns the actions whose combination is
// now complete. Completed combinations release their non-modifier keys so
// holding Ctrl and tapping a key again fires again.
func (l *Listener) keyDown(rawcode uint16) []func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	var fired []func()
	for _, c := range l.combos {
		matched := false
		for i := range c.keys {
			if c.keys[i].matches(rawcode) {
				c.keys[i].pressed = true
				matched = true
			}
		}
		if !matched || !c.allPressed() {
			continue
		}
		log.Printf("hotkey: %s (%s)", c.binding.Name, c.binding.Combo)
		for i := range c.keys {
			if !c.keys[i].modifier {
				c.keys[i].pressed = false
			}
		}
		if c.binding.Action != nil {
			fired = append(fired, c.binding.Action)
		}
	}
	return fired
}

func (l *Listener) keyUp(rawcode uint16) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.combos {
		for i := range c.keys {
			if c.keys[i].matches(rawcode) {
				c.keys[i].pressed = false
			}
		}
	}
}

func (k keyState) matches(rawcode uint16) bool {
	for _, rc := range k.rawcodes {
		if rc == rawcode {
			return true
		}
	}
	return false
}

func (c *combo) allPressed() bool {
	for _, k := range c.keys {
		if !k.pressed {
			return false
		}
	}
	return true
}

func isModifier(key string) bool {
	switch key {
	case "ctrl", "alt", "shift", "cmd":
		return true
	}
	return false
}

// parseHotkey converts "Ctrl+Alt+q" to normalized key names.
func parseHotkey(hotkeyConfig string) []string {
	var keys []string
	for _, part := range strings.Split(strings.ToLower(hotkeyConfig), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "":
			continue
		case "control":
			keys = append(keys, "ctrl")
		case "win", "cmd", "super", "meta", "commandorcontrol":
			keys = append(keys, "cmd")
		default:
			keys = append(keys, part)
		}
	}
	return keys
}

var specialKeys = map[string][]uint16{
	"ctrl":      {162, 163}, // VK_LCONTROL, VK_RCONTROL
	"alt":       {164, 165}, // VK_LMENU, VK_RMENU
	"shift":     {160, 161}, // VK_LSHIFT, VK_RSHIFT
	"cmd":       {91, 92},   // VK_LWIN, VK_RWIN
	"space":     {32},
	"enter":     {13},
	"return":    {13},
	"esc":       {27},
	"escape":    {27},
	"tab":       {9},
	"backspace": {8},
	"delete":    {46},
	"del":       {46},
	"insert":    {45},
	"ins":       {45},
	"home":      {36},
	"end":       {35},
	"pageup":    {33},
	"pgup":      {33},
	"pagedown":  {34},
	"pgdn":      {34},
	"left":      {37},
	"up":        {38},
	"right":     {39},
	"down":      {40},
}

// keyNameToRawcodes maps a key name to Windows virtual key codes, both
// left and right variants for modifiers.
func keyNameToRawcodes(keyName string) []uint16 {
	keyName = strings.ToLower(strings.TrimSpace(keyName))
	if keyName == "win" || keyName == "super" {
		keyName = "cmd"
	}
	if codes, ok := specialKeys[keyName]; ok {
		return codes
	}
	if len(keyName) == 1 {
		switch c := keyName[0]; {
		case c >= 'a' && c <= 'z':
			return []uint16{uint16(c-'a') + 65} // 0x41-0x5A
		case c >= '0' && c <= '9':
			return []uint16{uint16(c-'0') + 48} // 0x30-0x39
		}
	}
	if strings.HasPrefix(keyName, "f") {
		if n, err := strconv.Atoi(keyName[1:]); err == nil && n >= 1 && n <= 24 {
			return []uint16{uint16(111 + n)} // VK_F1 = 112
		}
	}
	log.Printf("hotkey: unknown key name '%s', cannot map to rawcode", keyName)
	return nil
}
