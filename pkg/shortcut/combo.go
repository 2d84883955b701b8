package shortcut

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrEmptyCombo = errors.New("key combination is empty")
	ErrNilAction  = errors.New("shortcut action is nil")
)

// Key names one physical key, lower case ("alt", "c", "f5")
type Key string

// Modifier aliases collapse left/right and platform names onto one key
var aliases = map[string]Key{
	"lalt":     "alt",
	"ralt":     "alt",
	"option":   "alt",
	"lctrl":    "ctrl",
	"rctrl":    "ctrl",
	"control":  "ctrl",
	"lshift":   "shift",
	"rshift":   "shift",
	"cmd":      "meta",
	"command":  "meta",
	"super":    "meta",
	"win":      "meta",
	"lmeta":    "meta",
	"rmeta":    "meta",
	"return":   "enter",
	"esc":      "escape",
	"spacebar": "space",
}

// NormalizeKey lower-cases name and resolves aliases
func NormalizeKey(name string) Key {
	k := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := aliases[k]; ok {
		return alias
	}
	return Key(k)
}

// Combo is a set of keys held down together. Two combos built from the
// same keys in any order, with or without repeats, are equal under ==, so a
// Combo can key a map.
type Combo struct {
	id string
}

// NewCombo canonicalizes keys: normalized, deduplicated and sorted
func NewCombo(keys ...Key) Combo {
	seen := make(map[Key]bool, len(keys))
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		k = NormalizeKey(string(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		names = append(names, string(k))
	}
	sort.Strings(names)
	return Combo{id: strings.Join(names, "+")}
}

// ParseCombo reads a textual combination such as "alt+c" or "Ctrl + Shift + V"
func ParseCombo(s string) (Combo, error) {
	if strings.TrimSpace(s) == "" {
		return Combo{}, ErrEmptyCombo
	}

	parts := strings.Split(s, "+")
	keys := make([]Key, 0, len(parts))
	for _, p := range parts {
		k := NormalizeKey(p)
		if k == "" {
			return Combo{}, fmt.Errorf("parsing %q: empty key", s)
		}
		if strings.ContainsAny(string(k), " \t") {
			return Combo{}, fmt.Errorf("parsing %q: invalid key %q", s, k)
		}
		keys = append(keys, k)
	}
	return NewCombo(keys...), nil
}

// Keys returns the combo's keys in canonical order
func (c Combo) Keys() []Key {
	if c.id == "" {
		return nil
	}
	parts := strings.Split(c.id, "+")
	keys := make([]Key, len(parts))
	for i, p := range parts {
		keys[i] = Key(p)
	}
	return keys
}

func (c Combo) Equal(other Combo) bool {
	return c.id == other.id
}

func (c Combo) IsEmpty() bool {
	return c.id == ""
}

func (c Combo) String() string {
	return c.id
}
