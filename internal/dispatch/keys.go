package dispatch

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrUnknownKey is returned for key names with no byte translation
var ErrUnknownKey = errors.New("unknown key")

var namedKeys = map[string]string{
	"enter":     "\r",
	"return":    "\r",
	"tab":       "\t",
	"backtab":   "\x1b[Z",
	"escape":    "\x1b",
	"esc":       "\x1b",
	"backspace": "\x7f",
	"space":     " ",
	"up":        "\x1b[A",
	"down":      "\x1b[B",
	"right":     "\x1b[C",
	"left":      "\x1b[D",
	"home":      "\x1b[H",
	"end":       "\x1b[F",
	"insert":    "\x1b[2~",
	"delete":    "\x1b[3~",
	"pageup":    "\x1b[5~",
	"pagedown":  "\x1b[6~",
	"f1":        "\x1bOP",
	"f2":        "\x1bOQ",
	"f3":        "\x1bOR",
	"f4":        "\x1bOS",
	"f5":        "\x1b[15~",
	"f6":        "\x1b[17~",
	"f7":        "\x1b[18~",
	"f8":        "\x1b[19~",
	"f9":        "\x1b[20~",
	"f10":       "\x1b[21~",
	"f11":       "\x1b[23~",
	"f12":       "\x1b[24~",
}

// KeyBytes translates a key name into the bytes a terminal sends for it.
// Names are case-insensitive. "C-x" and "Ctrl+x" are control chords, "M-x"
// prefixes x with ESC and a single character stands for itself.
func KeyBytes(name string) ([]byte, error) {
	trimmed := strings.TrimSpace(name)
	key := strings.ToLower(trimmed)
	if seq, ok := namedKeys[key]; ok {
		return []byte(seq), nil
	}

	if rest, ok := cutAny(key, "c-", "ctrl-", "ctrl+"); ok {
		if b, ok := controlByte(rest); ok {
			return []byte{b}, nil
		}
	}
	if rest, ok := cutAny(key, "m-", "alt-", "alt+"); ok && rest != "" {
		inner, err := KeyBytes(trimmed[len(trimmed)-len(rest):])
		if err != nil {
			return nil, err
		}
		return append([]byte{0x1b}, inner...), nil
	}
	if utf8.RuneCountInString(trimmed) == 1 {
		return []byte(trimmed), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownKey, name)
}

func cutAny(s string, prefixes ...string) (string, bool) {
	for _, p := range prefixes {
		if rest, ok := strings.CutPrefix(s, p); ok {
			return rest, true
		}
	}
	return s, false
}

// controlByte maps the letter of a control chord to its C0 code
func controlByte(s string) (byte, bool) {
	if len(s) != 1 {
		return 0, false
	}
	c := s[0]
	switch {
	case c >= 'a' && c <= 'z':
		return c - 'a' + 1, true
	case c == '@' || c == ' ' || c == '2':
		return 0x00, true
	case c == '[':
		return 0x1b, true
	case c == '\\':
		return 0x1c, true
	case c == ']':
		return 0x1d, true
	case c == '^':
		return 0x1e, true
	case c == '_' || c == '/':
		return 0x1f, true
	case c == '?':
		return 0x7f, true
	}
	return 0, false
}
