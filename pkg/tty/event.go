package tty

import (
	"fmt"
	"strings"
)

// Key identifies a key independently of the character it produces
type Key uint16

// Letter keys, used with ModControl for control combinations such as ^U
const (
	KeyA Key = iota + 'A'
	KeyB
	KeyC
	KeyD
	KeyE
	KeyF
	KeyG
	KeyH
	KeyI
	KeyJ
	KeyK
	KeyL
	KeyM
	KeyN
	KeyO
	KeyP
	KeyQ
	KeyR
	KeyS
	KeyT
	KeyU
	KeyV
	KeyW
	KeyX
	KeyY
	KeyZ
)

// KeyNone is the zero Key
const KeyNone Key = 0

// Non-letter keys
const (
	KeyChar Key = 0x100 + iota // any other key producing a character
	KeyReturn
	KeyBackspace
	KeyTab
	KeyEscape
	KeyDelete
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
)

var keyNames = map[Key]string{
	KeyNone:      "none",
	KeyChar:      "char",
	KeyReturn:    "return",
	KeyBackspace: "backspace",
	KeyTab:       "tab",
	KeyEscape:    "escape",
	KeyDelete:    "delete",
	KeyUp:        "up",
	KeyDown:      "down",
	KeyLeft:      "left",
	KeyRight:     "right",
}

// IsLetter reports whether k is one of KeyA..KeyZ
func (k Key) IsLetter() bool {
	return k >= KeyA && k <= KeyZ
}

// String returns the string representation of Key
func (k Key) String() string {
	if k.IsLetter() {
		return string(rune(k))
	}
	if name, ok := keyNames[k]; ok {
		return name
	}
	return fmt.Sprintf("key(%#x)", uint16(k))
}

// MarshalText encodes the key by name
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a key name produced by MarshalText
func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := ParseKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKey parses a key name such as "U" or "return"
func ParseKey(name string) (Key, error) {
	if len(name) == 1 {
		if k := LetterKey(rune(name[0])); k != KeyNone {
			return k, nil
		}
	}
	lower := strings.ToLower(name)
	for k, n := range keyNames {
		if n == lower {
			return k, nil
		}
	}
	return KeyNone, fmt.Errorf("unknown key: %q", name)
}

// LetterKey returns the letter key for r, or KeyNone if r is not a letter
func LetterKey(r rune) Key {
	switch {
	case r >= 'a' && r <= 'z':
		return KeyA + Key(r-'a')
	case r >= 'A' && r <= 'Z':
		return KeyA + Key(r-'A')
	}
	return KeyNone
}

// Modifier is a bitset describing the state that accompanied a key event
type Modifier uint8

const (
	ModPressed Modifier = 1 << iota
	ModControl
	ModShift
	ModAlt
)

// KeyEvent is a single keyboard event as delivered by a KeySource
type KeyEvent struct {
	Code      Key
	ASCII     byte // printable value, or 0
	Modifiers Modifier
}

// Pressed reports whether the event is a key press rather than a release
func (ev KeyEvent) Pressed() bool {
	return ev.Modifiers&ModPressed != 0
}

// Control reports whether the control modifier was held
func (ev KeyEvent) Control() bool {
	return ev.Modifiers&ModControl != 0
}

// Printable reports whether the event carries a printable ASCII character
func (ev KeyEvent) Printable() bool {
	return ev.ASCII >= 32 && ev.ASCII <= 126
}

func (ev KeyEvent) String() string {
	var b strings.Builder
	if ev.Control() {
		b.WriteString("^")
	}
	b.WriteString(ev.Code.String())
	if ev.Printable() {
		fmt.Fprintf(&b, "(%q)", ev.ASCII)
	}
	if !ev.Pressed() {
		b.WriteString(" released")
	}
	return b.String()
}

// CharEvent returns the press event for a printable character
func CharEvent(ch byte) KeyEvent {
	code := LetterKey(rune(ch))
	if code == KeyNone {
		code = KeyChar
	}
	return KeyEvent{Code: code, ASCII: ch, Modifiers: ModPressed}
}

// ControlEvent returns the press event for control plus a letter key
func ControlEvent(k Key) KeyEvent {
	return KeyEvent{Code: k, Modifiers: ModPressed | ModControl}
}

// SpecialEvent returns the press event for a key that produces no character
func SpecialEvent(k Key) KeyEvent {
	return KeyEvent{Code: k, Modifiers: ModPressed}
}
