package stream

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Kind discriminates chunks
type Kind int

const (
	KindText Kind = iota
	KindControl
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindControl:
		return "control"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name in JSON frames
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "text":
		*k = KindText
	case "control":
		*k = KindControl
	default:
		return fmt.Errorf("unknown chunk kind %q", text)
	}
	return nil
}

// ControlKind names a recognized control
type ControlKind string

const (
	ControlBell           ControlKind = "bell"
	ControlBackspace      ControlKind = "backspace"
	ControlCarriageReturn ControlKind = "carriage_return"
	// ControlC0 is any other C0 control byte; Params holds its value
	ControlC0 ControlKind = "c0"

	ControlCursorUp       ControlKind = "cursor_up"
	ControlCursorDown     ControlKind = "cursor_down"
	ControlCursorForward  ControlKind = "cursor_forward"
	ControlCursorBack     ControlKind = "cursor_back"
	ControlCursorNextLine ControlKind = "cursor_next_line"
	ControlCursorPrevLine ControlKind = "cursor_prev_line"
	ControlCursorColumn   ControlKind = "cursor_column"
	ControlCursorPosition ControlKind = "cursor_position"
	ControlLinePosition   ControlKind = "line_position"
	ControlSaveCursor     ControlKind = "save_cursor"
	ControlRestoreCursor  ControlKind = "restore_cursor"

	ControlEraseDisplay ControlKind = "erase_display"
	ControlEraseLine    ControlKind = "erase_line"
	ControlEraseChars   ControlKind = "erase_chars"
	ControlInsertChars  ControlKind = "insert_chars"
	ControlDeleteChars  ControlKind = "delete_chars"
	ControlInsertLines  ControlKind = "insert_lines"
	ControlDeleteLines  ControlKind = "delete_lines"
	ControlScrollUp     ControlKind = "scroll_up"
	ControlScrollDown   ControlKind = "scroll_down"
	ControlScrollRegion ControlKind = "scroll_region"

	ControlSGR         ControlKind = "sgr"
	ControlSetMode     ControlKind = "set_mode"
	ControlResetMode   ControlKind = "reset_mode"
	ControlDeviceQuery ControlKind = "device_query"

	// ControlResize is CSI 8;rows;cols t; Params is [rows, cols]
	ControlResize   ControlKind = "resize"
	ControlWindowOp ControlKind = "window_op"

	// ControlTitle is OSC 0, 1 or 2; Text holds the title
	ControlTitle ControlKind = "title"
	// ControlOSC is any other operating system command; Params[0] is its number
	ControlOSC ControlKind = "osc"
	// ControlString is a DCS, SOS, PM or APC string; Params[0] is the introducer
	ControlString ControlKind = "string"

	ControlIndex        ControlKind = "index"
	ControlReverseIndex ControlKind = "reverse_index"
	ControlNextLine     ControlKind = "next_line"
	ControlTabSet       ControlKind = "tab_set"
	ControlReset        ControlKind = "reset"
	ControlKeypadApp    ControlKind = "keypad_application"
	ControlKeypadNum    ControlKind = "keypad_numeric"
	// ControlCharset designates a character set; Params is [slot, final byte]
	ControlCharset ControlKind = "charset"
)

// Chunk is one unit of display output
type Chunk struct {
	Kind Kind `json:"kind"`

	// Text is the decoded run for text chunks, or the payload of title,
	// OSC and string controls
	Text  string     `json:"text,omitempty"`
	Attrs Attributes `json:"attrs"`
	// Cells is the number of terminal columns a text chunk occupies
	Cells int `json:"cells,omitempty"`

	Control ControlKind `json:"control,omitempty"`
	Params  []int       `json:"params,omitempty"`
	// Private is the CSI private marker (one of < = > ?) or zero
	Private byte `json:"private,omitempty"`

	// Raw is the exact input the chunk was decoded from
	Raw []byte `json:"raw"`
}

// IsText reports whether c is a text chunk
func (c Chunk) IsText() bool { return c.Kind == KindText }

func (c Chunk) String() string {
	if c.Kind == KindText {
		return fmt.Sprintf("text(%q)", c.Text)
	}
	if c.Text != "" {
		return fmt.Sprintf("%s(%v %q)", c.Control, c.Params, c.Text)
	}
	return fmt.Sprintf("%s(%v)", c.Control, c.Params)
}

// Equal compares chunks field by field
func (c Chunk) Equal(o Chunk) bool {
	if c.Kind != o.Kind || c.Text != o.Text || c.Attrs != o.Attrs ||
		c.Control != o.Control || c.Private != o.Private || len(c.Params) != len(o.Params) {
		return false
	}
	for i := range c.Params {
		if c.Params[i] != o.Params[i] {
			return false
		}
	}
	return bytes.Equal(c.Raw, o.Raw)
}

// Clone deep-copies the chunk's slices
func (c Chunk) Clone() Chunk {
	c.Params = append([]int(nil), c.Params...)
	c.Raw = append([]byte(nil), c.Raw...)
	return c
}

// Coalesce merges adjacent text chunks with equal attributes. Two fragmentations
// of the same byte stream coalesce to equal lists.
func Coalesce(chunks []Chunk) []Chunk {
	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if n := len(out); n > 0 && c.Kind == KindText && out[n-1].Kind == KindText && out[n-1].Attrs == c.Attrs {
			last := &out[n-1]
			last.Text += c.Text
			last.Cells += c.Cells
			last.Raw = append(append([]byte(nil), last.Raw...), c.Raw...)
			continue
		}
		out = append(out, c)
	}
	return out
}

// Plain joins the text of every chunk, stripping any escape bytes that reached
// text through malformed-sequence passthrough
func Plain(chunks []Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		if c.Kind == KindText {
			b.WriteString(c.Text)
		}
	}
	return ansi.Strip(b.String())
}

// RawBytes concatenates Raw over chunks
func RawBytes(chunks []Chunk) []byte {
	var b bytes.Buffer
	for _, c := range chunks {
		b.Write(c.Raw)
	}
	return b.Bytes()
}
