package stream

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
)

const (
	esc = 0x1b
	bel = 0x07

	// maxCSILength bounds a CSI sequence including ESC [ and the final byte
	maxCSILength = 64
	// maxStringLength bounds OSC, DCS, SOS, PM and APC sequences
	maxStringLength = 4096

	maxParam = 65535
)

type status int

const (
	complete status = iota
	incomplete
	malformed
)

var csiFinals = map[byte]ControlKind{
	'A': ControlCursorUp,
	'B': ControlCursorDown,
	'C': ControlCursorForward,
	'D': ControlCursorBack,
	'E': ControlCursorNextLine,
	'F': ControlCursorPrevLine,
	'G': ControlCursorColumn,
	'H': ControlCursorPosition,
	'f': ControlCursorPosition,
	'd': ControlLinePosition,
	'J': ControlEraseDisplay,
	'K': ControlEraseLine,
	'X': ControlEraseChars,
	'@': ControlInsertChars,
	'P': ControlDeleteChars,
	'L': ControlInsertLines,
	'M': ControlDeleteLines,
	'S': ControlScrollUp,
	'T': ControlScrollDown,
	'r': ControlScrollRegion,
	'm': ControlSGR,
	'h': ControlSetMode,
	'l': ControlResetMode,
	's': ControlSaveCursor,
	'u': ControlRestoreCursor,
	'n': ControlDeviceQuery,
	'c': ControlDeviceQuery,
	't': ControlWindowOp,
}

// privateFinals lists the finals accepted after each private marker
var privateFinals = map[byte]string{
	'?': "hln",
	'>': "c",
}

var escFinals = map[byte]ControlKind{
	'7': ControlSaveCursor,
	'8': ControlRestoreCursor,
	'c': ControlReset,
	'M': ControlReverseIndex,
	'D': ControlIndex,
	'E': ControlNextLine,
	'H': ControlTabSet,
	'=': ControlKeypadApp,
	'>': ControlKeypadNum,
}

// Reader is a stateful, deterministic terminal output decoder. It is not safe
// for concurrent use; a session feeds it from one goroutine. Create one with
// NewReader.
type Reader struct {
	attrs   Attributes
	pending []byte
	seq     *ansi.Parser
}

// NewReader creates a Reader in the default state
func NewReader() *Reader {
	p := ansi.NewParser()
	// Sized so no sequence under the length caps can overrun the buffers
	p.SetParamsSize(maxCSILength)
	p.SetDataSize(maxStringLength)
	return &Reader{seq: p}
}

// Attrs returns the SGR attributes that apply to the next text
func (r *Reader) Attrs() Attributes { return r.attrs }

// Pending reports how many bytes are held waiting for the next Feed
func (r *Reader) Pending() int { return len(r.pending) }

// Reset discards held bytes and attributes
func (r *Reader) Reset() {
	r.attrs = Attributes{}
	r.pending = nil
	r.seq.Reset()
}

// Feed decodes p, holding back a trailing partial sequence or rune
func (r *Reader) Feed(p []byte) []Chunk {
	return r.parse(p, false)
}

// Flush releases held bytes as literal text. Call it at end of stream.
func (r *Reader) Flush() []Chunk {
	return r.parse(nil, true)
}

// run accumulates one text chunk over buf[start:end]
type run struct {
	start, end int
	open       bool
	text       strings.Builder
}

func (r *Reader) parse(p []byte, final bool) []Chunk {
	buf := p
	if len(r.pending) > 0 {
		buf = append(r.pending, p...)
		r.pending = nil
	}

	var out []Chunk
	var text run

	extend := func(from, to int, s string) {
		if !text.open {
			text.open = true
			text.start = from
			text.text.Reset()
		}
		text.end = to
		text.text.WriteString(s)
	}
	literal := func(from, to int) {
		extend(from, to, strings.ToValidUTF8(string(buf[from:to]), string(utf8.RuneError)))
	}
	flush := func() {
		if !text.open {
			return
		}
		str := text.text.String()
		out = append(out, Chunk{
			Kind:  KindText,
			Text:  str,
			Attrs: r.attrs,
			Cells: ansi.StringWidth(str),
			Raw:   clone(buf[text.start:text.end]),
		})
		text.open = false
	}
	hold := func(from int) {
		flush()
		r.pending = clone(buf[from:])
	}

	i := 0
	for i < len(buf) {
		b := buf[i]

		switch {
		case b == esc:
			c, n, st := r.escape(buf[i:])
			switch st {
			case incomplete:
				if !final {
					hold(i)
					return out
				}
				literal(i, len(buf))
				i = len(buf)
			case malformed:
				literal(i, i+n)
				i += n
			default:
				flush()
				c.Raw = clone(buf[i : i+n])
				r.apply(c)
				out = append(out, c)
				i += n
			}

		case b == '\n' || b == '\t':
			extend(i, i+1, string(b))
			i++

		case b < 0x20 || b == 0x7f:
			flush()
			out = append(out, c0(b, buf[i:i+1]))
			i++

		case b < utf8.RuneSelf:
			extend(i, i+1, string(b))
			i++

		default:
			if !utf8.FullRune(buf[i:]) {
				if !final {
					hold(i)
					return out
				}
				literal(i, len(buf))
				i = len(buf)
				continue
			}
			rn, size := utf8.DecodeRune(buf[i:])
			extend(i, i+size, string(rn))
			i += size
		}
	}

	flush()
	return out
}

// apply updates reader state for controls that change it
func (r *Reader) apply(c Chunk) {
	switch c.Control {
	case ControlSGR:
		r.attrs = applySGR(r.attrs, c.Params)
	case ControlReset:
		r.attrs = Attributes{}
	}
}

func c0(b byte, raw []byte) Chunk {
	c := Chunk{Kind: KindControl, Raw: clone(raw)}
	switch b {
	case bel:
		c.Control = ControlBell
	case '\b':
		c.Control = ControlBackspace
	case '\r':
		c.Control = ControlCarriageReturn
	default:
		c.Control = ControlC0
		c.Params = []int{int(b)}
	}
	return c
}

// escape decodes the sequence starting at b[0] == ESC. On malformed input n
// is the length of the literal prefix; parsing resumes at b[n].
func (r *Reader) escape(b []byte) (Chunk, int, status) {
	limit := maxCSILength
	if len(b) > 1 && isStringIntroducer(b[1]) {
		limit = maxStringLength
	}
	window := b
	if len(window) > limit {
		window = window[:limit]
	}

	seq, _, n, state := ansi.DecodeSequence(window, ansi.NormalState, r.seq)
	if state != ansi.NormalState || stringCutAtEnd(window, seq, n) {
		if len(window) == limit {
			return Chunk{}, limit, malformed
		}
		return Chunk{}, 0, incomplete
	}
	if n < 2 {
		return Chunk{}, 1, malformed
	}

	switch seq[1] {
	case '[':
		return r.csi(n)
	case ']':
		return r.osc(seq)
	case 'P', 'X', '^', '_':
		return controlString(seq)
	}
	return r.esc(n)
}

// stringCutAtEnd reports whether a string sequence stopped on an ESC that is
// the last byte seen, so the terminator may still arrive
func stringCutAtEnd(window, seq []byte, n int) bool {
	return n == len(window)-1 && window[n] == esc &&
		isStringIntroducer(window[1]) && terminator(seq) == 0
}

func isStringIntroducer(c byte) bool {
	return c == ']' || c == 'P' || c == 'X' || c == '^' || c == '_'
}

// terminator returns the length of the BEL or ESC \ ending seq, or zero
func terminator(seq []byte) int {
	switch {
	case bytes.HasSuffix(seq, []byte{esc, '\\'}):
		return 2
	case bytes.HasSuffix(seq, []byte{bel}):
		return 1
	}
	return 0
}

func (r *Reader) esc(n int) (Chunk, int, status) {
	cmd := ansi.Cmd(r.seq.Command())
	if inter := cmd.Intermediate(); inter != 0 {
		slot := strings.IndexByte("()*+", inter)
		if slot < 0 || n != 3 {
			return Chunk{}, n, malformed
		}
		return control(ControlCharset, []int{slot, int(cmd.Final())}), n, complete
	}
	if kind, ok := escFinals[cmd.Final()]; ok {
		return control(kind, nil), n, complete
	}
	return Chunk{}, n, malformed
}

func (r *Reader) csi(n int) (Chunk, int, status) {
	cmd := ansi.Cmd(r.seq.Command())
	final, private := cmd.Final(), cmd.Prefix()
	// Intermediate bytes make the sequence unsupported
	if final == 0 || cmd.Intermediate() != 0 {
		return Chunk{}, n, malformed
	}
	kind, ok := csiFinals[final]
	if !ok || (private != 0 && !strings.ContainsRune(privateFinals[private], rune(final))) {
		return Chunk{}, n, malformed
	}

	params := r.params()
	if kind == ControlWindowOp && len(params) == 3 && params[0] == 8 {
		kind, params = ControlResize, params[1:]
	}
	ch := control(kind, params)
	ch.Private = private
	return ch, n, complete
}

// osc decodes ESC ] Ps ; Pt terminated by BEL or ESC \
func (r *Reader) osc(seq []byte) (Chunk, int, status) {
	if terminator(seq) == 0 {
		return Chunk{}, len(seq), malformed
	}
	ps, pt, _ := strings.Cut(string(r.seq.Data()), ";")
	if !isDigits(ps) {
		return Chunk{}, len(seq), malformed
	}

	num := clampParam(r.seq.Command())
	kind := ControlOSC
	if num <= 2 {
		kind = ControlTitle
	}
	ch := control(kind, []int{num})
	ch.Text = strings.ToValidUTF8(pt, string(utf8.RuneError))
	return ch, len(seq), complete
}

// controlString decodes DCS, SOS, PM and APC bodies terminated by ESC \
func controlString(seq []byte) (Chunk, int, status) {
	if !bytes.HasSuffix(seq, []byte{esc, '\\'}) {
		return Chunk{}, len(seq), malformed
	}
	ch := control(ControlString, []int{int(seq[1])})
	ch.Text = strings.ToValidUTF8(string(seq[2:len(seq)-2]), string(utf8.RuneError))
	return ch, len(seq), complete
}

// params unpacks the last CSI parameters with empty fields read as zero
func (r *Reader) params() []int {
	var out []int
	r.seq.Params().ForEach(0, func(_, v int, _ bool) {
		out = append(out, clampParam(v))
	})
	return out
}

func clampParam(v int) int {
	if v < 0 || v > maxParam {
		return maxParam
	}
	return v
}

func control(kind ControlKind, params []int) Chunk {
	return Chunk{Kind: KindControl, Control: kind, Params: params}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
