package stream

// ColorMode says how a Color is specified
type ColorMode uint8

const (
	ColorDefault ColorMode = iota
	// ColorIndexed covers the 16 basic and 256 extended palette entries
	ColorIndexed
	ColorRGB
)

// Color is a foreground or background color
type Color struct {
	Mode  ColorMode `json:"mode"`
	Index uint8     `json:"index,omitempty"`
	R     uint8     `json:"r,omitempty"`
	G     uint8     `json:"g,omitempty"`
	B     uint8     `json:"b,omitempty"`
}

// Indexed returns a palette color
func Indexed(i uint8) Color { return Color{Mode: ColorIndexed, Index: i} }

// RGB returns a true color
func RGB(r, g, b uint8) Color { return Color{Mode: ColorRGB, R: r, G: g, B: b} }

// Attributes is the SGR state applied to text. The zero value is the
// terminal default.
type Attributes struct {
	Bold      bool  `json:"bold,omitempty"`
	Faint     bool  `json:"faint,omitempty"`
	Italic    bool  `json:"italic,omitempty"`
	Underline bool  `json:"underline,omitempty"`
	Blink     bool  `json:"blink,omitempty"`
	Inverse   bool  `json:"inverse,omitempty"`
	Hidden    bool  `json:"hidden,omitempty"`
	Strike    bool  `json:"strike,omitempty"`
	Fg        Color `json:"fg"`
	Bg        Color `json:"bg"`
}

// IsDefault reports whether a is the terminal default
func (a Attributes) IsDefault() bool { return a == Attributes{} }

// applySGR returns a updated by one SGR parameter list. Unknown parameters
// are ignored.
func applySGR(a Attributes, params []int) Attributes {
	if len(params) == 0 {
		return Attributes{}
	}

	for i := 0; i < len(params); i++ {
		p := params[i]
		switch {
		case p == 0:
			a = Attributes{}
		case p == 1:
			a.Bold = true
		case p == 2:
			a.Faint = true
		case p == 3:
			a.Italic = true
		case p == 4, p == 21:
			a.Underline = true
		case p == 5, p == 6:
			a.Blink = true
		case p == 7:
			a.Inverse = true
		case p == 8:
			a.Hidden = true
		case p == 9:
			a.Strike = true
		case p == 22:
			a.Bold, a.Faint = false, false
		case p == 23:
			a.Italic = false
		case p == 24:
			a.Underline = false
		case p == 25:
			a.Blink = false
		case p == 27:
			a.Inverse = false
		case p == 28:
			a.Hidden = false
		case p == 29:
			a.Strike = false
		case p >= 30 && p <= 37:
			a.Fg = Indexed(uint8(p - 30))
		case p == 38:
			c, n := extendedColor(params[i+1:])
			if n == 0 {
				return a
			}
			a.Fg = c
			i += n
		case p == 39:
			a.Fg = Color{}
		case p >= 40 && p <= 47:
			a.Bg = Indexed(uint8(p - 40))
		case p == 48:
			c, n := extendedColor(params[i+1:])
			if n == 0 {
				return a
			}
			a.Bg = c
			i += n
		case p == 49:
			a.Bg = Color{}
		case p >= 90 && p <= 97:
			a.Fg = Indexed(uint8(p - 90 + 8))
		case p >= 100 && p <= 107:
			a.Bg = Indexed(uint8(p - 100 + 8))
		}
	}
	return a
}

// extendedColor parses the tail of 38/48: "5;n" or "2;r;g;b". It returns how
// many params it consumed, zero when the form is incomplete or unknown.
func extendedColor(rest []int) (Color, int) {
	if len(rest) == 0 {
		return Color{}, 0
	}
	switch rest[0] {
	case 5:
		if len(rest) < 2 {
			return Color{}, 0
		}
		return Indexed(clampByte(rest[1])), 2
	case 2:
		if len(rest) < 4 {
			return Color{}, 0
		}
		return RGB(clampByte(rest[1]), clampByte(rest[2]), clampByte(rest[3])), 4
	default:
		return Color{}, 0
	}
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
