// internal/canvas/style.go
//
// Brush styling for the drawing engine.
// Defines:
//   - Point: a position in surface-local coordinates.
//   - Style: stroke color + width (caps and joins are always round).
//   - Palette: the fixed set of crayon colors offered to the user.
//   - ParseColor / ClampWidth helpers used by the tool endpoint.

package canvas

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Brush width bounds, matching the size slider offered to the user.
const (
	MinBrushWidth = 1
	MaxBrushWidth = 20
)

// Point is a position in the drawing surface's local coordinate space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Style describes how a stroke segment is painted.
type Style struct {
	Color color.RGBA
	Width float64
}

// DefaultStyle is a 5px black brush.
func DefaultStyle() Style {
	return Style{Color: color.RGBA{A: 255}, Width: 5}
}

// White is the default background.
var White = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// Palette lists the selectable crayon colors.
var Palette = []string{
	"#000000", "#FFFFFF", "#FF0000", "#00FF00", "#0000FF",
	"#FFFF00", "#FF00FF", "#00FFFF", "#FFA500", "#800080",
	"#FFC0CB", "#A52A2A", "#808080", "#FFD700", "#00CED1",
	"#FF69B4", "#32CD32", "#FF4500", "#9370DB", "#20B2AA",
}

var errBadColor = errors.New("canvas: invalid color")

// ParseColor parses "#RGB" or "#RRGGBB" into an opaque RGBA color.
func ParseColor(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("%w: %q", errBadColor, s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("%w: %q", errBadColor, s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

// FormatColor renders c as "#RRGGBB".
func FormatColor(c color.RGBA) string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// ClampWidth bounds w to [MinBrushWidth, MaxBrushWidth].
func ClampWidth(w float64) float64 {
	if w < MinBrushWidth {
		return MinBrushWidth
	}
	if w > MaxBrushWidth {
		return MaxBrushWidth
	}
	return w
}
