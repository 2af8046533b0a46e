package canvas

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var red = color.RGBA{R: 255, A: 255}

func solidPNG(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fill(img, c)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// assertNear allows for rounding in the resampling kernels.
func assertNear(t *testing.T, want, got color.RGBA) {
	t.Helper()
	near := func(a, b uint8) bool {
		d := int(a) - int(b)
		return d >= -2 && d <= 2
	}
	assert.True(t, near(want.R, got.R) && near(want.G, got.G) && near(want.B, got.B) && near(want.A, got.A),
		"want %v, got %v", want, got)
}

func drawStroke(e *Engine, st Style, pts ...Point) {
	e.BeginStroke(pts[0])
	for _, p := range pts[1:] {
		e.ExtendStroke(p, st)
	}
	e.EndStroke()
}

func TestNewSeedsBlankSnapshot(t *testing.T) {
	e := New(Options{})
	w, h := e.Size()
	assert.Equal(t, 600, w)
	assert.Equal(t, 600, h)
	assert.Equal(t, 1, e.HistoryLen())
	assert.Equal(t, 0, e.Step())
	assert.False(t, e.CanUndo())
	assert.Equal(t, White, e.Surface().RGBAAt(0, 0))
	assert.Equal(t, White, e.Surface().RGBAAt(599, 599))
}

func TestStrokesThenUndoRestoresBlank(t *testing.T) {
	e := New(Options{})
	blank := e.Surface().Pix

	const n = 5
	for i := 0; i < n; i++ {
		y := float64(50 + i*40)
		drawStroke(e, Style{Color: red, Width: 4}, Point{10, y}, Point{200, y}, Point{300, y + 10})
	}
	require.Equal(t, n+1, e.HistoryLen())
	require.Equal(t, n, e.Step())
	assert.Equal(t, red, e.Surface().RGBAAt(100, 50))

	for i := 0; i < n; i++ {
		assert.True(t, e.Undo())
	}
	assert.Equal(t, blank, e.Surface().Pix)
	assert.False(t, e.Undo(), "undo at cursor 0 is a no-op")
	assert.Equal(t, n+1, e.HistoryLen(), "undo never truncates")
}

func TestCommitAfterUndoTruncatesFuture(t *testing.T) {
	e := New(Options{})
	st := Style{Color: red, Width: 3}
	drawStroke(e, st, Point{10, 10}, Point{50, 50})
	drawStroke(e, st, Point{60, 10}, Point{90, 50})
	drawStroke(e, st, Point{110, 10}, Point{150, 50})
	require.Equal(t, 4, e.HistoryLen())

	require.True(t, e.Undo())
	require.True(t, e.Undo())
	drawStroke(e, st, Point{200, 200}, Point{220, 220})

	assert.Equal(t, 3, e.HistoryLen())
	assert.Equal(t, e.HistoryLen(), e.Step()+1)
	// the undone strokes are gone for good
	assert.Equal(t, White, e.Surface().RGBAAt(75, 30))
	assert.Equal(t, red, e.Surface().RGBAAt(30, 30))
}

func TestEndStrokeWithoutBeginIsNoop(t *testing.T) {
	e := New(Options{})
	assert.False(t, e.EndStroke())
	assert.False(t, e.ExtendStroke(Point{5, 5}, DefaultStyle()))
	assert.Equal(t, 1, e.HistoryLen())

	drawStroke(e, DefaultStyle(), Point{1, 1}, Point{20, 20})
	assert.False(t, e.EndStroke(), "second release after a completed stroke")
	assert.Equal(t, 2, e.HistoryLen())
}

func TestPressWithoutMoveCommitsUnchangedSurface(t *testing.T) {
	e := New(Options{})
	before := e.Surface().Pix
	e.BeginStroke(Point{100, 100})
	assert.True(t, e.EndStroke())
	assert.Equal(t, 2, e.HistoryLen())
	assert.Equal(t, before, e.Surface().Pix)
}

func TestSegmentHasRoundCaps(t *testing.T) {
	e := New(Options{})
	drawStroke(e, Style{Color: red, Width: 10}, Point{100, 100}, Point{200, 100})
	img := e.Surface()

	assert.Equal(t, red, img.RGBAAt(150, 103))
	assert.Equal(t, red, img.RGBAAt(96, 100), "cap extends past the start point")
	assert.Equal(t, White, img.RGBAAt(95, 95), "cap is round, not square")
	assert.Equal(t, White, img.RGBAAt(150, 110))
}

func TestEraserUsesBackgroundAndWiderBrush(t *testing.T) {
	e := New(Options{})
	drawStroke(e, Style{Color: red, Width: 20}, Point{50, 100}, Point{250, 100})
	require.Equal(t, red, e.Surface().RGBAAt(150, 95))

	e.SetEraser(true)
	assert.True(t, e.State().Eraser)
	// 4px brush becomes a 12px eraser
	drawStroke(e, Style{Color: red, Width: 4}, Point{150, 60}, Point{150, 140})
	img := e.Surface()
	assert.Equal(t, White, img.RGBAAt(150, 100))
	assert.Equal(t, White, img.RGBAAt(154, 100))
	assert.Equal(t, red, img.RGBAAt(158, 100))
	assert.Equal(t, 3, e.HistoryLen())
}

func TestInsertImageRejectsNonImage(t *testing.T) {
	e := New(Options{})
	drawStroke(e, Style{Color: red, Width: 4}, Point{10, 10}, Point{40, 40})
	before := e.Surface().Pix

	err := e.InsertImage([]byte("%PDF-1.4 definitely not a picture"))
	require.ErrorIs(t, err, ErrInvalidMediaKind)

	// PNG magic with a garbage body
	err = e.InsertImage(append([]byte("\x89PNG\r\n\x1a\n"), 0, 1, 2, 3))
	require.ErrorIs(t, err, ErrInvalidMediaKind)

	assert.Equal(t, 2, e.HistoryLen())
	assert.Equal(t, 1, e.Step())
	assert.Equal(t, before, e.Surface().Pix)
}

func TestInsertUploadChecksDeclaredKind(t *testing.T) {
	e := New(Options{})
	err := e.InsertUpload("text/plain", solidPNG(t, 10, 10, red))
	require.ErrorIs(t, err, ErrInvalidMediaKind)
	assert.Equal(t, 1, e.HistoryLen())

	require.NoError(t, e.InsertUpload("image/png", solidPNG(t, 10, 10, red)))
	assert.Equal(t, 2, e.HistoryLen())
}

// withDeclaredSize rewrites a PNG's IHDR to claim w x h and fixes the CRC.
func withDeclaredSize(t *testing.T, data []byte, w, h uint32) []byte {
	t.Helper()
	out := append([]byte(nil), data...)
	require.Equal(t, "IHDR", string(out[12:16]))
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestInsertImageRejectsOversizedHeader(t *testing.T) {
	e := New(Options{Width: 20, Height: 20})
	huge := withDeclaredSize(t, solidPNG(t, 1, 1, red), 45000, 45000)
	require.Less(t, len(huge), 200)

	err := e.InsertImage(huge)
	require.ErrorIs(t, err, ErrInvalidMediaKind)
	assert.Contains(t, err.Error(), "45000x45000")
	assert.Equal(t, 1, e.HistoryLen())

	err = e.InsertUpload("image/png", withDeclaredSize(t, solidPNG(t, 1, 1, red), 4097, 4096))
	require.ErrorIs(t, err, ErrInvalidMediaKind)
}

func TestFitRect(t *testing.T) {
	tests := []struct {
		name       string
		imgW, imgH int
		want       image.Rectangle
		scale      float64
	}{
		{"wide downscale", 1200, 600, image.Rect(0, 150, 600, 450), 0.5},
		{"tall downscale", 300, 1200, image.Rect(225, 0, 375, 600), 0.5},
		{"small upscale", 100, 50, image.Rect(0, 150, 600, 450), 6},
		{"exact fit", 600, 600, image.Rect(0, 0, 600, 600), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, scale := FitRect(600, 600, tt.imgW, tt.imgH)
			assert.Equal(t, tt.want, got)
			assert.InDelta(t, tt.scale, scale, 1e-9)
		})
	}
}

func TestInsertImageScalesAndCenters(t *testing.T) {
	e := New(Options{})
	drawStroke(e, Style{Color: color.RGBA{B: 255, A: 255}, Width: 8}, Point{10, 10}, Point{590, 10})

	require.NoError(t, e.InsertImage(solidPNG(t, 1200, 600, red)))
	img := e.Surface()

	assert.Equal(t, White, img.RGBAAt(300, 10), "surface cleared before drawing")
	assert.Equal(t, White, img.RGBAAt(300, 140))
	assertNear(t, red, img.RGBAAt(300, 300))
	assertNear(t, red, img.RGBAAt(5, 160))
	assert.Equal(t, White, img.RGBAAt(300, 460))
	assert.Equal(t, 3, e.HistoryLen())

	require.True(t, e.Undo())
	assert.Equal(t, color.RGBA{B: 255, A: 255}, e.Surface().RGBAAt(300, 10))
}

func TestClearCommitsAndCanBeUndone(t *testing.T) {
	e := New(Options{})
	drawStroke(e, Style{Color: red, Width: 6}, Point{100, 100}, Point{120, 100})
	e.Clear()
	assert.Equal(t, 3, e.HistoryLen())
	assert.Equal(t, White, e.Surface().RGBAAt(110, 100))

	require.True(t, e.Undo())
	assert.Equal(t, red, e.Surface().RGBAAt(110, 100))
}

func TestExportImageIsIdempotent(t *testing.T) {
	e := New(Options{Width: 64, Height: 32})
	drawStroke(e, Style{Color: red, Width: 2}, Point{1, 1}, Point{60, 30})

	a, err := e.ExportImage()
	require.NoError(t, err)
	b, err := e.ExportImage()
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, ExportDigest(a), ExportDigest(b))
	assert.Len(t, ExportDigest(a), 64)
	assert.Equal(t, 2, e.HistoryLen())

	decoded, err := png.Decode(bytes.NewReader(a))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 32), decoded.Bounds())

	url, err := e.ExportDataURL()
	require.NoError(t, err)
	assert.Contains(t, url, "data:image/png;base64,")
}

func TestMaxHistoryDropsOldest(t *testing.T) {
	e := New(Options{MaxHistory: 3})
	for i := 0; i < 5; i++ {
		drawStroke(e, DefaultStyle(), Point{float64(i * 10), 0}, Point{float64(i * 10), 50})
	}
	assert.Equal(t, 3, e.HistoryLen())
	assert.Equal(t, 2, e.Step())
	assert.True(t, e.Undo())
	assert.True(t, e.Undo())
	assert.False(t, e.Undo())
}

func TestHistoryBoundedByDefault(t *testing.T) {
	e := New(Options{Width: 8, Height: 8})
	for i := 0; i < DefaultMaxHistory+10; i++ {
		e.BeginStroke(Point{1, 1})
		e.EndStroke()
	}
	assert.Equal(t, DefaultMaxHistory, e.HistoryLen())
	assert.Equal(t, DefaultMaxHistory-1, e.Step())
}

func TestStateReadsTogether(t *testing.T) {
	e := New(Options{Width: 8, Height: 8})
	e.SetEraser(true)
	e.BeginStroke(Point{1, 1})
	assert.Equal(t, State{HistoryLen: 1, Step: 0, Drawing: true, Eraser: true}, e.State())
	e.EndStroke()
	assert.Equal(t, State{HistoryLen: 2, Step: 1, CanUndo: true, Eraser: true}, e.State())
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("#FF8000")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 255, G: 128, A: 255}, c)

	c, err = ParseColor("0f0")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{G: 255, A: 255}, c)
	assert.Equal(t, "#00FF00", FormatColor(c))

	_, err = ParseColor("#12345")
	assert.Error(t, err)
	_, err = ParseColor("#GGGGGG")
	assert.Error(t, err)

	for _, p := range Palette {
		_, err := ParseColor(p)
		assert.NoError(t, err, p)
	}
}

func TestClampWidth(t *testing.T) {
	assert.Equal(t, 1.0, ClampWidth(0))
	assert.Equal(t, 7.0, ClampWidth(7))
	assert.Equal(t, 20.0, ClampWidth(50))
}
