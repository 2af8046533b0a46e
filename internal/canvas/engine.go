// internal/canvas/engine.go
//
// Raster undo history for a single freehand drawing session.
// Responsibilities:
//   - Own the live Surface (an RGBA buffer, 600x600 white by default).
//   - Record a full Snapshot after every completed stroke, image insert or clear.
//   - Linear undo: move the cursor back and repaint from the Snapshot.
//   - Serialize the Surface as PNG on demand.
//
// Notes:
//   - History writes are O(strokes): pointer moves paint the Surface only.
//   - Committing after an undo truncates the undone future; there is no redo.
//   - Every exported method holds the engine lock for its whole mutation, so
//     the Surface and History are never observed out of step.

package canvas

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrInvalidMediaKind is returned when an inserted payload is not an image.
var ErrInvalidMediaKind = errors.New("canvas: payload is not an image")

// MaxImagePixels bounds the decoded size of an inserted image. Headers are
// checked before decoding, so a small file declaring huge dimensions is
// rejected without allocating its pixel buffer.
const MaxImagePixels = 4096 * 4096

// Options configures a new Engine. Zero fields take the defaults.
type Options struct {
	Width        int
	Height       int
	Background   color.RGBA
	EraserFactor float64
	// MaxHistory caps the number of Snapshots kept; the oldest are dropped
	// first. Zero takes DefaultMaxHistory.
	MaxHistory int
	Logger     *zerolog.Logger
}

// DefaultMaxHistory bounds History when Options.MaxHistory is unset. A
// 600x600 Snapshot is about 1.4MB.
const DefaultMaxHistory = 50

// DefaultOptions returns a 600x600 white surface with a 3x eraser and 50
// Snapshots of history.
func DefaultOptions() Options {
	return Options{
		Width:        600,
		Height:       600,
		Background:   White,
		EraserFactor: 3,
		MaxHistory:   DefaultMaxHistory,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Width <= 0 {
		o.Width = d.Width
	}
	if o.Height <= 0 {
		o.Height = d.Height
	}
	if o.Background == (color.RGBA{}) {
		o.Background = d.Background
	}
	if o.EraserFactor <= 0 {
		o.EraserFactor = d.EraserFactor
	}
	if o.MaxHistory <= 0 {
		o.MaxHistory = d.MaxHistory
	}
	return o
}

// snapshot is an immutable copy of the Surface's pixel buffer.
type snapshot []byte

// Engine owns one Surface and its History.
type Engine struct {
	mu      sync.Mutex
	opts    Options
	log     zerolog.Logger
	surface *image.RGBA
	history []snapshot
	step    int

	drawing bool
	last    Point
	eraser  bool
}

// New creates an engine whose History is seeded with the blank Surface.
func New(opts Options) *Engine {
	opts = opts.withDefaults()
	lg := zerolog.Nop()
	if opts.Logger != nil {
		lg = opts.Logger.With().Str("component", "canvas").Logger()
	}
	e := &Engine{
		opts:    opts,
		log:     lg,
		surface: image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height)),
	}
	fill(e.surface, opts.Background)
	e.commit()
	return e
}

// Size reports the surface dimensions.
func (e *Engine) Size() (int, int) { return e.opts.Width, e.opts.Height }

// SetEraser toggles erase-mode for subsequent stroke segments.
func (e *Engine) SetEraser(on bool) {
	e.mu.Lock()
	e.eraser = on
	e.mu.Unlock()
}

// BeginStroke starts a freehand path at p. History is not touched.
func (e *Engine) BeginStroke(p Point) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drawing = true
	e.last = p
}

// ExtendStroke paints a segment from the previous point to p. In erase-mode
// the color is forced to the background and the width multiplied by the
// eraser factor. Returns false when no stroke is active.
func (e *Engine) ExtendStroke(p Point, st Style) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.drawing {
		return false
	}
	if e.eraser {
		st.Color = e.opts.Background
		st.Width *= e.opts.EraserFactor
	}
	paintSegment(e.surface, e.last, p, st)
	e.last = p
	return true
}

// EndStroke commits the active stroke to History. It is a no-op (false)
// when no stroke is active, which covers a pointer leaving the surface
// without having been pressed.
func (e *Engine) EndStroke() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.drawing {
		return false
	}
	e.drawing = false
	e.commit()
	return true
}

// InsertImage decodes data, replaces the Surface with the image scaled to
// fit and centered on the background, and commits a Snapshot. A payload that
// is not a decodable image returns ErrInvalidMediaKind and leaves the
// Surface and History untouched.
func (e *Engine) InsertImage(data []byte) error {
	kind := http.DetectContentType(data)
	if !strings.HasPrefix(kind, "image/") {
		return fmt.Errorf("%w: detected %s", ErrInvalidMediaKind, kind)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMediaKind, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return fmt.Errorf("%w: %dx%d exceeds size limit", ErrInvalidMediaKind, cfg.Width, cfg.Height)
	}
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMediaKind, err)
	}
	b := src.Bounds()
	rect, scale := FitRect(e.opts.Width, e.opts.Height, b.Dx(), b.Dy())
	if rect.Empty() {
		return fmt.Errorf("%w: empty image", ErrInvalidMediaKind)
	}

	// Decoding happened above without the lock; the surface mutation and
	// the snapshot commit form a single critical section.
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drawing = false
	fill(e.surface, e.opts.Background)
	drawFitted(e.surface, rect, src, scale)
	e.commit()
	e.log.Debug().Str("format", format).Int("srcW", b.Dx()).Int("srcH", b.Dy()).
		Float64("scale", scale).Msg("image inserted")
	return nil
}

// InsertUpload is InsertImage for a file upload carrying a declared media
// kind; kinds outside image/* are rejected before any decoding.
func (e *Engine) InsertUpload(declaredKind string, data []byte) error {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(declaredKind)), "image/") {
		return fmt.Errorf("%w: declared %q", ErrInvalidMediaKind, declaredKind)
	}
	return e.InsertImage(data)
}

// Undo moves the cursor back one Snapshot and repaints the Surface from it.
// No-op (false) at the first Snapshot.
func (e *Engine) Undo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.step <= 0 {
		return false
	}
	e.drawing = false
	e.step--
	copy(e.surface.Pix, e.history[e.step])
	return true
}

// Clear paints the Surface with the background and commits a Snapshot.
// History is kept, so a clear can be undone.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drawing = false
	fill(e.surface, e.opts.Background)
	e.commit()
}

// ExportImage encodes the current Surface as PNG. It has no side effects.
func (e *Engine) ExportImage() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var buf bytes.Buffer
	if err := png.Encode(&buf, e.surface); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportDataURL returns the PNG export as a data: URL.
func (e *Engine) ExportDataURL() (string, error) {
	b, err := e.ExportImage()
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(b), nil
}

// ExportDigest returns the BLAKE2b-256 hex digest of an exported image.
func ExportDigest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Surface returns a copy of the live Surface.
func (e *Engine) Surface() *image.RGBA {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := image.NewRGBA(e.surface.Rect)
	copy(out.Pix, e.surface.Pix)
	return out
}

// State is one consistent read of the History cursor and tool flags.
type State struct {
	HistoryLen int
	Step       int
	CanUndo    bool
	Drawing    bool
	Eraser     bool
}

// State reads every History field under a single lock.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		HistoryLen: len(e.history),
		Step:       e.step,
		CanUndo:    e.step > 0,
		Drawing:    e.drawing,
		Eraser:     e.eraser,
	}
}

// HistoryLen is the number of Snapshots held.
func (e *Engine) HistoryLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.history)
}

// Step is the cursor into History.
func (e *Engine) Step() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.step
}

// CanUndo reports whether Undo would change the Surface.
func (e *Engine) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.step > 0
}

// commit appends a Snapshot of the Surface after the cursor, discarding any
// undone future. Caller holds e.mu.
func (e *Engine) commit() {
	snap := make(snapshot, len(e.surface.Pix))
	copy(snap, e.surface.Pix)

	if len(e.history) > 0 {
		e.history = e.history[:e.step+1]
	}
	e.history = append(e.history, snap)
	if limit := e.opts.MaxHistory; limit > 0 && len(e.history) > limit {
		e.history = append([]snapshot(nil), e.history[len(e.history)-limit:]...)
	}
	e.step = len(e.history) - 1
	e.log.Debug().Int("step", e.step).Int("len", len(e.history)).Msg("snapshot committed")
}
