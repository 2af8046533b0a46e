// internal/httpserver/routes_canvas.go
//
// HTTP routes for drawing sessions. Exposes under /canvas:
//   - POST   /canvas              → new blank canvas
//   - GET    /canvas/{id}         → tool + history state
//   - GET    /canvas/{id}/image   → PNG export (ETag = blake2b digest)
//   - POST   /canvas/{id}/tool    → color / width / eraser toggle
//   - POST   /canvas/{id}/pointer → down | move | up | leave
//   - POST   /canvas/{id}/stroke  → a whole stroke in one call
//   - POST   /canvas/{id}/undo, /clear
//   - POST   /canvas/{id}/upload  → multipart "image"; 415 when not an image
//   - POST   /canvas/{id}/generate → character generation from the export
//   - DELETE /canvas/{id}
//
// A canvas belongs to the player who created it; other players get 404.

package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/hlog"

	"github.com/robalobadob/storytopia/apps/go-server/internal/canvas"
	"github.com/robalobadob/storytopia/apps/go-server/internal/generator"
	"github.com/robalobadob/storytopia/apps/go-server/internal/store"
)

// maxUpload bounds an uploaded image.
const maxUpload = 10 << 20

// canvasState is what the drawing UI renders besides the pixels.
type canvasState struct {
	CanvasID   string               `json:"canvasId"`
	Width      int                  `json:"width"`
	Height     int                  `json:"height"`
	HistoryLen int                  `json:"historyLength"`
	Step       int                  `json:"step"`
	CanUndo    bool                 `json:"canUndo"`
	Drawing    bool                 `json:"drawing"`
	Color      string               `json:"color"`
	BrushWidth float64              `json:"brushWidth"`
	Eraser     bool                 `json:"eraser"`
	Palette    []string             `json:"palette"`
	Character  *generator.Character `json:"character,omitempty"`
}

func stateOf(d *store.DrawingSession) canvasState {
	w, h := d.Canvas.Size()
	st := d.Style()
	hs := d.Canvas.State()
	return canvasState{
		CanvasID:   d.ID,
		Width:      w,
		Height:     h,
		HistoryLen: hs.HistoryLen,
		Step:       hs.Step,
		CanUndo:    hs.CanUndo,
		Drawing:    hs.Drawing,
		Color:      canvas.FormatColor(st.Color),
		BrushWidth: st.Width,
		Eraser:     hs.Eraser,
		Palette:    canvas.Palette,
		Character:  d.Character(),
	}
}

// mountCanvas registers all /canvas routes.
func (s *Server) mountCanvas(r chi.Router) {
	r.Route("/canvas", func(r chi.Router) {
		r.With(chimw.Timeout(requestTimeout)).Post("/", s.handleNewCanvas)
		r.Route("/{id}", func(r chi.Router) {
			r.Use(s.drawingCtx)
			r.Group(func(r chi.Router) {
				r.Use(chimw.Timeout(requestTimeout))
				r.Get("/", s.handleCanvasState)
				r.Delete("/", s.handleDeleteCanvas)
				r.Get("/image", s.handleCanvasImage)
				r.Post("/tool", s.handleTool)
				r.Post("/pointer", s.handlePointer)
				r.Post("/stroke", s.handleStroke)
				r.Post("/undo", s.handleUndo)
				r.Post("/clear", s.handleClear)
				r.Post("/upload", s.handleUpload)
			})
			r.With(chimw.Timeout(s.generationTimeout())).Post("/generate", s.handleGenerateCharacter)
		})
	})
}

type ctxDrawingKey struct{}

// drawingCtx loads the session named in the URL and checks ownership.
func (s *Server) drawingCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := s.store.GetDrawing(r.Context(), chi.URLParam(r, "id"))
		if err != nil || d.PlayerID != playerFrom(r.Context()) {
			writeErr(w, http.StatusNotFound, "not_found", "")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxDrawingKey{}, d)))
	})
}

func drawingFrom(r *http.Request) *store.DrawingSession {
	d, _ := r.Context().Value(ctxDrawingKey{}).(*store.DrawingSession)
	return d
}

func (s *Server) handleNewCanvas(w http.ResponseWriter, r *http.Request) {
	eng := canvas.New(canvas.Options{
		Width:      s.cfg.CanvasWidth,
		Height:     s.cfg.CanvasHeight,
		MaxHistory: s.cfg.HistoryLimit,
		Logger:     &s.log,
	})
	d := store.NewDrawingSession(playerFrom(r.Context()), eng)
	if err := s.store.SaveDrawing(r.Context(), d); err != nil {
		if errors.Is(err, store.ErrSessionLimit) {
			writeErr(w, http.StatusTooManyRequests, "session_limit", "delete a canvas first")
			return
		}
		hlog.FromRequest(r).Error().Err(err).Msg("save drawing")
		writeErr(w, http.StatusInternalServerError, "save_failed", "")
		return
	}
	writeJSON(w, http.StatusCreated, stateOf(d))
}

func (s *Server) handleCanvasState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, stateOf(drawingFrom(r)))
}

func (s *Server) handleDeleteCanvas(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteDrawing(r.Context(), drawingFrom(r).ID); err != nil {
		writeErr(w, http.StatusNotFound, "not_found", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCanvasImage serves the PNG export. Exporting never touches history.
func (s *Server) handleCanvasImage(w http.ResponseWriter, r *http.Request) {
	png, err := drawingFrom(r).Canvas.ExportImage()
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("export image")
		writeErr(w, http.StatusInternalServerError, "export_failed", "")
		return
	}
	etag := `"` + canvas.ExportDigest(png) + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

type toolReq struct {
	Color  *string  `json:"color"`
	Width  *float64 `json:"width"`
	Eraser *bool    `json:"eraser"`
}

func (s *Server) handleTool(w http.ResponseWriter, r *http.Request) {
	d := drawingFrom(r)
	var req toolReq
	if err := decodeBody(w, r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad_json", "")
		return
	}
	st := d.Style()
	if req.Color != nil {
		c, err := canvas.ParseColor(*req.Color)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "invalid_color", err.Error())
			return
		}
		st.Color = c
	}
	if req.Width != nil {
		st.Width = *req.Width
	}
	d.SetStyle(st)
	if req.Eraser != nil {
		d.Canvas.SetEraser(*req.Eraser)
	}
	writeJSON(w, http.StatusOK, stateOf(d))
}

type pointerReq struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

type pointerRes struct {
	Applied   bool        `json:"applied"`
	Committed bool        `json:"committed"`
	State     canvasState `json:"state"`
}

// handlePointer maps pointer events onto the stroke lifecycle. Out-of-order
// events (move without down, up twice) are accepted and reported as not applied.
func (s *Server) handlePointer(w http.ResponseWriter, r *http.Request) {
	d := drawingFrom(r)
	var req pointerReq
	if err := decodeBody(w, r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad_json", "")
		return
	}
	p := canvas.Point{X: req.X, Y: req.Y}
	var res pointerRes
	switch strings.ToLower(req.Type) {
	case "down":
		d.Canvas.BeginStroke(p)
		res.Applied = true
	case "move":
		res.Applied = d.Canvas.ExtendStroke(p, d.Style())
	case "up", "leave":
		res.Committed = d.Canvas.EndStroke()
		res.Applied = res.Committed
		if res.Committed {
			s.metrics.RecordStroke()
		}
	default:
		writeErr(w, http.StatusBadRequest, "invalid_pointer_type", "type must be down, move, up or leave")
		return
	}
	res.State = stateOf(d)
	writeJSON(w, http.StatusOK, res)
}

type strokeReq struct {
	Points []canvas.Point `json:"points"`
}

// handleStroke applies a complete stroke: begin at the first point, a
// segment to each following point, then commit.
func (s *Server) handleStroke(w http.ResponseWriter, r *http.Request) {
	d := drawingFrom(r)
	var req strokeReq
	if err := decodeBody(w, r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad_json", "")
		return
	}
	if len(req.Points) == 0 {
		writeErr(w, http.StatusBadRequest, "empty_stroke", "at least one point is required")
		return
	}
	st := d.Style()
	d.Canvas.BeginStroke(req.Points[0])
	for _, p := range req.Points[1:] {
		d.Canvas.ExtendStroke(p, st)
	}
	if d.Canvas.EndStroke() {
		s.metrics.RecordStroke()
	}
	writeJSON(w, http.StatusOK, stateOf(d))
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	d := drawingFrom(r)
	undone := d.Canvas.Undo()
	if undone {
		s.metrics.RecordUndo()
	}
	writeJSON(w, http.StatusOK, map[string]any{"undone": undone, "state": stateOf(d)})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	d := drawingFrom(r)
	d.Canvas.Clear()
	writeJSON(w, http.StatusOK, stateOf(d))
}

// handleUpload inserts an uploaded picture. The declared part type and the
// sniffed bytes must both be images.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	d := drawingFrom(r)
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload+1<<20)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeErr(w, http.StatusBadRequest, "bad_form", "expected multipart form with an image field")
		return
	}
	f, hdr, err := r.FormFile("image")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "missing_image", "")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUpload))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "read_failed", "")
		return
	}

	err = d.Canvas.InsertUpload(hdr.Header.Get("Content-Type"), data)
	if errors.Is(err, canvas.ErrInvalidMediaKind) {
		writeErr(w, http.StatusUnsupportedMediaType, "invalid_media_kind", "Please upload an image file")
		return
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("insert upload")
		writeErr(w, http.StatusInternalServerError, "insert_failed", "")
		return
	}
	s.metrics.RecordImage()
	writeJSON(w, http.StatusOK, stateOf(d))
}

// handleGenerateCharacter sends the current drawing to the collaborator.
// On failure the canvas is untouched and the detail is shown to the user.
func (s *Server) handleGenerateCharacter(w http.ResponseWriter, r *http.Request) {
	d := drawingFrom(r)
	if s.gen == nil {
		writeErr(w, http.StatusServiceUnavailable, "generator_unavailable", "")
		return
	}
	dataURL, err := d.Canvas.ExportDataURL()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "export_failed", "")
		return
	}
	ch, err := s.gen.GenerateCharacter(r.Context(), dataURL, playerFrom(r.Context()))
	if err != nil {
		s.metrics.RecordGenerationFailure(generator.OpCharacter)
		hlog.FromRequest(r).Warn().Err(err).Msg("generate character")
		writeErr(w, http.StatusBadGateway, "generation_failed", failureDetail(err, "Failed to generate character"))
		return
	}
	d.SetCharacter(ch)
	writeJSON(w, http.StatusOK, map[string]any{"character": ch, "state": stateOf(d)})
}

// failureDetail returns the collaborator's message when there is one.
func failureDetail(err error, fallback string) string {
	var ge *generator.Error
	if errors.As(err, &ge) && ge.Detail != "" {
		return ge.Detail
	}
	return fallback
}
