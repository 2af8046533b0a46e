// internal/httpserver/routes_quest.go
//
// HTTP routes for quest sessions. Exposes under /quests:
//   - POST   /quests             → generate a quest and start a session
//   - GET    /quests/{id}        → current view (poll while auto-advance runs)
//   - POST   /quests/{id}/select → {option:"a"|"b"}
//   - POST   /quests/{id}/retry, /next, /prev
//   - POST   /quests/{id}/ack    → acknowledge completion; records the result
//   - DELETE /quests/{id}        → abandon
//
// Degenerate moves (next on an unfinished scene, select on a completed one)
// answer 200 with applied=false and the unchanged view, mirroring the
// engine's no-op semantics.

package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/hlog"

	"github.com/robalobadob/storytopia/apps/go-server/internal/generator"
	"github.com/robalobadob/storytopia/apps/go-server/internal/lessons"
	"github.com/robalobadob/storytopia/apps/go-server/internal/quest"
	"github.com/robalobadob/storytopia/apps/go-server/internal/results"
	"github.com/robalobadob/storytopia/apps/go-server/internal/store"
)

// mountQuests registers all /quests routes.
func (s *Server) mountQuests(r chi.Router) {
	r.Route("/quests", func(r chi.Router) {
		r.With(chimw.Timeout(s.generationTimeout())).Post("/", s.handleNewQuest)
		r.Route("/{id}", func(r chi.Router) {
			r.Use(s.questCtx)
			r.Use(chimw.Timeout(requestTimeout))
			r.Get("/", s.handleQuestView)
			r.Delete("/", s.handleAbandonQuest)
			r.Post("/select", s.handleSelect)
			r.Post("/retry", s.questMove((*quest.Engine).Retry))
			r.Post("/next", s.questMove((*quest.Engine).Advance))
			r.Post("/prev", s.questMove((*quest.Engine).Retreat))
			r.Post("/ack", s.handleAcknowledge)
		})
	})
}

type ctxQuestKey struct{}

// questCtx loads the session named in the URL and checks ownership.
func (s *Server) questCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q, err := s.store.GetQuest(r.Context(), chi.URLParam(r, "id"))
		if err != nil || q.PlayerID != playerFrom(r.Context()) {
			writeErr(w, http.StatusNotFound, "not_found", "")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxQuestKey{}, q)))
	})
}

func questFrom(r *http.Request) *store.QuestSession {
	q, _ := r.Context().Value(ctxQuestKey{}).(*store.QuestSession)
	return q
}

type newQuestReq struct {
	CharacterDescription string `json:"characterDescription"`
	CharacterName        string `json:"characterName"`
	Lesson               string `json:"lesson"`
	// CanvasID optionally takes the character from a drawing session.
	CanvasID string `json:"canvasId"`
}

type questRes struct {
	QuestID string     `json:"questId"`
	Applied *bool      `json:"applied,omitempty"`
	View    quest.View `json:"view"`
}

func (s *Server) handleNewQuest(w http.ResponseWriter, r *http.Request) {
	var req newQuestReq
	if err := decodeBody(w, r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad_json", "")
		return
	}
	player := playerFrom(r.Context())

	if req.CanvasID != "" && req.CharacterDescription == "" {
		d, err := s.store.GetDrawing(r.Context(), req.CanvasID)
		if err != nil || d.PlayerID != player {
			writeErr(w, http.StatusNotFound, "canvas_not_found", "")
			return
		}
		if ch := d.Character(); ch != nil {
			req.CharacterDescription = ch.CharacterDescription
			if req.CharacterName == "" {
				req.CharacterName = ch.CharacterType
			}
		}
	}
	req.Lesson = strings.TrimSpace(req.Lesson)
	if req.CharacterDescription == "" || req.Lesson == "" {
		writeErr(w, http.StatusBadRequest, "missing_fields", "characterDescription and lesson are required")
		return
	}
	lesson, ok := lessons.Get(req.Lesson)
	if !ok {
		writeErr(w, http.StatusBadRequest, "unknown_lesson", "lesson must be an id from GET /lessons")
		return
	}
	req.Lesson = lesson.ID
	if s.gen == nil {
		writeErr(w, http.StatusServiceUnavailable, "generator_unavailable", "")
		return
	}

	q, err := s.gen.GenerateQuest(r.Context(), generator.QuestRequest{
		CharacterDescription: req.CharacterDescription,
		CharacterName:        req.CharacterName,
		Lesson:               req.Lesson,
		UserID:               player,
	})
	if err != nil {
		s.metrics.RecordGenerationFailure(generator.OpQuest)
		hlog.FromRequest(r).Warn().Err(err).Msg("generate quest")
		writeErr(w, http.StatusBadGateway, "generation_failed", failureDetail(err, "Failed to generate quest"))
		return
	}
	if q.Lesson == "" {
		q.Lesson = req.Lesson
	}
	if q.CharacterName == "" {
		q.CharacterName = req.CharacterName
	}

	sess := &store.QuestSession{PlayerID: player}
	eng, err := quest.New(*q, quest.Options{
		AutoAdvance: s.cfg.AutoAdvance,
		Scheduler:   s.sched,
		Logger:      &s.log,
		OnComplete: func(total int) {
			s.metrics.RecordQuestCompleted()
			s.log.Info().Str("quest", sess.ID).Int("coins", total).Msg("quest complete raised")
		},
	})
	if err != nil {
		writeErr(w, http.StatusBadGateway, "generation_failed", "Generated quest has no scenes")
		return
	}
	sess.Engine = eng
	if err := s.store.SaveQuest(r.Context(), sess); err != nil {
		eng.Close()
		if errors.Is(err, store.ErrSessionLimit) {
			writeErr(w, http.StatusTooManyRequests, "session_limit", "finish or abandon a quest first")
			return
		}
		hlog.FromRequest(r).Error().Err(err).Msg("save quest")
		writeErr(w, http.StatusInternalServerError, "save_failed", "")
		return
	}
	s.metrics.QuestStarted()
	writeJSON(w, http.StatusCreated, questRes{QuestID: sess.ID, View: eng.View()})
}

func (s *Server) handleQuestView(w http.ResponseWriter, r *http.Request) {
	q := questFrom(r)
	writeJSON(w, http.StatusOK, questRes{QuestID: q.ID, View: q.Engine.View()})
}

type selectReq struct {
	Option string `json:"option"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	q := questFrom(r)
	var req selectReq
	if err := decodeBody(w, r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad_json", "")
		return
	}
	c, ok := quest.ParseChoice(req.Option)
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid_option", `option must be "a" or "b"`)
		return
	}
	applied := q.Engine.SelectOption(c)
	writeJSON(w, http.StatusOK, questRes{QuestID: q.ID, Applied: &applied, View: q.Engine.View()})
}

// questMove adapts a parameterless engine transition to a handler.
func (s *Server) questMove(move func(*quest.Engine) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := questFrom(r)
		applied := move(q.Engine)
		writeJSON(w, http.StatusOK, questRes{QuestID: q.ID, Applied: &applied, View: q.Engine.View()})
	}
}

type ackRes struct {
	Coins  int             `json:"coins"`
	Result *results.Result `json:"result,omitempty"`
}

// handleAcknowledge consumes a completed quest, records it and ends the session.
func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	q := questFrom(r)
	content := q.Engine.Quest()
	receipt, ok := q.Engine.Acknowledge()
	if !ok {
		writeErr(w, http.StatusConflict, "quest_incomplete", "finish every scene first")
		return
	}
	total := receipt.Total
	if !receipt.CompletionRaised {
		// acknowledged before the last auto-advance fired
		s.metrics.RecordQuestCompleted()
	}
	if err := s.store.DeleteQuest(r.Context(), q.ID); err == nil {
		s.metrics.QuestEnded()
	}

	res := ackRes{Coins: total}
	if s.results != nil {
		row := &results.Result{
			PlayerID:      q.PlayerID,
			QuestTitle:    content.Title,
			CharacterName: content.CharacterName,
			Lesson:        content.Lesson,
			Coins:         total,
			Scenes:        len(content.Scenes),
		}
		if err := s.results.Insert(r.Context(), row); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("record quest result")
		} else {
			res.Result = row
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAbandonQuest(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteQuest(r.Context(), questFrom(r).ID)
	if errors.Is(err, store.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "not_found", "")
		return
	}
	s.metrics.QuestEnded()
	w.WriteHeader(http.StatusNoContent)
}
