// internal/httpserver/routes_results.go
//
// HTTP routes for the results ledger:
//   - GET /results/mine        → the player's recent finished quests
//   - GET /results/leaderboard → players ranked by coins (?limit=, max 100)

package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/hlog"
)

// mountResults registers all /results routes.
func (s *Server) mountResults(r chi.Router) {
	r.Route("/results", func(r chi.Router) {
		r.Use(chimw.Timeout(requestTimeout))
		r.Use(s.requireResults)
		r.Get("/mine", s.handleMyResults)
		r.Get("/leaderboard", s.handleLeaderboard)
	})
}

func (s *Server) requireResults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.results == nil {
			writeErr(w, http.StatusServiceUnavailable, "results_unavailable", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleMyResults(w http.ResponseWriter, r *http.Request) {
	rows, err := s.results.ForPlayer(r.Context(), playerFrom(r.Context()), queryLimit(r, 50))
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("results for player")
		writeErr(w, http.StatusInternalServerError, "db_error", "")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	rows, err := s.results.Leaderboard(r.Context(), queryLimit(r, 20))
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("leaderboard")
		writeErr(w, http.StatusInternalServerError, "db_error", "")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// queryLimit reads ?limit=, clamped to [1, 100].
func queryLimit(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > 100 {
		return 100
	}
	return n
}
