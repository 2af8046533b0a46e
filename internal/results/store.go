// internal/results/store.go
//
// SQLite ledger of acknowledged quest completions.
// Rows are written once, when a player acknowledges a completed quest; the
// engines themselves are never persisted.
//
// Queries:
//   - ForPlayer:   a player's most recent results.
//   - Leaderboard: players ranked by total coins, then by quests finished,
//     then by who got there first.

package results

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timeLayout is fixed-width so that finished_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrInvalid is returned for rows that break the ledger's invariants.
var ErrInvalid = errors.New("results: invalid result")

// Result is one finished quest.
type Result struct {
	ID            string    `json:"id"`
	PlayerID      string    `json:"playerId"`
	QuestTitle    string    `json:"questTitle"`
	CharacterName string    `json:"characterName,omitempty"`
	Lesson        string    `json:"lesson,omitempty"`
	Coins         int       `json:"coins"`
	Scenes        int       `json:"scenes"`
	FinishedAt    time.Time `json:"finishedAt"`
}

// LBRow is one leaderboard line.
type LBRow struct {
	PlayerID string `json:"playerId"`
	Coins    int    `json:"coins"`
	Quests   int    `json:"quests"`
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Insert records r, filling ID and FinishedAt when empty.
func (s *Store) Insert(ctx context.Context, r *Result) error {
	if r.PlayerID == "" || r.Scenes <= 0 || r.Coins < 0 || r.Coins > r.Scenes {
		return ErrInvalid
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quest_results(id, player_id, quest_title, character_name, lesson, coins, scenes, finished_at)
		 VALUES(?,?,?,?,?,?,?,?)`,
		r.ID, r.PlayerID, r.QuestTitle, r.CharacterName, r.Lesson, r.Coins, r.Scenes,
		r.FinishedAt.UTC().Format(timeLayout),
	)
	return err
}

// ForPlayer returns a player's results, newest first.
func (s *Store) ForPlayer(ctx context.Context, playerID string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, player_id, quest_title, character_name, lesson, coins, scenes, finished_at
		 FROM quest_results
		 WHERE player_id=?
		 ORDER BY finished_at DESC
		 LIMIT ?`, playerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Result{}
	for rows.Next() {
		var r Result
		var finished string
		if err := rows.Scan(&r.ID, &r.PlayerID, &r.QuestTitle, &r.CharacterName, &r.Lesson,
			&r.Coins, &r.Scenes, &finished); err != nil {
			return nil, err
		}
		if r.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return nil, fmt.Errorf("results: row %s: finished_at: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Leaderboard ranks players by coins earned across all quests.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]LBRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT player_id, SUM(coins) AS total, COUNT(1) AS quests, MIN(finished_at) AS first
		 FROM quest_results
		 GROUP BY player_id
		 ORDER BY total DESC, quests DESC, first ASC
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]LBRow, 0, limit)
	for rows.Next() {
		var r LBRow
		var first string
		if err := rows.Scan(&r.PlayerID, &r.Coins, &r.Quests, &first); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
