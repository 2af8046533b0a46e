// internal/store/memory.go
//
// In-memory registry of drawing and quest sessions.
// Sessions are ephemeral by nature: the canvas history and quest progress
// live only as long as the process, so there is no durable backend.
//
// Characteristics:
//   - Sessions are keyed by a uuid assigned on first Save.
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - Each player may hold at most Limits.MaxPerPlayer sessions of each kind;
//     saving one more returns ErrSessionLimit.
//   - Sweep drops sessions untouched for Limits.IdleTTL (Get counts as a touch).
//   - Deleting or sweeping a quest session closes its engine so no
//     auto-advance fires against a session nobody can reach.
//   - Get returns ErrNotFound for unknown ids.

package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/robalobadob/storytopia/apps/go-server/internal/canvas"
	"github.com/robalobadob/storytopia/apps/go-server/internal/generator"
	"github.com/robalobadob/storytopia/apps/go-server/internal/quest"
)

var (
	// ErrNotFound is returned when a session id is unknown.
	ErrNotFound = errors.New("store: not found")
	// ErrSessionLimit is returned when a player already holds the maximum
	// number of sessions of one kind.
	ErrSessionLimit = errors.New("store: session limit reached")
)

// Limits bounds what one process keeps in memory. Zero fields disable the
// corresponding limit.
type Limits struct {
	MaxPerPlayer int
	IdleTTL      time.Duration
}

// DefaultLimits allows 8 sessions of each kind per player and sweeps
// sessions idle for 2 hours.
func DefaultLimits() Limits {
	return Limits{MaxPerPlayer: 8, IdleTTL: 2 * time.Hour}
}

// DrawingSession is one canvas plus the tool state the pointer handlers need.
type DrawingSession struct {
	ID        string
	PlayerID  string
	Canvas    *canvas.Engine
	CreatedAt time.Time

	mu        sync.Mutex
	style     canvas.Style
	character *generator.Character
}

// NewDrawingSession wraps an engine with the default brush.
func NewDrawingSession(playerID string, c *canvas.Engine) *DrawingSession {
	return &DrawingSession{
		PlayerID:  playerID,
		Canvas:    c,
		CreatedAt: time.Now().UTC(),
		style:     canvas.DefaultStyle(),
	}
}

// Style returns the current brush.
func (d *DrawingSession) Style() canvas.Style {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.style
}

// SetStyle replaces the brush; the width is clamped to the slider range.
func (d *DrawingSession) SetStyle(st canvas.Style) {
	st.Width = canvas.ClampWidth(st.Width)
	d.mu.Lock()
	d.style = st
	d.mu.Unlock()
}

// Character returns the last generated character, if any.
func (d *DrawingSession) Character() *generator.Character {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.character
}

// SetCharacter records a generated character.
func (d *DrawingSession) SetCharacter(c *generator.Character) {
	d.mu.Lock()
	d.character = c
	d.mu.Unlock()
}

// QuestSession is one running quest.
type QuestSession struct {
	ID        string
	PlayerID  string
	Engine    *quest.Engine
	CreatedAt time.Time
}

// Store defines the session registry.
type Store interface {
	SaveDrawing(ctx context.Context, d *DrawingSession) error
	GetDrawing(ctx context.Context, id string) (*DrawingSession, error)
	DeleteDrawing(ctx context.Context, id string) error

	SaveQuest(ctx context.Context, q *QuestSession) error
	GetQuest(ctx context.Context, id string) (*QuestSession, error)
	DeleteQuest(ctx context.Context, id string) error

	// Counts reports (drawings, quests).
	Counts() (int, int)
	// Sweep removes sessions idle since before now minus the idle TTL and
	// reports how many of each kind went.
	Sweep(now time.Time) (drawings, quests int)
}

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu       sync.RWMutex
	limits   Limits
	drawings map[string]*DrawingSession
	quests   map[string]*QuestSession
	touched  map[string]time.Time
}

// NewMemoryStore constructs an in-memory Store with DefaultLimits.
func NewMemoryStore() Store {
	return NewLimitedStore(DefaultLimits())
}

// NewLimitedStore constructs an in-memory Store with explicit limits.
func NewLimitedStore(l Limits) Store {
	return &memory{
		limits:   l,
		drawings: make(map[string]*DrawingSession),
		quests:   make(map[string]*QuestSession),
		touched:  make(map[string]time.Time),
	}
}

func (m *memory) SaveDrawing(ctx context.Context, d *DrawingSession) error {
	if d == nil || d.Canvas == nil {
		return errors.New("store: drawing session without canvas")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, known := m.drawings[d.ID]; !known {
		n := 0
		for _, o := range m.drawings {
			if o.PlayerID == d.PlayerID {
				n++
			}
		}
		if m.overLimit(n) {
			return ErrSessionLimit
		}
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	m.drawings[d.ID] = d
	m.touched[d.ID] = time.Now()
	return nil
}

func (m *memory) GetDrawing(ctx context.Context, id string) (*DrawingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.drawings[id]; ok {
		m.touched[id] = time.Now()
		return d, nil
	}
	return nil, ErrNotFound
}

func (m *memory) DeleteDrawing(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drawings[id]; !ok {
		return ErrNotFound
	}
	delete(m.drawings, id)
	delete(m.touched, id)
	return nil
}

func (m *memory) SaveQuest(ctx context.Context, q *QuestSession) error {
	if q == nil || q.Engine == nil {
		return errors.New("store: quest session without engine")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, known := m.quests[q.ID]; !known {
		n := 0
		for _, o := range m.quests {
			if o.PlayerID == q.PlayerID {
				n++
			}
		}
		if m.overLimit(n) {
			return ErrSessionLimit
		}
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	m.quests[q.ID] = q
	m.touched[q.ID] = time.Now()
	return nil
}

func (m *memory) GetQuest(ctx context.Context, id string) (*QuestSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.quests[id]; ok {
		m.touched[id] = time.Now()
		return q, nil
	}
	return nil, ErrNotFound
}

func (m *memory) DeleteQuest(ctx context.Context, id string) error {
	m.mu.Lock()
	q, ok := m.quests[id]
	delete(m.quests, id)
	delete(m.touched, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	q.Engine.Close()
	return nil
}

func (m *memory) Counts() (int, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.drawings), len(m.quests)
}

func (m *memory) Sweep(now time.Time) (int, int) {
	if m.limits.IdleTTL <= 0 {
		return 0, 0
	}
	cutoff := now.Add(-m.limits.IdleTTL)

	m.mu.Lock()
	var drawings int
	for id := range m.drawings {
		if m.touched[id].Before(cutoff) {
			delete(m.drawings, id)
			delete(m.touched, id)
			drawings++
		}
	}
	var stale []*QuestSession
	for id, q := range m.quests {
		if m.touched[id].Before(cutoff) {
			delete(m.quests, id)
			delete(m.touched, id)
			stale = append(stale, q)
		}
	}
	m.mu.Unlock()

	for _, q := range stale {
		q.Engine.Close()
	}
	return drawings, len(stale)
}

// overLimit reports whether a player already holding n sessions of one kind
// may not open another. Caller holds m.mu.
func (m *memory) overLimit(n int) bool {
	return m.limits.MaxPerPlayer > 0 && n >= m.limits.MaxPerPlayer
}
