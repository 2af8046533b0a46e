// internal/quest/engine.go
//
// Linear progression engine for a single quest session.
// Responsibilities:
//   - Track the active scene, per-scene completed flags and the reward counter.
//   - Score a selected option against the scene's answer key.
//   - Auto-advance a fixed delay after a correct answer; on the last scene the
//     auto-advance raises quest-complete with the final reward total.
//   - Gate manual navigation: forward only past completed scenes, back anywhere
//     but the first scene.
//
// State machine per scene:
//   unanswered -> feedback(correct)   -> completed (terminal for the scene)
//   unanswered -> feedback(incorrect) -> unanswered (via Retry)
//
// Notes:
//   - Reward increment and completed-flag set happen under one lock.
//   - Each pending auto-advance captures the generation and target index at
//     schedule time and does nothing if either has moved on when it fires.
//   - Degenerate calls (select on a completed scene, advance past the end,
//     retreat at the start) are no-ops returning false, never errors.

package quest

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultAutoAdvance is the delay between a correct answer and the move to
// the next scene.
const DefaultAutoAdvance = 2 * time.Second

// Options configures an Engine.
type Options struct {
	AutoAdvance time.Duration
	Scheduler   Scheduler
	// OnComplete receives the final reward when the last scene's
	// auto-advance fires. It runs without the engine lock held.
	OnComplete func(total int)
	Logger     *zerolog.Logger
}

// state is the mutable QuestState for one loaded quest.
type state struct {
	index            int
	completed        []bool
	reward           int
	selected         Choice
	feedbackVisible  bool
	completionRaised bool
}

// Engine owns one QuestState. A nil state means the engine is disposed.
type Engine struct {
	mu    sync.Mutex
	opts  Options
	log   zerolog.Logger
	quest Quest
	st    *state

	generation   uint64
	pending      Timer
	pendingSeq   uint64
	pendingIndex int
}

// New loads q into a fresh engine.
func New(q Quest, opts Options) (*Engine, error) {
	if opts.AutoAdvance <= 0 {
		opts.AutoAdvance = DefaultAutoAdvance
	}
	if opts.Scheduler == nil {
		opts.Scheduler = RealScheduler
	}
	lg := zerolog.Nop()
	if opts.Logger != nil {
		lg = opts.Logger.With().Str("component", "quest").Logger()
	}
	e := &Engine{opts: opts, log: lg}
	if err := e.Load(q); err != nil {
		return nil, err
	}
	return e, nil
}

// Load replaces the current quest with q and resets all progress. Any
// pending auto-advance from the previous quest is invalidated.
func (e *Engine) Load(q Quest) error {
	if err := q.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.invalidateLocked()
	e.quest = q
	e.st = &state{completed: make([]bool, len(q.Scenes))}
	return nil
}

// Close disposes the QuestState. A pending auto-advance will not fire.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.invalidateLocked()
	e.st = nil
}

// SelectOption scores c against the active scene. A correct answer adds
// exactly one reward, completes the scene and schedules the auto-advance.
// Returns false when ignored: disposed engine, invalid choice or a scene
// that is already completed.
func (e *Engine) SelectOption(c Choice) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.st
	if st == nil || st.completed[st.index] {
		return false
	}
	opt, ok := e.quest.Scenes[st.index].Option(c)
	if !ok {
		return false
	}
	st.selected = c
	st.feedbackVisible = true
	if !opt.IsCorrect {
		return true
	}

	st.reward++
	st.completed[st.index] = true
	e.scheduleLocked(st.index)
	e.log.Debug().Int("scene", st.index).Int("reward", st.reward).Msg("scene completed")
	return true
}

// Retry returns from incorrect feedback to an unanswered scene.
func (e *Engine) Retry() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.st
	if st == nil || st.completed[st.index] || !st.feedbackVisible {
		return false
	}
	if opt, ok := e.quest.Scenes[st.index].Option(st.selected); ok && opt.IsCorrect {
		return false
	}
	st.selected = ChoiceNone
	st.feedbackVisible = false
	return true
}

// Advance moves to the next scene. Blocked unless the active scene is
// completed and is not the last one.
func (e *Engine) Advance() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.st
	if st == nil || !st.completed[st.index] || st.index >= len(st.completed)-1 {
		return false
	}
	e.moveLocked(st.index + 1)
	return true
}

// Retreat moves to the previous scene. Blocked only at the first scene.
func (e *Engine) Retreat() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.st
	if st == nil || st.index == 0 {
		return false
	}
	e.moveLocked(st.index - 1)
	return true
}

// IsQuestComplete reports whether every scene is completed.
func (e *Engine) IsQuestComplete() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.completeLocked()
}

// Reward returns the reward counter.
func (e *Engine) Reward() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.st == nil {
		return 0
	}
	return e.st.reward
}

// Receipt is what Acknowledge hands back for a consumed quest.
type Receipt struct {
	Total int
	// CompletionRaised is false when the quest was acknowledged before the
	// last auto-advance fired; OnComplete will then never run for it.
	CompletionRaised bool
}

// Acknowledge consumes a completed quest: it returns the final reward and
// whether completion had already been raised, then disposes the state.
// ok is false if the quest is not complete.
func (e *Engine) Acknowledge() (r Receipt, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.completeLocked() {
		return Receipt{}, false
	}
	r = Receipt{Total: e.st.reward, CompletionRaised: e.st.completionRaised}
	e.invalidateLocked()
	e.st = nil
	return r, true
}

// Quest returns the loaded quest content.
func (e *Engine) Quest() Quest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quest
}

// View snapshots the engine for rendering.
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.st
	if st == nil {
		return View{Title: e.quest.Title, Disposed: true}
	}
	scene := e.quest.Scenes[st.index]
	v := View{
		Title:            e.quest.Title,
		CharacterName:    e.quest.CharacterName,
		Index:            st.index,
		SceneCount:       len(st.completed),
		Scene:            &scene,
		Selected:         st.selected,
		FeedbackVisible:  st.feedbackVisible,
		Completed:        append([]bool(nil), st.completed...),
		Reward:           st.reward,
		CanAdvance:       st.completed[st.index] && st.index < len(st.completed)-1,
		CanRetreat:       st.index > 0,
		AdvancePending:   e.pending != nil && e.pendingIndex == st.index,
		QuestComplete:    e.completeLocked(),
		CompletionRaised: st.completionRaised,
	}
	if opt, ok := scene.Option(st.selected); ok && st.feedbackVisible {
		v.Feedback = opt.Feedback
		v.FeedbackCorrect = opt.IsCorrect
	}
	switch {
	case st.completed[st.index]:
		v.Phase = PhaseCompleted
	case st.feedbackVisible:
		v.Phase = PhaseFeedback
	default:
		v.Phase = PhaseUnanswered
	}
	return v
}

func (e *Engine) completeLocked() bool {
	if e.st == nil {
		return false
	}
	for _, done := range e.st.completed {
		if !done {
			return false
		}
	}
	return true
}

// moveLocked activates scene i with a clean selection. A completed scene
// shows in its locked-in state with nothing selected.
func (e *Engine) moveLocked(i int) {
	e.st.index = i
	e.st.selected = ChoiceNone
	e.st.feedbackVisible = false
}

func (e *Engine) scheduleLocked(index int) {
	if e.pending != nil {
		e.pending.Stop()
	}
	e.pendingSeq++
	gen, seq := e.generation, e.pendingSeq
	e.pendingIndex = index
	e.pending = e.opts.Scheduler.AfterFunc(e.opts.AutoAdvance, func() {
		e.autoAdvance(gen, seq, index)
	})
}

// invalidateLocked bumps the generation so that any scheduled callback
// becomes a no-op, and stops the pending timer.
func (e *Engine) invalidateLocked() {
	e.generation++
	if e.pending != nil {
		e.pending.Stop()
		e.pending = nil
	}
}

func (e *Engine) autoAdvance(gen, seq uint64, index int) {
	e.mu.Lock()
	if gen != e.generation || e.st == nil {
		e.mu.Unlock()
		return
	}
	if seq == e.pendingSeq {
		e.pending = nil
	}
	st := e.st
	if st.index != index {
		// the user navigated away before the timer fired
		e.mu.Unlock()
		return
	}
	if index < len(st.completed)-1 {
		e.moveLocked(index + 1)
		e.mu.Unlock()
		return
	}
	if st.completionRaised || !e.completeLocked() {
		e.mu.Unlock()
		return
	}
	st.completionRaised = true
	total := st.reward
	title := e.quest.Title
	cb := e.opts.OnComplete
	e.mu.Unlock()

	e.log.Info().Str("quest", title).Int("reward", total).Msg("quest complete")
	if cb != nil {
		cb(total)
	}
}
