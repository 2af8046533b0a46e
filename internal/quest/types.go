// internal/quest/types.go
//
// Core type definitions for the quest progression engine.
// Defines:
//   - Choice: the option picked for the active scene (none/a/b).
//   - Option, Scene, Quest: immutable content supplied by the quest generator.
//   - Phase: the coarse state of the active scene.
//   - View: a read-only snapshot of the engine handed to the presentation layer.

package quest

import (
	"errors"
	"strings"
)

// ErrNoScenes is returned when a quest without scenes is loaded.
var ErrNoScenes = errors.New("quest: no scenes")

// Choice identifies one of the two answer options.
type Choice string

const (
	ChoiceNone Choice = ""
	ChoiceA    Choice = "a"
	ChoiceB    Choice = "b"
)

// ParseChoice accepts "a"/"b" in any case.
func ParseChoice(s string) (Choice, bool) {
	switch Choice(strings.ToLower(strings.TrimSpace(s))) {
	case ChoiceA:
		return ChoiceA, true
	case ChoiceB:
		return ChoiceB, true
	}
	return ChoiceNone, false
}

// Option is one answer to a scene's question.
type Option struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
	Feedback  string `json:"feedback"`
}

// Scene is one page of a quest.
type Scene struct {
	Number   int    `json:"scene_number"`
	Scenario string `json:"scenario"`
	Question string `json:"question"`
	OptionA  Option `json:"option_a"`
	OptionB  Option `json:"option_b"`
	// ImageURI is empty while the illustration is still pending.
	ImageURI string `json:"image_uri"`
}

// Option returns the option for c.
func (s Scene) Option(c Choice) (Option, bool) {
	switch c {
	case ChoiceA:
		return s.OptionA, true
	case ChoiceB:
		return s.OptionB, true
	}
	return Option{}, false
}

// Illustrated reports whether the scene's illustration is available.
func (s Scene) Illustrated() bool { return s.ImageURI != "" }

// Quest is the ordered scene list for one character and lesson.
type Quest struct {
	Title         string  `json:"quest_title"`
	CharacterName string  `json:"character_name,omitempty"`
	Lesson        string  `json:"lesson,omitempty"`
	Scenes        []Scene `json:"scenes"`
}

// Validate rejects quests that cannot be played.
func (q Quest) Validate() error {
	if len(q.Scenes) == 0 {
		return ErrNoScenes
	}
	return nil
}

// Phase is the state of the active scene.
type Phase string

const (
	PhaseUnanswered Phase = "unanswered"
	PhaseFeedback   Phase = "feedback"
	PhaseCompleted  Phase = "completed"
)

// View is what the presentation layer renders.
type View struct {
	Title           string `json:"title"`
	CharacterName   string `json:"characterName,omitempty"`
	Index           int    `json:"index"`
	SceneCount      int    `json:"sceneCount"`
	Scene           *Scene `json:"scene,omitempty"`
	Phase           Phase  `json:"phase"`
	Selected        Choice `json:"selected,omitempty"`
	FeedbackVisible bool   `json:"feedbackVisible"`
	FeedbackCorrect bool   `json:"feedbackCorrect"`
	Feedback        string `json:"feedback,omitempty"`
	Completed       []bool `json:"completed"`
	Reward          int    `json:"reward"`
	CanAdvance      bool   `json:"canAdvance"`
	CanRetreat      bool   `json:"canRetreat"`
	AdvancePending  bool   `json:"advancePending"`
	QuestComplete   bool   `json:"questComplete"`
	// CompletionRaised is set once the auto-advance on the last scene has
	// delivered the quest-complete signal.
	CompletionRaised bool `json:"completionRaised"`
	Disposed         bool `json:"disposed,omitempty"`
}
