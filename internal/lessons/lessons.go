// internal/lessons/lessons.go
//
// Static lesson catalogue offered when a player starts a quest.
//
// Responsibilities:
//   - Load the catalogue from LESSONS_FILE, or fall back to the embedded
//     assets/lessons.yaml.
//   - Keep an id lookup for validating the lesson a player picked
//     (POST /quests rejects ids not in the catalogue).
//   - Supply All, Get and Stats.
//
// Initialization behavior (Init):
//   1. If LESSONS_FILE is set, parse that file.
//   2. Otherwise parse the embedded default.
//
// Constraints:
//   • Every lesson needs an id and a title; ids are normalized to lowercase.
//   • Duplicate ids are rejected.
//   • Initialization is run once (sync.Once).

package lessons

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/robalobadob/storytopia/apps/go-server/assets"
)

// Lesson is one life lesson a quest can teach.
type Lesson struct {
	ID      string `yaml:"id" json:"id"`
	Title   string `yaml:"title" json:"title"`
	Summary string `yaml:"summary" json:"summary,omitempty"`
}

// Catalogue is an ordered, id-indexed lesson list.
type Catalogue struct {
	list []Lesson
	byID map[string]Lesson
}

type document struct {
	Lessons []Lesson `yaml:"lessons"`
}

var (
	initOnce   sync.Once
	current    *Catalogue
	initialErr error
)

// Init loads the catalogue exactly once.
func Init() error {
	initOnce.Do(func() {
		var (
			raw []byte
			err error
		)
		if path := os.Getenv("LESSONS_FILE"); path != "" {
			raw, err = os.ReadFile(path)
		} else {
			raw, err = assets.Lessons()
		}
		if err != nil {
			initialErr = fmt.Errorf("lessons: read: %w", err)
			return
		}
		current, initialErr = Parse(raw)
	})
	return initialErr
}

// Parse decodes a YAML catalogue.
func Parse(raw []byte) (*Catalogue, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("lessons: parse: %w", err)
	}
	c := &Catalogue{byID: make(map[string]Lesson, len(doc.Lessons))}
	for i, l := range doc.Lessons {
		l.ID = strings.ToLower(strings.TrimSpace(l.ID))
		l.Title = strings.TrimSpace(l.Title)
		if l.ID == "" || l.Title == "" {
			return nil, fmt.Errorf("lessons: entry %d: id and title are required", i)
		}
		if _, dup := c.byID[l.ID]; dup {
			return nil, fmt.Errorf("lessons: duplicate id %q", l.ID)
		}
		c.byID[l.ID] = l
		c.list = append(c.list, l)
	}
	if len(c.list) == 0 {
		return nil, errors.New("lessons: catalogue is empty")
	}
	return c, nil
}

// All returns the lessons in catalogue order.
func (c *Catalogue) All() []Lesson {
	return append([]Lesson(nil), c.list...)
}

// Get looks up a lesson by id.
func (c *Catalogue) Get(id string) (Lesson, bool) {
	l, ok := c.byID[strings.ToLower(strings.TrimSpace(id))]
	return l, ok
}

// Len is the number of lessons.
func (c *Catalogue) Len() int { return len(c.list) }

// All returns the loaded lessons. Empty if Init has not run.
func All() []Lesson {
	if c := current; c != nil {
		return c.All()
	}
	return nil
}

// Get looks up a lesson in the loaded catalogue.
func Get(id string) (Lesson, bool) {
	if c := current; c != nil {
		return c.Get(id)
	}
	return Lesson{}, false
}

// Stats returns the number of loaded lessons.
func Stats() int {
	if c := current; c != nil {
		return c.Len()
	}
	return 0
}
