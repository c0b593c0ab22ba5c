package workflow

import (
	"sync"

	"github.com/google/uuid"
)

// Workflow is a persisted trigger → action-list binding.
//
// ID is an opaque creation-time token (time-ordered UUID). Editable marks
// user-authored workflows; seeded defaults are editable too, the flag
// exists so the presentation layer can pin rows it generates itself.
//
// The Unchanged view-state flag from the presentation layer is derived,
// never stored here: see Equal and UnchangedIn.
type Workflow struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	When     Trigger  `json:"when"`
	ThenList []Action `json:"then_list"`
	Editable bool     `json:"editable"`
}

// NewWorkflow creates an empty editable workflow bound to the given
// trigger, with a fresh time-ordered id.
func NewWorkflow(name string, when Trigger, then ...Action) Workflow {
	return Workflow{
		ID:       uuid.Must(uuid.NewV7()).String(),
		Name:     name,
		When:     when,
		ThenList: then,
		Editable: true,
	}
}

// Equal compares name, trigger, and then-list. ID and Editable are
// identity/view concerns and do not participate.
func (w Workflow) Equal(other Workflow) bool {
	if w.Name != other.Name || w.When != other.When {
		return false
	}
	if len(w.ThenList) != len(other.ThenList) {
		return false
	}
	for i := range w.ThenList {
		if !w.ThenList[i].Equal(other.ThenList[i]) {
			return false
		}
	}
	return true
}

// UnchangedIn reports whether this in-memory workflow equals its
// persisted counterpart in the given list. A workflow with no persisted
// counterpart counts as unchanged only while still blank (no name, no
// actions), matching how a freshly added row behaves before first save.
func (w Workflow) UnchangedIn(persisted []Workflow) bool {
	for _, p := range persisted {
		if p.ID == w.ID {
			return w.Equal(p)
		}
	}
	return w.Name == "" || len(w.ThenList) < 1
}

// SetThen replaces the action at index i, enforcing the one-action-per-kind
// rule: if another entry already carries the new action's kind, that entry
// is removed. Returns the updated list.
func SetThen(then []Action, i int, a Action) []Action {
	if i < 0 || i >= len(then) {
		return then
	}
	out := make([]Action, len(then))
	copy(out, then)
	out[i] = a
	for j := range out {
		if j != i && out[j].Name == a.Name {
			return append(out[:j], out[j+1:]...)
		}
	}
	return out
}

// NextUnusedTrigger picks the first trigger not yet bound by any workflow
// in the list. Falls back to CreateBookmark when every trigger is taken.
func NextUnusedTrigger(workflows []Workflow) Trigger {
	used := make(map[Trigger]bool, len(workflows))
	for _, w := range workflows {
		used[w.When] = true
	}
	for _, t := range Triggers {
		if !used[t] {
			return t
		}
	}
	return TriggerCreateBookmark
}

// DefaultWorkflows seeds a first-run workflow list. The comment text is the
// default comment template; the presentation layer replaces it once the
// user authors their own templates.
func DefaultWorkflows(commentText string) []Workflow {
	return []Workflow{
		NewWorkflow("Unroll bookmarked threads", TriggerCreateBookmark,
			Action{Name: ActionUnrollThread}),
		NewWorkflow("Comment on my posts", TriggerCreatePost,
			Action{Name: ActionAutoComment, Inputs: []string{commentText}}),
	}
}

// Matcher holds the active workflow list and answers trigger lookups.
//
// Matching is a linear scan returning the then-list of the FIRST workflow
// whose trigger matches. Storage may hold several workflows on the same
// trigger; only the first in stored order ever fires. This mirrors the
// presentation layer's behavior and must not silently become last-match
// or merge-all.
//
// Thread-safety: Replace may be called from any goroutine (the
// presentation layer pushes updated lists); Match is read-locked.
type Matcher struct {
	mu        sync.RWMutex
	workflows []Workflow
}

// NewMatcher creates a matcher over a copy of the given list.
func NewMatcher(workflows []Workflow) *Matcher {
	m := &Matcher{}
	m.Replace(workflows)
	return m
}

// Replace swaps in a new workflow list. The list is copied so later caller
// mutations cannot change match order underneath the engine.
func (m *Matcher) Replace(workflows []Workflow) {
	cp := make([]Workflow, len(workflows))
	copy(cp, workflows)

	m.mu.Lock()
	m.workflows = cp
	m.mu.Unlock()
}

// Match returns the then-list of the first workflow bound to the trigger,
// or nil when no workflow matches.
func (m *Matcher) Match(trigger Trigger) []Action {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, w := range m.workflows {
		if w.When == trigger {
			return w.ThenList
		}
	}
	return nil
}

// Workflows returns a copy of the active list.
func (m *Matcher) Workflows() []Workflow {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp := make([]Workflow, len(m.workflows))
	copy(cp, m.workflows)
	return cp
}
