package workflow

// ActionKind identifies a configured side-effecting operation. Like
// Trigger, the set is closed and switches over it should be exhaustive.
type ActionKind string

const (
	// ActionUnrollThread fetches the full conversation for a stored record
	// and merges it in.
	ActionUnrollThread ActionKind = "UnrollThread"

	// ActionDeleteBookmark removes the local record and adjusts counters.
	ActionDeleteBookmark ActionKind = "DeleteBookmark"

	// ActionAutoComment posts a reply using workflow-configured text.
	// Content-bearing: requires a non-empty first input.
	ActionAutoComment ActionKind = "AutoComment"

	// ActionDownloadMedia fetches the full item and hands its best media
	// variant to the download collaborator.
	ActionDownloadMedia ActionKind = "DownloadMedia"
)

// ActionKinds lists all action kinds in presentation order.
var ActionKinds = []ActionKind{
	ActionUnrollThread,
	ActionDeleteBookmark,
	ActionAutoComment,
	ActionDownloadMedia,
}

// ValidActionKinds is the membership set for validation.
var ValidActionKinds = func() map[ActionKind]bool {
	m := make(map[ActionKind]bool, len(ActionKinds))
	for _, k := range ActionKinds {
		m[k] = true
	}
	return m
}()

// Action is one step in a workflow's then-list. Inputs is required and
// non-empty for content-bearing kinds (AutoComment) and absent for
// parameterless kinds.
type Action struct {
	Name   ActionKind `json:"name"`
	Inputs []string   `json:"inputs,omitempty"`
}

// NeedsInputs reports whether the action kind carries configured content.
func (k ActionKind) NeedsInputs() bool {
	return k == ActionAutoComment
}

// Equal compares two actions by kind and inputs.
func (a Action) Equal(b Action) bool {
	if a.Name != b.Name || len(a.Inputs) != len(b.Inputs) {
		return false
	}
	for i := range a.Inputs {
		if a.Inputs[i] != b.Inputs[i] {
			return false
		}
	}
	return true
}

// Task is a queued, not-yet-executed instance of an action bound to a
// concrete target id. ID is a creation-time token used only for removal;
// ordering is FIFO by insertion, not by id. Seq is a logical insertion
// stamp that keeps ordering stable across a persistence round-trip.
type Task struct {
	ID       string     `json:"id"`
	Name     ActionKind `json:"name"`
	TargetID string     `json:"target_id"`
	Inputs   []string   `json:"inputs,omitempty"`
	Seq      int64      `json:"seq"`
}
