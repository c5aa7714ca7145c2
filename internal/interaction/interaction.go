// Package interaction holds the like/dislike state machine shared by the
// store-side toggle and the optimistic client model.
package interaction

import (
	"fmt"

	"github.com/sujalbistaa/whispr/internal/models"
)

// State is a user's current reaction to one confession.
type State string

const (
	StateNone     State = "none"
	StateLiked    State = "liked"
	StateDisliked State = "disliked"
)

// FromType maps a stored interaction row to a state. A nil row is StateNone.
func FromType(t *models.InteractionType) State {
	if t == nil {
		return StateNone
	}
	switch *t {
	case models.InteractionLike:
		return StateLiked
	case models.InteractionDislike:
		return StateDisliked
	}
	return StateNone
}

// Type is the stored row type for s, or nil for StateNone.
func (s State) Type() *models.InteractionType {
	var t models.InteractionType
	switch s {
	case StateLiked:
		t = models.InteractionLike
	case StateDisliked:
		t = models.InteractionDislike
	default:
		return nil
	}
	return &t
}

// Delta is the change a transition applies to the aggregate counters.
type Delta struct {
	Likes    int
	Dislikes int
}

// Counts are the aggregate counters of a confession.
type Counts struct {
	Likes    int `json:"likes"`
	Dislikes int `json:"dislikes"`
}

// Apply returns c shifted by d.
func (c Counts) Apply(d Delta) Counts {
	return Counts{Likes: c.Likes + d.Likes, Dislikes: c.Dislikes + d.Dislikes}
}

// Transition computes the next state and the counter delta for pressing
// action while in current. Pressing the active reaction undoes it; pressing
// the other one swaps.
func Transition(current State, action models.InteractionType) (State, Delta, error) {
	var target State
	switch action {
	case models.InteractionLike:
		target = StateLiked
	case models.InteractionDislike:
		target = StateDisliked
	default:
		return current, Delta{}, fmt.Errorf("unknown interaction type %q", action)
	}

	var d Delta
	switch current {
	case StateLiked:
		d.Likes--
	case StateDisliked:
		d.Dislikes--
	case StateNone:
	default:
		return current, Delta{}, fmt.Errorf("unknown interaction state %q", current)
	}

	if current == target {
		return StateNone, d, nil
	}

	switch target {
	case StateLiked:
		d.Likes++
	case StateDisliked:
		d.Dislikes++
	}
	return target, d, nil
}
