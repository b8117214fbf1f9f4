package domain

// Crossing classifies the effect of one increment relative to the goal.
type Crossing int

const (
	// CrossingBelow means the new total is still under the goal.
	CrossingBelow Crossing = iota
	// CrossingJust means this increment pushed the total from below the
	// goal to at-or-above it. Fires at most once per (user, exercise).
	CrossingJust
	// CrossingAlready means the goal had been reached before this increment.
	CrossingAlready
)

func (c Crossing) String() string {
	switch c {
	case CrossingJust:
		return "just_crossed"
	case CrossingAlready:
		return "already_crossed"
	default:
		return "below_goal"
	}
}

// Detect classifies an increment from the before/after state. Pure function;
// the store applies the identical sticky-flag rule inside its atomic update,
// so the classification here always agrees with what was persisted.
//
// The stored crossed flag, checked and set atomically with the increment, is
// the sole guard against duplicate crossings under concurrent commands.
func Detect(prevTotal, newTotal, goal int64, prevCrossed bool) Crossing {
	switch {
	case prevCrossed:
		return CrossingAlready
	case goal > 0 && newTotal >= goal && prevTotal < goal:
		return CrossingJust
	default:
		return CrossingBelow
	}
}
