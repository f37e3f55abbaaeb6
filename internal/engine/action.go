package engine

import (
	"time"

	"github.com/qloooooop1/guardian/internal/policy"
)

// ActionKind is the enforcement outcome for one message.
type ActionKind string

const (
	ActionNone   ActionKind = "none"
	ActionDelete ActionKind = "delete" // delete the message, nothing else
	ActionWarn   ActionKind = "warn"   // delete and post a warning
	ActionMute   ActionKind = "mute"   // delete and silence the sender
	ActionBan    ActionKind = "ban"    // delete and remove the sender
)

// Action is the enforcement decision for one message. Any kind other than
// None implies the triggering message is deleted.
type Action struct {
	Kind         ActionKind
	MuteDuration time.Duration // set when Kind == ActionMute
}

// Decide maps the chat's enforcement mode and the user's updated counters to
// an action. violations is the count including the current offense;
// warnings is the number of warnings already issued. Pure function — the
// tracker updates happen in the caller.
func Decide(pol *policy.ChatPolicy, violations, warnings int) Action {
	switch pol.Mode {
	case policy.ModeDeleteOnly:
		return Action{Kind: ActionDelete}

	case policy.ModeMute:
		return Action{Kind: ActionMute, MuteDuration: pol.MuteFor()}

	case policy.ModeBan:
		return Action{Kind: ActionBan}

	case policy.ModeMuteThenBan:
		if violations <= 1 {
			return Action{Kind: ActionMute, MuteDuration: pol.MuteFor()}
		}
		return Action{Kind: ActionBan}

	case policy.ModeWarnThenMute:
		if warnings+1 >= policy.WarnThreshold {
			return Action{Kind: ActionMute, MuteDuration: pol.MuteFor()}
		}
		return Action{Kind: ActionWarn}

	case policy.ModeWarnThenBan:
		if warnings+1 >= policy.WarnThreshold {
			return Action{Kind: ActionBan}
		}
		return Action{Kind: ActionWarn}
	}

	// Unknown mode: fall back to the default enforcement.
	return Action{Kind: ActionBan}
}
