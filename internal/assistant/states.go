package assistant

import openai "github.com/sashabaranov/go-openai"

// RunState 远端 run 生命周期状态
// RunState is the lifecycle state of one remote run. Every poll maps
// the wire status onto this enum so the orchestrator can switch
// exhaustively instead of comparing strings.
type RunState int

const (
	StateUnknown RunState = iota
	StateQueued
	StateInProgress
	StateRequiresAction
	StateCancelling
	StateCancelled
	StateFailed
	StateCompleted
	StateExpired
)

func (s RunState) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateInProgress:
		return "in_progress"
	case StateRequiresAction:
		return "requires_action"
	case StateCancelling:
		return "cancelling"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	case StateCompleted:
		return "completed"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Terminal reports whether the run can make no further progress.
func (s RunState) Terminal() bool {
	switch s {
	case StateCancelled, StateFailed, StateCompleted, StateExpired:
		return true
	default:
		return false
	}
}

func stateFromStatus(status openai.RunStatus) RunState {
	switch status {
	case openai.RunStatusQueued:
		return StateQueued
	case openai.RunStatusInProgress:
		return StateInProgress
	case openai.RunStatusRequiresAction:
		return StateRequiresAction
	case openai.RunStatusCancelling:
		return StateCancelling
	case openai.RunStatusCancelled:
		return StateCancelled
	case openai.RunStatusFailed:
		return StateFailed
	case openai.RunStatusCompleted:
		return StateCompleted
	case openai.RunStatusExpired:
		return StateExpired
	default:
		return StateUnknown
	}
}
