package domain

// AgentState tracks where the loop sits between user input and final answer.
//
// A turn starts in StateAwaitingUserInput. Appending the prompt moves it to
// StateAwaitingModelResponse. A reply with tool calls moves it to
// StateDispatchingTool and back to StateAwaitingModelResponse once results
// are appended; a reply without tool calls ends the turn in StateDone.
type AgentState int

const (
	StateAwaitingUserInput AgentState = iota
	StateAwaitingModelResponse
	StateDispatchingTool
	StateDone
)

func (s AgentState) String() string {
	switch s {
	case StateAwaitingUserInput:
		return "awaiting_user_input"
	case StateAwaitingModelResponse:
		return "awaiting_model_response"
	case StateDispatchingTool:
		return "dispatching_tool"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}
