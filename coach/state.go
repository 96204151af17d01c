package coach

import "fmt"

// State is one stage of a coaching turn. Turns advance through a fixed
// transition table; Failed is reachable from every non-terminal state.
type State int

const (
	StateIdle State = iota
	StateAssemblingContext
	StateBuildingPrompt
	StateAwaitingModel
	StateParsingResponse
	StateDispatchingFunctions
	StateFinalizing
	StatePersisting
	StateDone
	StateFailed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAssemblingContext:
		return "assembling_context"
	case StateBuildingPrompt:
		return "building_prompt"
	case StateAwaitingModel:
		return "awaiting_model"
	case StateParsingResponse:
		return "parsing_response"
	case StateDispatchingFunctions:
		return "dispatching_functions"
	case StateFinalizing:
		return "finalizing"
	case StatePersisting:
		return "persisting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transitions is the only legal forward edge set. The model/function loop
// is the AwaitingModel -> ParsingResponse -> DispatchingFunctions ->
// AwaitingModel cycle, bounded by the iteration cap.
var transitions = map[State][]State{
	StateIdle:                 {StateAssemblingContext},
	StateAssemblingContext:    {StateBuildingPrompt},
	StateBuildingPrompt:       {StateAwaitingModel},
	StateAwaitingModel:        {StateParsingResponse, StateFinalizing},
	StateParsingResponse:      {StateDispatchingFunctions, StateFinalizing},
	StateDispatchingFunctions: {StateAwaitingModel, StateFinalizing},
	StateFinalizing:           {StatePersisting},
	StatePersisting:           {StateDone},
}

// validateTransitions checks the table is closed over declared states and
// every non-terminal state can make progress. Called once at construction.
func validateTransitions() error {
	for from, tos := range transitions {
		if len(tos) == 0 {
			return fmt.Errorf("state %s has no outgoing transitions", from)
		}
		for _, to := range tos {
			if to <= from && !(from == StateDispatchingFunctions && to == StateAwaitingModel) {
				return fmt.Errorf("transition %s -> %s is not a forward edge", from, to)
			}
		}
	}
	for s := StateIdle; s < StateDone; s++ {
		if _, ok := transitions[s]; !ok {
			return fmt.Errorf("state %s missing from transition table", s)
		}
	}
	return nil
}

func legalTransition(from, to State) bool {
	if to == StateFailed {
		return from != StateDone
	}
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
