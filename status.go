package states

import "fmt"

// Phase enumerates the lifecycle states a cell cycles through. Idle only
// occurs before the first settle of a future or stream backed cell; sync
// cells start directly in PhaseData.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseWaiting
	PhaseData
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseWaiting:
		return "waiting"
	case PhaseData:
		return "has_data"
	case PhaseError:
		return "has_error"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Status pairs the active phase with the error that produced it. Exactly one
// phase is active at a time; Err is non-nil only in PhaseError.
type Status struct {
	Phase Phase
	Err   error
}

func (s Status) IsIdle() bool {
	return s.Phase == PhaseIdle
}

func (s Status) IsWaiting() bool {
	return s.Phase == PhaseWaiting
}

func (s Status) HasData() bool {
	return s.Phase == PhaseData
}

func (s Status) HasError() bool {
	return s.Phase == PhaseError
}

func (s Status) String() string {
	if s.Phase == PhaseError && s.Err != nil {
		return fmt.Sprintf("%s: %v", s.Phase, s.Err)
	}
	return s.Phase.String()
}
