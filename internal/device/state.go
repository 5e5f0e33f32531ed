package device

import "fmt"

// State is a state of the device state machine.
type State int

const (
	StateIdle State = iota
	StateCooldownCheck
	StateSigning
	StateOutput
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCooldownCheck:
		return "cooldown_check"
	case StateSigning:
		return "signing"
	case StateOutput:
		return "output"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stats counts what happened to triggers since the loop started.
type Stats struct {
	Triggers     uint64 `json:"triggers"`
	Debounced    uint64 `json:"debounced"`
	CooledDown   uint64 `json:"cooled_down"`
	Failed       uint64 `json:"failed"`
	Created      uint64 `json:"created"`
	OutputFailed uint64 `json:"output_failed"`
}
