package kernel

import "time"

// Phase identifies a stage of the execution loop.
type Phase string

const (
	PhaseProfile    Phase = "profile"
	PhasePlan       Phase = "plan"
	PhaseExecute    Phase = "execute"
	PhaseConverge   Phase = "converge"
	PhaseSynthesize Phase = "synthesize"
)

// Event is one observable moment in an execution. Consumers that fall behind
// lose events rather than stalling the kernel.
type Event struct {
	Phase   Phase     `json:"phase"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	Pass    int       `json:"pass,omitempty"`
	At      time.Time `json:"at"`
}

// emit sends an event without ever blocking the loop.
func (o *Orchestrator) emit(phase Phase, kind, message string, pass int) {
	if o.events == nil {
		return
	}
	ev := Event{Phase: phase, Kind: kind, Message: message, Pass: pass, At: time.Now()}
	select {
	case o.events <- ev:
	default:
	}
}
