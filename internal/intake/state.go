package intake

import "fmt"

// Phase is the coarse state of a Driver.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseProcessingInvoice
	PhaseProcessingParts
	PhaseFinished
	PhaseAutoClosing
)

func (p Phase) String() string {
	switch p {
	case PhaseProcessingInvoice:
		return "processing_invoice"
	case PhaseProcessingParts:
		return "processing_parts"
	case PhaseFinished:
		return "finished"
	case PhaseAutoClosing:
		return "auto_closing"
	default:
		return "idle"
	}
}

// State pinpoints the driver's position in a batch. Invoice and Part are -1
// when not applicable.
type State struct {
	Phase   Phase
	Invoice int
	Part    int
}

var idleState = State{Phase: PhaseIdle, Invoice: -1, Part: -1}

func (s State) String() string {
	switch s.Phase {
	case PhaseProcessingInvoice:
		return fmt.Sprintf("%s(%d)", s.Phase, s.Invoice)
	case PhaseProcessingParts:
		return fmt.Sprintf("%s(%d,%d)", s.Phase, s.Invoice, s.Part)
	default:
		return s.Phase.String()
	}
}

// Observer is told about every state transition.
type Observer interface {
	OnTransition(from, to State)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(from, to State)

func (f ObserverFunc) OnTransition(from, to State) { f(from, to) }
