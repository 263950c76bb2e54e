// Package gesture is the swipe-to-reveal state machine behind each history
// row: drag right past a threshold to expose the delete control, tap to
// select.
package gesture

import "fmt"

const (
	// MaxOffset caps how far a row can be dragged.
	MaxOffset = 90
	// Threshold is the offset a release has to exceed to stay revealed.
	Threshold = 50
	// RevealOffset is where a revealed row rests.
	RevealOffset = 70
	// TapSlop is the largest movement still counted as a tap.
	TapSlop = 4
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDragging
	PhaseRevealed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDragging:
		return "dragging"
	case PhaseRevealed:
		return "revealed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Outcome tells the caller what a release amounted to.
type Outcome int

const (
	OutcomeNone Outcome = iota
	// OutcomeSelect is a tap on the row.
	OutcomeSelect
	// OutcomeReveal left the delete control exposed.
	OutcomeReveal
	// OutcomeHide closed the row.
	OutcomeHide
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeSelect:
		return "select"
	case OutcomeReveal:
		return "reveal"
	case OutcomeHide:
		return "hide"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Machine tracks one row. The zero value is an idle row.
type Machine struct {
	phase  Phase
	offset float64
	startX float64
	moved  float64

	// phase before the current drag
	wasRevealed bool
}

func (m *Machine) Phase() Phase { return m.phase }

func (m *Machine) Offset() float64 { return m.offset }

// Revealed reports whether the delete control is exposed.
func (m *Machine) Revealed() bool {
	return m.phase == PhaseRevealed
}

// Down starts a drag at x. It is ignored while already dragging.
func (m *Machine) Down(x float64) {
	if m.phase == PhaseDragging {
		return
	}
	m.wasRevealed = m.phase == PhaseRevealed
	m.phase = PhaseDragging
	m.startX = x
	m.moved = 0
}

// Move follows the pointer. Only rightward travel from the start reveals,
// and never past MaxOffset.
func (m *Machine) Move(x float64) {
	if m.phase != PhaseDragging {
		return
	}
	dx := x - m.startX
	if d := abs(dx); d > m.moved {
		m.moved = d
	}
	if m.wasRevealed && m.moved <= TapSlop {
		return
	}
	m.offset = clamp(dx, 0, MaxOffset)
}

// Up ends the drag. A release with negligible movement is a tap and
// selects the row, leaving a revealed row revealed. Otherwise the row
// settles at RevealOffset or closes, depending on Threshold.
func (m *Machine) Up() Outcome {
	if m.phase != PhaseDragging {
		return OutcomeNone
	}
	if m.moved <= TapSlop {
		if m.wasRevealed {
			m.phase, m.offset = PhaseRevealed, RevealOffset
		} else {
			m.phase, m.offset = PhaseIdle, 0
		}
		return OutcomeSelect
	}
	return m.settle()
}

// Cancel ends the drag without a tap, as when the pointer leaves the row.
func (m *Machine) Cancel() Outcome {
	if m.phase != PhaseDragging {
		return OutcomeNone
	}
	return m.settle()
}

func (m *Machine) settle() Outcome {
	if m.offset > Threshold {
		m.phase, m.offset = PhaseRevealed, RevealOffset
		return OutcomeReveal
	}
	m.phase, m.offset = PhaseIdle, 0
	return OutcomeHide
}

// Reset closes the row.
func (m *Machine) Reset() {
	*m = Machine{}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
