package session

import "wandcaster/protocol"

// Edge is a transition of the all-pads-held aggregate.
type Edge int

const (
	EdgeNone Edge = iota
	EdgePressed
	EdgeReleased
)

func (e Edge) String() string {
	switch e {
	case EdgePressed:
		return "pressed"
	case EdgeReleased:
		return "released"
	default:
		return "none"
	}
}

// ButtonState is the observable per-pad state.
type ButtonState struct {
	Big    bool  `json:"big"`
	Top    bool  `json:"top"`
	Middle bool  `json:"middle"`
	Bottom bool  `json:"bottom"`
	Mask   uint8 `json:"mask"`
}

// AllPressed reports whether all four pads are held.
func (s ButtonState) AllPressed() bool {
	return s.Mask&protocol.ButtonsAll == protocol.ButtonsAll
}

func stateFromMask(mask uint8) ButtonState {
	b := protocol.Buttons{Mask: mask}
	return ButtonState{
		Big:    b.Pressed(protocol.ButtonBig),
		Top:    b.Pressed(protocol.ButtonTop),
		Middle: b.Pressed(protocol.ButtonMiddle),
		Bottom: b.Pressed(protocol.ButtonBottom),
		Mask:   mask & protocol.ButtonsAll,
	}
}

// Buttons turns pad masks into press/release edges of the four-pad grip.
// It is not safe for concurrent use.
type Buttons struct {
	state ButtonState
}

// Update applies a new mask. Partial masks update the per-pad state and never
// produce an edge.
func (b *Buttons) Update(mask uint8) (ButtonState, Edge) {
	was := b.state.AllPressed()
	b.state = stateFromMask(mask)
	now := b.state.AllPressed()
	switch {
	case now && !was:
		return b.state, EdgePressed
	case was && !now:
		return b.state, EdgeReleased
	default:
		return b.state, EdgeNone
	}
}

// Reset releases every pad without producing an edge.
func (b *Buttons) Reset() { b.state = ButtonState{} }

// State returns the last applied state.
func (b *Buttons) State() ButtonState { return b.state }
