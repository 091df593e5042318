package types

import "fmt"

// MDEvent is one weighted event record positioned in N-dimensional space.
// len(Center) is the dimensionality of the workspace it belongs to.
type MDEvent struct {
	Signal       float32
	ErrorSquared float32
	RunIndex     uint16
	DetectorID   uint32
	Center       []float32
}

// NewMDEvent builds an event with unit signal and error at the given coordinates.
func NewMDEvent(center ...float32) MDEvent {
	return MDEvent{
		Signal:       1,
		ErrorSquared: 1,
		Center:       append([]float32(nil), center...),
	}
}

func (e MDEvent) NumDims() int {
	return len(e.Center)
}

// Clone returns a copy that does not share the coordinate slice.
func (e MDEvent) Clone() MDEvent {
	out := e
	out.Center = append([]float32(nil), e.Center...)
	return out
}

func (e MDEvent) String() string {
	return fmt.Sprintf("event{signal=%g err2=%g run=%d det=%d at=%v}",
		e.Signal, e.ErrorSquared, e.RunIndex, e.DetectorID, e.Center)
}

// EventBlock is the unit of transfer between a leaf box and the disk-backed store.
type EventBlock struct {
	NumDims int
	Events  []MDEvent
}

func NewEventBlock(numDims int, events []MDEvent) EventBlock {
	return EventBlock{NumDims: numDims, Events: events}
}

func (b EventBlock) Len() int {
	return len(b.Events)
}

// Clone deep-copies the block so the caller may mutate the result freely.
func (b EventBlock) Clone() EventBlock {
	out := EventBlock{NumDims: b.NumDims, Events: make([]MDEvent, len(b.Events))}
	for i, ev := range b.Events {
		out.Events[i] = ev.Clone()
	}
	return out
}
