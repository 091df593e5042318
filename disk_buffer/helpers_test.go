package diskbuffer

import (
	"MDEventDB/types"
)

// makeBlock builds a 2-d block of n events whose first coordinate encodes the box id.
func makeBlock(boxID uint64, n int) types.EventBlock {
	events := make([]types.MDEvent, n)
	for i := range events {
		events[i] = types.NewMDEvent(float32(boxID), float32(i))
	}
	return types.NewEventBlock(2, events)
}
