package boxcontroller

import "fmt"

// WillSplit reports whether a box at depth holding numPoints events should
// split. It reads configuration only and needs no lock.
func (bc *BoxController) WillSplit(numPoints uint64, depth int) bool {
	return numPoints > bc.splitThreshold && depth < bc.maxDepth
}

// ShouldSplitBoxes decides whether a bulk load that has added eventsAdded
// events to a tree of eventsInOutput events spread over numBoxes leaves
// should pause and split. Small trees are split once the added events pass
// significantEventsNumber; large ones once they pass a sixteenth of the tree.
// Independently, an average leaf occupancy above the split threshold triggers
// a split.
func (bc *BoxController) ShouldSplitBoxes(eventsInOutput, eventsAdded, numBoxes uint64) bool {
	if numBoxes == 0 {
		return false
	}

	comparisonPoint := eventsInOutput / 16
	if comparisonPoint < bc.significantEventsNumber {
		comparisonPoint = bc.significantEventsNumber
	}
	if eventsAdded > comparisonPoint {
		return true
	}

	// integer average, as the box counts are
	return eventsAdded/numBoxes > bc.splitThreshold
}

// AddingEventsParameters returns the task sizing used by parallel bulk insertion.
func (bc *BoxController) AddingEventsParameters() (eventsPerTask, numTasksPerBlock uint64) {
	return bc.addingEventsPerTask, bc.addingEventsNumTasksPerBlock
}

func (bc *BoxController) SetAddingEventsParameters(eventsPerTask, numTasksPerBlock uint64) error {
	if err := bc.checkConfigurable(); err != nil {
		return err
	}
	if eventsPerTask == 0 || numTasksPerBlock == 0 {
		return fmt.Errorf("%w: adding events parameters must be positive (got %d, %d)",
			ErrInvalidArgument, eventsPerTask, numTasksPerBlock)
	}
	bc.addingEventsPerTask = eventsPerTask
	bc.addingEventsNumTasksPerBlock = numTasksPerBlock
	return nil
}
