package mdbox

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"MDEventDB/types"
)

// Dump writes a human-readable description of the tree to w: a summary of
// the controller statistics, then every box level by level.
func (t *BoxTree) Dump(w io.Writer) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p := func(format string, args ...interface{}) { fmt.Fprintf(w, format, args...) }
	pln := func(s string) { fmt.Fprintln(w, s) }

	stats := t.bc.Statistics()
	signal, errSq := t.root.Signal()
	p("Box tree: %d dims, %s events, signal %.6g (err² %.6g)\n",
		t.numDims, humanize.Comma(int64(t.root.NumEvents())), signal, errSq)
	p("  Controller: split threshold %s, split into %s, max depth %d, max id %d\n",
		humanize.Comma(int64(t.bc.SplitThreshold())), formatSplit(t.bc.SplitIntoAll()), t.bc.MaxDepth(), stats.MaxID)
	p("  Boxes: %s leaves, %s grid boxes, average depth %.3f, events at max depth %s\n",
		humanize.Comma(int64(stats.TotalNumMDBoxes)), humanize.Comma(int64(stats.TotalNumMDGridBoxes)),
		stats.AverageDepth, humanize.Comma(int64(stats.NumEventsAtMax)))
	if name := t.bc.Filename(); name != "" {
		p("  File backed: %s\n", name)
	}

	pln("\n  Boxes (BFS):")
	pln("  ---")

	queue := []*Box{t.root}
	level := 0
	for len(queue) > 0 {
		size := len(queue)
		p("  Level %d:\n", level)
		for _, b := range queue[:size] {
			if b.boxType == BoxGrid {
				p("    [box %d] GRID split=%s events=%s extents=%s\n",
					b.id, formatSplit(b.splitInto), humanize.Comma(int64(b.NumEvents())), formatExtents(b.extents))
				queue = append(queue, b.children...)
				continue
			}
			b.mu.Lock()
			where := "memory"
			if b.onDisk {
				where = "disk"
			}
			p("    [box %d] LEAF events=%s (%s) extents=%s\n",
				b.id, humanize.Comma(int64(b.numEvents)), where, formatExtents(b.extents))
			b.mu.Unlock()
		}
		pln("  ---")
		queue = queue[size:]
		level++
	}
	return nil
}

func formatSplit(splitInto []int) string {
	parts := make([]string, len(splitInto))
	for i, s := range splitInto {
		parts[i] = fmt.Sprint(s)
	}
	return strings.Join(parts, "x")
}

func formatExtents(extents []types.Extent) string {
	parts := make([]string, len(extents))
	for i, ext := range extents {
		parts[i] = ext.String()
	}
	return strings.Join(parts, "x")
}
