package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"MDEventDB/types"
	"MDEventDB/workspace"
)

type ingestOptions struct {
	input  string
	events int
	batch  int
	peaks  int
	seed   uint64
	noSave bool
}

func ingestCmd(flags *globalFlags) *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest DIR",
		Short: "Add events to a workspace, creating it if needed",
		Long: `Ingest adds events to the workspace in DIR and splits boxes as they fill.

Events are read from --input (CSV, one event per line: the coordinates,
optionally followed by signal and error squared) or generated: uniform
background plus --peaks Gaussian peaks inside the workspace extents.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.setup()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w, err := openOrCreate(args[0], cfg, logger)
			if err != nil {
				return err
			}
			if err := flags.serveMetrics(w, logger); err != nil {
				w.Close()
				return err
			}

			ingestErr := ingest(ctx, w, opts, logger)
			if ingestErr == nil && !opts.noSave {
				ingestErr = w.Save()
			}
			return errors.Join(ingestErr, w.Close())
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "CSV file of events, - for stdin")
	cmd.Flags().IntVarP(&opts.events, "events", "n", 100000, "Number of events to generate")
	cmd.Flags().IntVar(&opts.batch, "batch", 65536, "Events per AddEvents call")
	cmd.Flags().IntVar(&opts.peaks, "peaks", 3, "Gaussian peaks in generated data")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 1, "Random seed for generated data")
	cmd.Flags().BoolVar(&opts.noSave, "no-save", false, "Leave the events in the journal instead of saving")
	return cmd
}

func ingest(ctx context.Context, w *workspace.Workspace, opts ingestOptions, logger *slog.Logger) error {
	if opts.batch <= 0 {
		return fmt.Errorf("batch must be positive, got %d", opts.batch)
	}
	start := time.Now()
	var total, rejected uint64

	add := func(events []types.MDEvent) error {
		res, err := w.AddEvents(ctx, events)
		total += res.Added
		rejected += res.Rejected
		return err
	}

	if opts.input != "" {
		var r io.Reader = os.Stdin
		if opts.input != "-" {
			f, err := os.Open(opts.input)
			if err != nil {
				return fmt.Errorf("failed to open input: %w", err)
			}
			defer f.Close()
			r = f
		}
		if err := readEvents(bufio.NewReader(r), w.Controller().NumDims(), opts.batch, add); err != nil {
			return err
		}
	} else {
		gen := newGenerator(w.Tree().Root().Extents(), opts.peaks, opts.seed)
		for left := opts.events; left > 0; left -= opts.batch {
			if err := add(gen.next(min(left, opts.batch))); err != nil {
				return err
			}
		}
	}

	if err := w.SplitAll(ctx); err != nil {
		return err
	}

	elapsed := time.Since(start)
	logger.Info("ingest finished",
		slog.String("added", humanize.Comma(int64(total))),
		slog.String("rejected", humanize.Comma(int64(rejected))),
		slog.Duration("elapsed", elapsed.Round(time.Millisecond)))
	return nil
}

// readEvents parses CSV events and hands them to fn in batches. Lines
// starting with # are comments.
func readEvents(r io.Reader, numDims, batch int, fn func([]types.MDEvent) error) error {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	events := make([]types.MDEvent, 0, batch)
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		ev, err := parseEvent(fields, numDims)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, ev)
		if len(events) == batch {
			if err := fn(events); err != nil {
				return err
			}
			events = make([]types.MDEvent, 0, batch)
		}
	}
	if len(events) > 0 {
		return fn(events)
	}
	return nil
}

func parseEvent(fields []string, numDims int) (types.MDEvent, error) {
	if len(fields) != numDims && len(fields) != numDims+2 {
		return types.MDEvent{}, fmt.Errorf("want %d or %d fields, got %d", numDims, numDims+2, len(fields))
	}
	values := make([]float32, len(fields))
	for i, s := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
		if err != nil {
			return types.MDEvent{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		values[i] = float32(v)
	}
	ev := types.NewMDEvent(values[:numDims]...)
	if len(values) > numDims {
		ev.Signal = values[numDims]
		ev.ErrorSquared = values[numDims+1]
	}
	return ev, nil
}

// generator draws uniform background with Gaussian peaks on top.
type generator struct {
	rng     *rand.Rand
	extents []types.Extent
	peaks   [][]float64
}

func newGenerator(extents []types.Extent, peaks int, seed uint64) *generator {
	g := &generator{
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		extents: extents,
	}
	for range peaks {
		center := make([]float64, len(extents))
		for d, e := range extents {
			center[d] = e.Min + (0.2+0.6*g.rng.Float64())*e.Width()
		}
		g.peaks = append(g.peaks, center)
	}
	return g
}

func (g *generator) next(n int) []types.MDEvent {
	events := make([]types.MDEvent, n)
	for i := range events {
		center := make([]float32, len(g.extents))
		// half the events go to peaks when there are any
		var peak []float64
		if len(g.peaks) > 0 && g.rng.IntN(2) == 0 {
			peak = g.peaks[g.rng.IntN(len(g.peaks))]
		}
		for d, e := range g.extents {
			var x float64
			if peak != nil {
				x = peak[d] + g.rng.NormFloat64()*0.02*e.Width()
			} else {
				x = e.Min + g.rng.Float64()*e.Width()
			}
			xf := float32(math.Max(x, e.Min))
			if float64(xf) >= e.Max {
				xf = math.Nextafter32(float32(e.Max), float32(e.Min))
			}
			center[d] = xf
		}
		events[i] = types.NewMDEvent(center...)
	}
	return events
}
