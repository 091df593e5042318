package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"MDEventDB/types"
	"MDEventDB/workspace"
)

func inspectCmd(flags *globalFlags) *cobra.Command {
	var (
		dump   bool
		region string
	)

	cmd := &cobra.Command{
		Use:   "inspect DIR",
		Short: "Print a summary of a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.setup()
			if err != nil {
				return err
			}
			w, err := workspace.Open(args[0], cfg, logger)
			if err != nil {
				return err
			}
			defer w.Close()

			out := cmd.OutOrStdout()
			printSummary(out, w.Summary())

			if region != "" {
				extents, err := parseRegion(region)
				if err != nil {
					return err
				}
				signal, errSq, err := w.Tree().IntegrateRegion(extents)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "region %s: signal=%g error_squared=%g\n", region, signal, errSq)
			}
			if dump {
				return w.Tree().Dump(out)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dump, "dump", false, "Print every box")
	cmd.Flags().StringVar(&region, "region", "", "Integrate signal over min:max,min:max,... ")
	return cmd
}

func printSummary(out io.Writer, s workspace.Summary) {
	fmt.Fprintf(out, "workspace %s\n", s.ID)
	fmt.Fprintf(out, "  directory:      %s\n", s.Dir)
	fmt.Fprintf(out, "  dimensions:     %d\n", s.NumDims)
	fmt.Fprintf(out, "  events:         %s\n", humanize.Comma(int64(s.NumEvents)))
	fmt.Fprintf(out, "  boxes:          %s leaves, %s grids\n",
		humanize.Comma(int64(s.Leaves)), humanize.Comma(int64(s.GridBoxes)))
	fmt.Fprintf(out, "  average depth:  %.3f\n", s.AverageDepth)
	fmt.Fprintf(out, "  max box id:     %d\n", s.MaxBoxID)
	fmt.Fprintf(out, "  events at max:  %s\n", humanize.Comma(int64(s.EventsAtMax)))
	fmt.Fprintf(out, "  storage:        %s", s.Backend)
	if s.StoragePath != "" {
		fmt.Fprintf(out, " (%s, %s events buffered)", s.StoragePath, humanize.Comma(int64(s.BufferedEvents)))
	}
	fmt.Fprintln(out)
	if s.LastLSN > 0 {
		fmt.Fprintf(out, "  journal lsn:    %d\n", s.LastLSN)
	}
}

// parseRegion reads "min:max,min:max,..." into extents.
func parseRegion(s string) ([]types.Extent, error) {
	var extents []types.Extent
	for i, part := range strings.Split(s, ",") {
		lo, hi, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("region dimension %d: want min:max, got %q", i, part)
		}
		minV, err := strconv.ParseFloat(lo, 64)
		if err != nil {
			return nil, fmt.Errorf("region dimension %d: %w", i, err)
		}
		maxV, err := strconv.ParseFloat(hi, 64)
		if err != nil {
			return nil, fmt.Errorf("region dimension %d: %w", i, err)
		}
		extents = append(extents, types.Extent{Min: minV, Max: maxV})
	}
	return extents, nil
}
