package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kass/go-mt-sites/pkg/ats"
)

var atsCmd = &cobra.Command{
	Use:   "ats FILE",
	Short: "Summarise an ATS time series",
	Args:  cobra.ExactArgs(1),
	RunE:  runATS,
}

var (
	atsWindow  int
	atsSegment int
	atsShow    int
)

func init() {
	atsCmd.Flags().IntVarP(&atsWindow, "window", "w", 4096, "Segment length in samples")
	atsCmd.Flags().IntVarP(&atsSegment, "segment", "s", 0, "Segment to print")
	atsCmd.Flags().IntVarP(&atsShow, "show", "n", 16, "Number of samples to print")

	rootCmd.AddCommand(atsCmd)
}

func runATS(cmd *cobra.Command, args []string) error {
	s, err := ats.Open(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Samples:  %d\n", s.Len())
	fmt.Fprintf(out, "Segments: %d of %d samples\n", s.Segments(atsWindow), atsWindow)

	seg := s.Segment(atsSegment, atsWindow)
	if len(seg) == 0 {
		return fmt.Errorf("segment %d is empty", atsSegment)
	}

	low, high := seg[0], seg[0]
	for _, v := range seg {
		low = min(low, v)
		high = max(high, v)
	}
	fmt.Fprintf(out, "Segment %d: %d samples, min %d, max %d\n", atsSegment, len(seg), low, high)
	fmt.Fprintln(out, seg[:min(atsShow, len(seg))])
	return nil
}
