package main

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kass/go-mt-sites/pkg/tf"
)

var tfCmd = &cobra.Command{
	Use:   "tf FILE",
	Short: "Inspect and clean a transfer function file",
	Long: `Print apparent resistivity, phase and relative error of a tensor
component. Samples can be removed by index or by a region in
(log10 period, value) space, then written with --out.`,
	Args: cobra.ExactArgs(1),
	RunE: runTF,
}

var (
	tfComponent  string
	tfRegion     string
	tfQuantities []string
	tfDelete     []int
	tfUndo       int
	tfOut        string
)

func init() {
	tfCmd.Flags().StringVar(&tfComponent, "component", tf.XY, "Tensor component (xx, xy, yx, yy, det)")
	tfCmd.Flags().StringVar(&tfRegion, "region", "", "Delete samples inside minX,maxX,minY,maxY")
	tfCmd.Flags().StringSliceVar(&tfQuantities, "quantity", []string{"rho"}, "Quantities the region applies to (re, im, rho, phase)")
	tfCmd.Flags().IntSliceVar(&tfDelete, "delete", nil, "Delete samples by index")
	tfCmd.Flags().IntVar(&tfUndo, "undo", 0, "Undo this many of the deletions before saving")
	tfCmd.Flags().StringVarP(&tfOut, "out", "o", "", "Write the edited document to this file")

	rootCmd.AddCommand(tfCmd)
}

func runTF(cmd *cobra.Command, args []string) error {
	doc, err := tf.Load(args[0])
	if err != nil {
		return err
	}
	ed := tf.NewEditor(doc)

	// Delete from the highest index down so earlier indices stay valid
	indices := append([]int(nil), tfDelete...)
	sort.Sort(sort.Reverse(sort.IntSlice(indices)))
	for _, i := range indices {
		if err := ed.DeleteIndex(i); err != nil {
			return err
		}
	}

	if tfRegion != "" {
		region, err := parseRegion(tfRegion)
		if err != nil {
			return err
		}
		quantities := make([]tf.Quantity, 0, len(tfQuantities))
		for _, s := range tfQuantities {
			q, err := tf.ParseQuantity(s)
			if err != nil {
				return err
			}
			quantities = append(quantities, q)
		}
		n, err := ed.DeleteInRegion(tfComponent, region, quantities...)
		if err != nil {
			return err
		}
		log.Info().Int("removed", n).Str("component", tfComponent).Msg("Region deleted")
	}

	for i := 0; i < tfUndo; i++ {
		if !ed.Undo() {
			break
		}
	}

	if err := printComponent(cmd.OutOrStdout(), ed.Document(), tfComponent); err != nil {
		return err
	}

	if tfOut != "" {
		if err := ed.Document().Save(tfOut); err != nil {
			return err
		}
		log.Info().Str("out", tfOut).Int("samples", ed.Document().Len()).Msg("Transfer function saved")
	}
	return nil
}

// parseRegion reads "minX,maxX,minY,maxY"
func parseRegion(s string) (tf.Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return tf.Region{}, fmt.Errorf("region %q: want minX,maxX,minY,maxY", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return tf.Region{}, fmt.Errorf("region %q: %w", s, err)
		}
		v[i] = f
	}
	return tf.Region{
		MinX: math.Min(v[0], v[1]), MaxX: math.Max(v[0], v[1]),
		MinY: math.Min(v[2], v[3]), MaxY: math.Max(v[2], v[3]),
	}, nil
}

func printComponent(w io.Writer, doc *tf.Document, name string) error {
	c, err := doc.Component(name)
	if err != nil {
		return err
	}
	rho := c.ApparentResistivity(doc.Freq)
	phase := c.Phase()
	relErr := c.RelativeError()

	fmt.Fprintf(w, "%s  %s / %s  component %s\n", doc.Header.Site.Name, doc.Header.Project, doc.Header.Survey, name)
	fmt.Fprintf(w, "%5s %12s %12s %12s %9s %8s\n", "i", "freq [Hz]", "period [s]", "rho [Ohm-m]", "phase", "rel.err")
	for i, f := range doc.Freq {
		fmt.Fprintf(w, "%5d %12.5g %12.5g %12.5g %9.2f %8.3f\n", i, f, 1/f, rho[i], phase[i], relErr[i])
	}
	return nil
}
