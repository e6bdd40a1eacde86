package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kass/go-mt-sites/pkg/catalog"
	"github.com/kass/go-mt-sites/pkg/feature"
	"github.com/kass/go-mt-sites/pkg/models"
	"github.com/kass/go-mt-sites/pkg/rtree"
)

var errInvalid = errors.New("invalid site records")

var validateCmd = &cobra.Command{
	Use:   "validate FILE...",
	Short: "Check site records",
	Long:  `Decode each GeoJSON file and report every violated rule.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

var showCmd = &cobra.Command{
	Use:   "show FILE|ID",
	Short: "Print a site record",
	Long:  `Print a site record read from a file, or looked up by site id in the catalog directory.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the spatial index from the catalog directory",
	RunE:  runIndex,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the catalog as a GeoJSON FeatureCollection",
	RunE:  runExport,
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the spatial index",
}

var queryBoxCmd = &cobra.Command{
	Use:   "box",
	Short: "Sites inside a bounding box",
	RunE:  runQueryBox,
}

var queryRadiusCmd = &cobra.Command{
	Use:   "radius",
	Short: "Sites within a distance of a point",
	RunE:  runQueryRadius,
}

var queryNearestCmd = &cobra.Command{
	Use:   "nearest",
	Short: "Sites nearest to a point",
	RunE:  runQueryNearest,
}

var (
	minLat, minLon float64
	maxLat, maxLon float64
	lat, lon       float64
	radiusKm       float64
	numNeighbors   int
	outFile        string
	asJSON         bool

	project, survey   string
	dataType, product string
	from, to          string
)

func init() {
	exportCmd.Flags().StringVarP(&outFile, "out", "o", "", "Output file (default stdout)")

	for _, c := range []*cobra.Command{queryBoxCmd, queryRadiusCmd, queryNearestCmd} {
		c.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
		c.Flags().StringVar(&project, "project", "", "Only sites of this project")
		c.Flags().StringVar(&survey, "survey", "", "Only sites of this survey")
		c.Flags().StringVar(&dataType, "type", "", "Only sites offering this data type")
		c.Flags().StringVar(&product, "provides", "", "Only sites providing this product")
		c.Flags().StringVar(&from, "from", "", "Acquisition window start")
		c.Flags().StringVar(&to, "to", "", "Acquisition window end")
	}

	queryBoxCmd.Flags().Float64Var(&minLat, "min-lat", -90, "Southern edge")
	queryBoxCmd.Flags().Float64Var(&minLon, "min-lon", -180, "Western edge")
	queryBoxCmd.Flags().Float64Var(&maxLat, "max-lat", 90, "Northern edge")
	queryBoxCmd.Flags().Float64Var(&maxLon, "max-lon", 180, "Eastern edge")

	for _, c := range []*cobra.Command{queryRadiusCmd, queryNearestCmd} {
		c.Flags().Float64Var(&lat, "lat", 0, "Latitude")
		c.Flags().Float64Var(&lon, "lon", 0, "Longitude")
		c.MarkFlagRequired("lat")
		c.MarkFlagRequired("lon")
	}
	queryRadiusCmd.Flags().Float64VarP(&radiusKm, "radius", "r", 50.0, "Search radius in km")
	queryNearestCmd.Flags().IntVarP(&numNeighbors, "neighbors", "n", 10, "Number of nearest neighbors to find")

	queryCmd.AddCommand(queryBoxCmd, queryRadiusCmd, queryNearestCmd)
	rootCmd.AddCommand(validateCmd, showCmd, indexCmd, exportCmd, queryCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	invalid := 0
	for _, path := range args {
		f, err := feature.DecodeFile(path)
		if err == nil {
			err = feature.Validate(f)
		}
		if err == nil {
			fmt.Fprintf(out, "OK      %s (%s)\n", path, f.SiteID())
			continue
		}

		invalid++
		fmt.Fprintf(out, "INVALID %s\n", path)
		var verr *feature.ValidationError
		if errors.As(err, &verr) {
			for _, v := range verr.Violations {
				fmt.Fprintf(out, "        %s\n", v)
			}
		} else {
			fmt.Fprintf(out, "        %v\n", err)
		}
	}

	if invalid > 0 {
		return fmt.Errorf("%w: %d of %d", errInvalid, invalid, len(args))
	}
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	f, err := findFeature(cmd, args[0])
	if err != nil {
		return err
	}
	printFeature(cmd.OutOrStdout(), f)
	return nil
}

func findFeature(cmd *cobra.Command, arg string) (*feature.Feature, error) {
	if _, err := os.Stat(arg); err == nil {
		return feature.DecodeFile(arg)
	}
	c, _, err := catalog.Load(cmd.Context(), cfg.Catalog.Dir, catalogOptions())
	if err != nil {
		return nil, err
	}
	return c.Get(arg)
}

func printFeature(w io.Writer, f *feature.Feature) {
	fmt.Fprintf(w, "ID:          %s\n", f.SiteID())
	fmt.Fprintf(w, "Location:    %.5f, %.5f (lat, lon)\n", f.Lat(), f.Lon())
	for _, key := range f.MapKeys() {
		fmt.Fprintf(w, "%-12s %v\n", key+":", f.Properties[key])
	}
	if provides := f.Provides(); len(provides) > 0 {
		fmt.Fprintf(w, "Provides:    %s\n", strings.Join(provides, ", "))
	}
	if types := f.DataTypes(); len(types) > 0 {
		fmt.Fprintf(w, "DataTypes:   %s\n", strings.Join(types, ", "))
	}
	for _, l := range f.Links() {
		fmt.Fprintf(w, "Link:        %s %s [%s] %s\n", l.Key, l.Href, l.Type, l.Label)
	}
}

func catalogOptions() catalog.Options {
	return catalog.Options{Workers: cfg.Catalog.Workers, Partitions: cfg.Index.Partitions}
}

func runIndex(cmd *cobra.Command, args []string) error {
	fmt.Fprintf(cmd.OutOrStdout(), "Loading sites from %s using %d workers...\n", cfg.Catalog.Dir, cfg.Catalog.Workers)

	c, report, err := catalog.Load(cmd.Context(), cfg.Catalog.Dir, catalogOptions())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d of %d files in %v\n", report.Loaded, report.Files, report.Duration)
	for _, r := range report.Rejected {
		fmt.Fprintf(cmd.OutOrStdout(), "Rejected %s: %s\n", r.Path, r.Reason)
	}
	if len(report.Skipped) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Skipped %d non-GeoJSON files\n", len(report.Skipped))
	}

	if err := c.Index().SaveToFile(cfg.Index.File); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Index saved to %s\n", cfg.Index.File)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	c, _, err := catalog.Load(cmd.Context(), cfg.Catalog.Dir, catalogOptions())
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if outFile != "" {
		file, err := os.Create(outFile)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", outFile, err)
		}
		defer file.Close()
		w = file
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c.FeatureCollection()); err != nil {
		return fmt.Errorf("failed to encode collection: %w", err)
	}
	log.Info().Int("sites", c.Len()).Str("out", outFile).Msg("Catalog exported")
	return nil
}

func loadIndex() (*rtree.GeoIndex, error) {
	index := rtree.NewGeoIndexWithWorkers(cfg.Index.Partitions)
	start := time.Now()
	if err := index.LoadFromFile(cfg.Index.File); err != nil {
		return nil, fmt.Errorf("failed to load index: %w", err)
	}
	log.Debug().Int64("sites", index.Count()).Dur("duration", time.Since(start)).Msg("Index loaded")
	return index, nil
}

func queryFilter() (catalog.Filter, error) {
	q := catalog.Filter{Project: project, Survey: survey, DataType: dataType, Provides: product}
	var err error
	if from != "" {
		if q.From, err = feature.ParseTime(from); err != nil {
			return q, fmt.Errorf("invalid --from: %w", err)
		}
	}
	if to != "" {
		if q.To, err = feature.ParseTime(to); err != nil {
			return q, fmt.Errorf("invalid --to: %w", err)
		}
	}
	return q, nil
}

func runQueryBox(cmd *cobra.Command, args []string) error {
	box := models.BoundingBox{
		BottomLeft: models.Location{Lat: minLat, Lon: minLon},
		TopRight:   models.Location{Lat: maxLat, Lon: maxLon},
	}
	return runQuery(cmd, func(index *rtree.GeoIndex, _ catalog.Filter) ([]*models.Site, error) {
		return index.QueryBox(box)
	})
}

func runQueryRadius(cmd *cobra.Command, args []string) error {
	return runQuery(cmd, func(index *rtree.GeoIndex, _ catalog.Filter) ([]*models.Site, error) {
		return index.QueryRadius(models.Location{Lat: lat, Lon: lon}, radiusKm)
	})
}

func runQueryNearest(cmd *cobra.Command, args []string) error {
	return runQuery(cmd, func(index *rtree.GeoIndex, q catalog.Filter) ([]*models.Site, error) {
		return index.NearestMatching(models.Location{Lat: lat, Lon: lon}, numNeighbors, q.Match), nil
	})
}

// runQuery prints the sites found by search that also match the attribute
// flags, in the order search returned them
func runQuery(cmd *cobra.Command, search func(*rtree.GeoIndex, catalog.Filter) ([]*models.Site, error)) error {
	q, err := queryFilter()
	if err != nil {
		return err
	}
	index, err := loadIndex()
	if err != nil {
		return err
	}

	start := time.Now()
	sites, err := search(index, q)
	if err != nil {
		return err
	}
	sites = q.Apply(sites)
	log.Debug().Int("results", len(sites)).Dur("duration", time.Since(start)).Msg("Query finished")

	return printSites(cmd.OutOrStdout(), sites)
}

func printSites(w io.Writer, sites []*models.Site) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sites)
	}
	for _, s := range sites {
		fmt.Fprintf(w, "%-32s %9.4f %9.4f  %s / %s\n", s.ID, s.Location.Lat, s.Location.Lon, s.Project, s.Survey)
	}
	fmt.Fprintf(w, "%d sites\n", len(sites))
	return nil
}
