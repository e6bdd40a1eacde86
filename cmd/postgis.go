package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kass/go-mt-sites/pkg/catalog"
	"github.com/kass/go-mt-sites/pkg/models"
	"github.com/kass/go-mt-sites/pkg/postgis"
)

var postgisCmd = &cobra.Command{
	Use:   "postgis",
	Short: "Store and query sites in PostGIS",
}

var postgisLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load the catalog directory into PostGIS",
	RunE:  runPostGISLoad,
}

var postgisQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Bounding box or radius query against PostGIS",
	RunE:  runPostGISQuery,
}

var postgisStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print database statistics",
	RunE:  runPostGISStats,
}

var (
	resetSchema bool
	pgRadiusKm  float64
)

func init() {
	postgisLoadCmd.Flags().BoolVar(&resetSchema, "reset", false, "Drop the sites table first")

	postgisQueryCmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	postgisQueryCmd.Flags().Float64Var(&minLat, "min-lat", -90, "Southern edge")
	postgisQueryCmd.Flags().Float64Var(&minLon, "min-lon", -180, "Western edge")
	postgisQueryCmd.Flags().Float64Var(&maxLat, "max-lat", 90, "Northern edge")
	postgisQueryCmd.Flags().Float64Var(&maxLon, "max-lon", 180, "Eastern edge")
	postgisQueryCmd.Flags().Float64Var(&lat, "lat", 0, "Latitude of a radius query")
	postgisQueryCmd.Flags().Float64Var(&lon, "lon", 0, "Longitude of a radius query")
	postgisQueryCmd.Flags().Float64VarP(&pgRadiusKm, "radius", "r", 0, "Radius in km, enables a radius query")

	postgisCmd.AddCommand(postgisLoadCmd, postgisQueryCmd, postgisStatsCmd)
	rootCmd.AddCommand(postgisCmd)
}

func connect(cmd *cobra.Command) (*postgis.PostGISIndex, error) {
	log.Debug().Str("host", cfg.PostGIS.Host).Int("port", cfg.PostGIS.Port).Str("database", cfg.PostGIS.Database).Msg("Connecting to PostGIS")
	return postgis.NewPostGISIndex(cmd.Context(), cfg.PostGIS)
}

func runPostGISLoad(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, report, err := catalog.Load(ctx, cfg.Catalog.Dir, catalogOptions())
	if err != nil {
		return err
	}

	db, err := connect(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	if resetSchema {
		if err := db.DropSchema(ctx); err != nil {
			return err
		}
	}
	if err := db.InitSchema(ctx); err != nil {
		return err
	}

	start := time.Now()
	if err := db.BulkInsertSites(ctx, c.Sites()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Inserted %d sites in %v (%d rejected)\n", report.Loaded, time.Since(start), len(report.Rejected))

	return db.CreateSpatialIndex(ctx)
}

func runPostGISQuery(cmd *cobra.Command, args []string) error {
	db, err := connect(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	var sites []*models.Site
	if pgRadiusKm > 0 {
		sites, err = db.QueryRadius(cmd.Context(), models.Location{Lat: lat, Lon: lon}, pgRadiusKm)
	} else {
		sites, err = db.QueryBox(cmd.Context(), models.BoundingBox{
			BottomLeft: models.Location{Lat: minLat, Lon: minLon},
			TopRight:   models.Location{Lat: maxLat, Lon: maxLon},
		})
	}
	if err != nil {
		return err
	}
	return printSites(cmd.OutOrStdout(), sites)
}

func runPostGISStats(cmd *cobra.Command, args []string) error {
	db, err := connect(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.GetDatabaseStats(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Database size: %s\n", stats.DatabaseSize)
	fmt.Fprintf(out, "Table size:    %s\n", stats.TableSize)
	fmt.Fprintf(out, "Index size:    %s\n", stats.IndexSize)
	fmt.Fprintf(out, "Sites:         %d\n", stats.RowCount)
	return nil
}
