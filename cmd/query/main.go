package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/kass/go-mt-sites/internal/logger"
	"github.com/kass/go-mt-sites/pkg/catalog"
	"github.com/kass/go-mt-sites/pkg/config"
	"github.com/kass/go-mt-sites/pkg/models"
	"github.com/kass/go-mt-sites/pkg/rtree"
)

func main() {
	var (
		indexFile = flag.String("i", "data/index.gob", "Index file path")
		queryType = flag.String("t", "box", "Query type: box, radius, nearest")
		// Box query parameters
		minLat = flag.Float64("min-lat", 0, "Minimum latitude (box query)")
		maxLat = flag.Float64("max-lat", 0, "Maximum latitude (box query)")
		minLon = flag.Float64("min-lon", 0, "Minimum longitude (box query)")
		maxLon = flag.Float64("max-lon", 0, "Maximum longitude (box query)")
		// Radius query parameters
		centerLat = flag.Float64("lat", 0, "Center latitude (radius/nearest query)")
		centerLon = flag.Float64("lon", 0, "Center longitude (radius/nearest query)")
		radius    = flag.Float64("radius", 10, "Radius in km (radius query)")
		// Nearest query parameters
		k = flag.Int("k", 10, "Number of nearest neighbors (nearest query)")
		// Attribute filters
		project  = flag.String("project", "", "Only sites of this project")
		survey   = flag.String("survey", "", "Only sites of this survey")
		dataType = flag.String("type", "", "Only sites offering this data type")
		// Output format
		outputJSON = flag.Bool("json", false, "Output results as JSON")
		limit      = flag.Int("limit", 100, "Maximum number of results to display")
	)
	flag.Parse()

	logger.Setup(config.Log{Level: "info", Format: "auto"})

	index := rtree.NewGeoIndex()
	if err := index.LoadFromFile(*indexFile); err != nil {
		log.Fatal().Err(err).Str("file", *indexFile).Msg("Failed to load index")
	}
	log.Info().Int64("sites", index.Count()).Str("file", *indexFile).Msg("Index loaded")

	var results []*models.Site
	var err error
	center := models.Location{Lat: *centerLat, Lon: *centerLon}
	filter := catalog.Filter{Project: *project, Survey: *survey, DataType: *dataType}

	switch *queryType {
	case "box":
		if *minLat == 0 && *maxLat == 0 && *minLon == 0 && *maxLon == 0 {
			log.Fatal().Msg("Box query requires --min-lat, --max-lat, --min-lon, --max-lon")
		}
		box := models.BoundingBox{
			BottomLeft: models.Location{Lat: *minLat, Lon: *minLon},
			TopRight:   models.Location{Lat: *maxLat, Lon: *maxLon},
		}
		results, err = index.QueryBox(box)
	case "radius":
		if *centerLat == 0 && *centerLon == 0 {
			log.Fatal().Msg("Radius query requires --lat and --lon for center point")
		}
		results, err = index.QueryRadius(center, *radius)
	case "nearest":
		if *centerLat == 0 && *centerLon == 0 {
			log.Fatal().Msg("Nearest query requires --lat and --lon for center point")
		}
		results = index.NearestMatching(center, *k, filter.Match)
	default:
		log.Fatal().Str("type", *queryType).Msg("Unknown query type")
	}
	if err != nil {
		log.Fatal().Err(err).Str("type", *queryType).Msg("Query failed")
	}

	results = filter.Apply(results)
	log.Info().Str("type", *queryType).Int("results", len(results)).Msg("Query finished")

	if len(results) > *limit {
		log.Info().Int("limit", *limit).Msg("Showing first results (use --limit to see more)")
		results = results[:*limit]
	}

	if *outputJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(results); err != nil {
			log.Fatal().Err(err).Msg("Failed to encode results")
		}
		return
	}

	for i, site := range results {
		if *queryType == "radius" || *queryType == "nearest" {
			dist := rtree.Distance(*centerLat, *centerLon, site.Location.Lat, site.Location.Lon)
			fmt.Printf("%d. %s: (%.6f, %.6f) - %.2f km\n",
				i+1, site.ID, site.Location.Lat, site.Location.Lon, dist)
		} else {
			fmt.Printf("%d. %s: (%.6f, %.6f)\n",
				i+1, site.ID, site.Location.Lat, site.Location.Lon)
		}
	}
}
