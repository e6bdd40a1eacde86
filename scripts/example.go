package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/kass/go-mt-sites/pkg/catalog"
	"github.com/kass/go-mt-sites/pkg/feature"
	"github.com/kass/go-mt-sites/pkg/models"
	"github.com/kass/go-mt-sites/pkg/rtree"
)

func main() {
	// A handful of stations along the Kiruna profile
	stations := []struct {
		name     string
		lat, lon float64
	}{
		{"KIR010", 67.8790, 20.0551},
		{"KIR011", 67.8671, 20.1402},
		{"KIR012", 67.8558, 20.2253},
		{"KIR013", 67.8500, 20.7000},
		{"SVA001", 67.6466, 21.0564},
		{"GAL004", 67.1339, 20.6528},
		{"ABI002", 68.3495, 18.8312},
	}

	c := catalog.New(4)
	for _, s := range stations {
		f := feature.New(s.name, s.lon, s.lat)
		f.Properties[feature.KeyProject] = "DREX"
		f.Properties[feature.KeySurvey] = "Kiruna 2021"
		f.Properties[feature.KeyDataTypes] = []string{"EDI", "JSON"}
		f.Properties["TransferFunctionEDI"] = map[string]interface{}{
			"href":  "https://data.example.org/drex/kiruna2021/" + s.name + ".edi",
			"label": "Transfer functions (EDI)",
			"type":  "text/plain",
		}
		f.Properties[feature.KeyDataKeys] = []string{"TransferFunctionEDI"}
		f.Properties[feature.KeyMapKeys] = []string{feature.KeyName, feature.KeySurvey}

		if _, err := c.Add(f, ""); err != nil {
			log.Fatal().Err(err).Str("site", s.name).Msg("Failed to add site")
		}
	}
	fmt.Printf("Catalog holds %d sites\n\n", c.Len())

	// Example 1: a record that breaks the rules
	fmt.Println("=== Validation ===")
	broken := feature.New("", 200, 67.9)
	broken.Properties[feature.KeyMapKeys] = []string{"Elevation"}
	var verr *feature.ValidationError
	if err := feature.Validate(broken); errors.As(err, &verr) {
		for _, v := range verr.Violations {
			fmt.Printf("  - %s\n", v)
		}
	}

	// Example 2: sites in a bounding box around Kiruna
	fmt.Println("\n=== Sites around Kiruna (Bounding Box) ===")
	results, err := c.Query(catalog.Filter{Box: &models.BoundingBox{
		BottomLeft: models.Location{Lat: 67.7, Lon: 19.9},
		TopRight:   models.Location{Lat: 68.0, Lon: 20.8},
	}})
	if err != nil {
		log.Fatal().Err(err).Msg("Box query failed")
	}
	for _, site := range results {
		fmt.Printf("  - %s: (%.4f, %.4f)\n", site.ID, site.Location.Lat, site.Location.Lon)
	}

	// Example 3: sites within 60 km of KIR012
	fmt.Println("\n=== Sites within 60km of KIR012 ===")
	center := models.Location{Lat: 67.8558, Lon: 20.2253}
	results, err = c.Query(catalog.Filter{Center: &center, RadiusKm: 60})
	if err != nil {
		log.Fatal().Err(err).Msg("Radius query failed")
	}
	for _, site := range results {
		fmt.Printf("  - %s: %.1f km away\n", site.ID,
			rtree.Distance(center.Lat, center.Lon, site.Location.Lat, site.Location.Lon))
	}

	// Example 4: the record as published GeoJSON
	fmt.Println("\n=== KIR012 as GeoJSON ===")
	f, err := c.Get(feature.DeriveID("DREX", "Kiruna 2021", "KIR012"))
	if err != nil {
		log.Fatal().Err(err).Msg("Lookup failed")
	}
	if err := feature.Encode(os.Stdout, f); err != nil {
		log.Fatal().Err(err).Msg("Encode failed")
	}

	// Save the index
	fmt.Println("\n=== Saving Index ===")
	if err := c.Index().SaveToFile("sites.gob"); err != nil {
		log.Fatal().Err(err).Msg("Failed to save index")
	}
	index := rtree.NewGeoIndex()
	if err := index.LoadFromFile("sites.gob"); err != nil {
		log.Fatal().Err(err).Msg("Failed to load index")
	}
	fmt.Printf("Reloaded index with %d sites\n", index.Count())
}
