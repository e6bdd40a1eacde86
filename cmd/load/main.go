package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/kass/go-mt-sites/internal/logger"
	"github.com/kass/go-mt-sites/pkg/catalog"
	"github.com/kass/go-mt-sites/pkg/config"
	"github.com/kass/go-mt-sites/pkg/feature"
)

func main() {
	var (
		numSites   = flag.Int("n", 10000, "Number of synthetic sites to generate")
		outputDir  = flag.String("d", "data/sites", "Directory for the generated GeoJSON files")
		indexFile  = flag.String("o", "data/index.gob", "Output index file path")
		workers    = flag.Int("w", runtime.NumCPU(), "Number of worker goroutines")
		seed       = flag.Int64("seed", time.Now().UnixNano(), "Random seed")
		project    = flag.String("project", "SYNTH", "Project name of the generated sites")
		perProfile = flag.Int("profile", 40, "Sites per survey profile")
		// Geographic bounds for generated sites (default: northern Fennoscandia)
		minLat = flag.Float64("min-lat", 63.0, "Minimum latitude")
		maxLat = flag.Float64("max-lat", 69.0, "Maximum latitude")
		minLon = flag.Float64("min-lon", 14.0, "Minimum longitude")
		maxLon = flag.Float64("max-lon", 30.0, "Maximum longitude")
	)
	flag.Parse()

	logger.Setup(config.Log{Level: "info", Format: "auto"})

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create output directory")
	}
	if err := os.MkdirAll(filepath.Dir(*indexFile), 0755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create index directory")
	}

	log.Info().
		Int("sites", *numSites).
		Int("workers", *workers).
		Str("bounds", fmt.Sprintf("lat[%.2f, %.2f] lon[%.2f, %.2f]", *minLat, *maxLat, *minLon, *maxLon)).
		Msg("Generating synthetic survey")

	gen := generator{
		project:    *project,
		perProfile: max(*perProfile, 1),
		minLat:     *minLat, maxLat: *maxLat,
		minLon: *minLon, maxLon: *maxLon,
	}

	startTime := time.Now()
	if err := gen.write(*outputDir, *numSites, *workers, *seed); err != nil {
		log.Fatal().Err(err).Msg("Failed to generate sites")
	}
	log.Info().Dur("duration", time.Since(startTime)).Msg("Sites written")

	startTime = time.Now()
	c, report, err := catalog.Load(context.Background(), *outputDir, catalog.Options{Workers: *workers, Partitions: *workers})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load catalog")
	}
	indexTime := time.Since(startTime)
	log.Info().
		Int("loaded", report.Loaded).
		Int("rejected", len(report.Rejected)).
		Dur("duration", indexTime).
		Float64("sites_per_sec", float64(report.Loaded)/indexTime.Seconds()).
		Msg("Index built")

	startTime = time.Now()
	if err := c.Index().SaveToFile(*indexFile); err != nil {
		log.Fatal().Err(err).Msg("Failed to save index")
	}
	log.Info().Str("file", *indexFile).Dur("duration", time.Since(startTime)).Msg("Index saved")

	if fileInfo, err := os.Stat(*indexFile); err == nil {
		log.Info().Float64("size_mb", float64(fileInfo.Size())/(1024*1024)).Int64("sites", c.Index().Count()).Msg("Index file written")
	}
}

// generator lays sites out along straight profiles, the way MT surveys are
// usually acquired
type generator struct {
	project        string
	perProfile     int
	minLat, maxLat float64
	minLon, maxLon float64
}

func (g generator) write(dir string, n, workers int, seed int64) error {
	profiles := (n + g.perProfile - 1) / g.perProfile

	var eg errgroup.Group
	eg.SetLimit(max(workers, 1))
	for p := 0; p < profiles; p++ {
		p := p
		eg.Go(func() error {
			// Each profile gets its own random generator to avoid contention
			r := rand.New(rand.NewSource(seed + int64(p)))
			return g.writeProfile(dir, r, p, min(g.perProfile, n-p*g.perProfile))
		})
	}
	return eg.Wait()
}

func (g generator) writeProfile(dir string, r *rand.Rand, profile, count int) error {
	survey := fmt.Sprintf("Profile %03d", profile)
	lat := g.minLat + r.Float64()*(g.maxLat-g.minLat)
	lon := g.minLon + r.Float64()*(g.maxLon-g.minLon)
	bearing := r.Float64() * 2 * math.Pi
	start := time.Date(2015+r.Intn(10), time.Month(5+r.Intn(4)), 1+r.Intn(28), 8, 0, 0, 0, time.UTC)

	for i := 0; i < count; i++ {
		name := fmt.Sprintf("P%03dS%03d", profile, i)
		// roughly 2 km station spacing
		step := 0.02 * float64(i)
		f := feature.New(name,
			clamp(lon+step*math.Sin(bearing)*2, -180, 180),
			clamp(lat+step*math.Cos(bearing), -90, 90))

		acquired := start.Add(time.Duration(i) * 26 * time.Hour)
		f.Properties[feature.KeyProject] = g.project
		f.Properties[feature.KeySurvey] = survey
		f.Properties[feature.KeyStartTime] = feature.FormatTime(acquired)
		f.Properties[feature.KeyStopTime] = feature.FormatTime(acquired.Add(22 * time.Hour))
		f.Properties[feature.KeyDataTypes] = []string{"EDI", "JSON"}
		f.Properties["TransferFunctionEDI"] = map[string]interface{}{
			"href":  fmt.Sprintf("https://data.example.org/%s/%s.edi", feature.DeriveID(g.project, survey, ""), name),
			"label": "Transfer functions (EDI)",
			"type":  "text/plain",
		}
		f.Properties[feature.KeyDataKeys] = []string{"TransferFunctionEDI"}
		f.Properties[feature.KeyMapKeys] = []string{feature.KeyName, feature.KeySurvey, feature.KeyStartTime}

		path := filepath.Join(dir, feature.DeriveID(g.project, survey, name)+".geojson")
		if err := writeFeature(path, f); err != nil {
			return err
		}
	}
	return nil
}

func writeFeature(path string, f *feature.Feature) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()
	return feature.Encode(file, f)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
