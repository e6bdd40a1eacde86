package main

import (
	"flag"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kass/go-mt-sites/internal/logger"
	"github.com/kass/go-mt-sites/pkg/config"
	"github.com/kass/go-mt-sites/pkg/models"
	"github.com/kass/go-mt-sites/pkg/rtree"
)

type BenchmarkResult struct {
	QueryType     string
	TotalQueries  int
	TotalDuration time.Duration
	AvgDuration   time.Duration
	P95Duration   time.Duration
	QueriesPerSec float64
	MinDuration   time.Duration
	MaxDuration   time.Duration
	TotalResults  int64
	AvgResults    float64
}

// bounds is the area random query locations are drawn from
type bounds struct {
	minLat, maxLat float64
	minLon, maxLon float64
}

func (b bounds) random(r *rand.Rand) models.Location {
	return models.Location{
		Lat: b.minLat + r.Float64()*(b.maxLat-b.minLat),
		Lon: b.minLon + r.Float64()*(b.maxLon-b.minLon),
	}
}

// query runs one random query and returns the number of results
type query func(r *rand.Rand) (int, error)

func main() {
	var (
		indexFile  = flag.String("i", "data/index.gob", "Index file path")
		queryType  = flag.String("t", "box", "Query type: box, radius, nearest, mixed")
		numQueries = flag.Int("n", 1000, "Number of queries to run")
		workers    = flag.Int("w", runtime.NumCPU(), "Number of concurrent workers")
		// Geographic bounds for random queries (default: northern Fennoscandia)
		minLat = flag.Float64("min-lat", 63.0, "Minimum latitude for random queries")
		maxLat = flag.Float64("max-lat", 69.0, "Maximum latitude for random queries")
		minLon = flag.Float64("min-lon", 14.0, "Minimum longitude for random queries")
		maxLon = flag.Float64("max-lon", 30.0, "Maximum longitude for random queries")
		// Query-specific parameters
		boxSize = flag.Float64("box-size", 1.0, "Box size in degrees (for box queries)")
		radius  = flag.Float64("radius", 50.0, "Radius in km (for radius queries)")
		k       = flag.Int("k", 100, "Number of nearest neighbors")
	)
	flag.Parse()

	logger.Setup(config.Log{Level: "info", Format: "auto"})

	index := rtree.NewGeoIndex()
	if err := index.LoadFromFile(*indexFile); err != nil {
		log.Fatal().Err(err).Str("file", *indexFile).Msg("Failed to load index")
	}
	log.Info().Int64("sites", index.Count()).Msg("Index loaded")

	area := bounds{*minLat, *maxLat, *minLon, *maxLon}

	box := func(r *rand.Rand) (int, error) {
		bl := bounds{area.minLat, area.maxLat - *boxSize, area.minLon, area.maxLon - *boxSize}.random(r)
		results, err := index.QueryBox(models.BoundingBox{
			BottomLeft: bl,
			TopRight:   models.Location{Lat: bl.Lat + *boxSize, Lon: bl.Lon + *boxSize},
		})
		return len(results), err
	}
	radiusQuery := func(r *rand.Rand) (int, error) {
		results, err := index.QueryRadius(area.random(r), *radius)
		return len(results), err
	}
	nearest := func(r *rand.Rand) (int, error) {
		return len(index.NearestNeighbors(area.random(r), *k)), nil
	}

	queries := map[string]query{
		"box":     box,
		"radius":  radiusQuery,
		"nearest": nearest,
		"mixed": func(r *rand.Rand) (int, error) {
			switch r.Intn(3) {
			case 0:
				return box(r)
			case 1:
				return radiusQuery(r)
			}
			return nearest(r)
		},
	}

	q, ok := queries[*queryType]
	if !ok {
		log.Fatal().Str("type", *queryType).Msg("Unknown query type")
	}

	log.Info().Int("queries", *numQueries).Str("type", *queryType).Int("workers", *workers).Msg("Running benchmark")
	result := run(*queryType, q, *numQueries, *workers)

	fmt.Println("\n=== Benchmark Results ===")
	fmt.Printf("Query Type: %s\n", result.QueryType)
	fmt.Printf("Total Queries: %d\n", result.TotalQueries)
	fmt.Printf("Total Duration: %v\n", result.TotalDuration)
	fmt.Printf("Average Duration: %v\n", result.AvgDuration)
	fmt.Printf("P95 Duration: %v\n", result.P95Duration)
	fmt.Printf("Queries/Second: %.2f\n", result.QueriesPerSec)
	fmt.Printf("Min Duration: %v\n", result.MinDuration)
	fmt.Printf("Max Duration: %v\n", result.MaxDuration)
	fmt.Printf("Total Results: %d\n", result.TotalResults)
	fmt.Printf("Avg Results/Query: %.2f\n", result.AvgResults)
	fmt.Printf("Workers Used: %d\n", *workers)
	fmt.Printf("CPU Cores: %d\n", runtime.NumCPU())
}

func run(name string, q query, numQueries, workers int) BenchmarkResult {
	var (
		totalResults atomic.Int64
		durations    []time.Duration
		mu           sync.Mutex
	)

	startTime := time.Now()

	// Worker pool
	queryCh := make(chan int, numQueries)
	var wg sync.WaitGroup

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewSource(rand.Int63()))

			for range queryCh {
				queryStart := time.Now()
				n, err := q(r)
				queryDuration := time.Since(queryStart)
				if err != nil {
					log.Warn().Err(err).Msg("Query failed")
					continue
				}

				totalResults.Add(int64(n))
				mu.Lock()
				durations = append(durations, queryDuration)
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < numQueries; i++ {
		queryCh <- i
	}
	close(queryCh)

	wg.Wait()
	totalDuration := time.Since(startTime)

	result := BenchmarkResult{
		QueryType:     name,
		TotalQueries:  len(durations),
		TotalDuration: totalDuration,
		TotalResults:  totalResults.Load(),
	}
	if len(durations) == 0 {
		return result
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	var totalDur time.Duration
	for _, d := range durations {
		totalDur += d
	}

	result.AvgDuration = totalDur / time.Duration(len(durations))
	result.P95Duration = durations[len(durations)*95/100]
	result.MinDuration = durations[0]
	result.MaxDuration = durations[len(durations)-1]
	result.QueriesPerSec = float64(len(durations)) / totalDuration.Seconds()
	result.AvgResults = float64(result.TotalResults) / float64(len(durations))
	return result
}
