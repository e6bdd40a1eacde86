// Package rtree implements a longitude-partitioned R-Tree over survey sites
// with goroutine-based parallel insertion and search
package rtree

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/samber/lo"

	"github.com/kass/go-mt-sites/pkg/models"
)

const (
	tolerance   = 0.01
	minChildren = 25
	maxChildren = 50
	dimensions  = 2

	// earthRadius matches the sphere used by orb/geo, in km
	earthRadius    = orb.EarthRadius / 1000
	nearestStartKm = 10.0
)

var (
	ErrInvalidBox     = errors.New("invalid bounding box")
	ErrNegativeRadius = errors.New("radius must not be negative")
)

// spatialSite wraps a site to implement rtreego.Spatial interface
type spatialSite struct {
	*models.Site
	rect *rtreego.Rect
}

func (ss *spatialSite) Bounds() *rtreego.Rect {
	return ss.rect
}

// GeoIndex represents a thread-safe R-Tree based index of sites
type GeoIndex struct {
	// Partitioned trees for parallel query execution
	partitions []*rtreego.Rtree
	numCPU     int
	mu         sync.RWMutex
	itemCount  atomic.Int64

	// Partition bounds for efficient query routing
	partitionBounds []models.BoundingBox
}

// NewGeoIndex creates a new site index with one partition per CPU
func NewGeoIndex() *GeoIndex {
	return NewGeoIndexWithWorkers(runtime.NumCPU())
}

// NewGeoIndexWithWorkers creates a new site index with the given partition count
func NewGeoIndexWithWorkers(numPartitions int) *GeoIndex {
	if numPartitions <= 0 {
		numPartitions = runtime.NumCPU()
	}

	partitions := make([]*rtreego.Rtree, numPartitions)
	partitionBounds := make([]models.BoundingBox, numPartitions)

	// Create partitions based on longitude bands
	lonRange := 360.0 / float64(numPartitions)
	for i := 0; i < numPartitions; i++ {
		partitions[i] = rtreego.NewTree(dimensions, minChildren, maxChildren)

		minLon := -180.0 + float64(i)*lonRange
		maxLon := minLon + lonRange
		if i == numPartitions-1 {
			maxLon = 180.0
		}

		partitionBounds[i] = models.BoundingBox{
			BottomLeft: models.Location{Lat: -90, Lon: minLon},
			TopRight:   models.Location{Lat: 90, Lon: maxLon},
		}
	}

	return &GeoIndex{
		partitions:      partitions,
		numCPU:          numPartitions,
		partitionBounds: partitionBounds,
	}
}

// IndexSites adds sites to the index. Sites without a location are skipped.
func (g *GeoIndex) IndexSites(sites []*models.Site) error {
	if len(sites) == 0 {
		return nil
	}

	partitioned := make([][]*spatialSite, g.numCPU)
	for i := range partitioned {
		partitioned[i] = make([]*spatialSite, 0, len(sites)/g.numCPU)
	}

	for _, site := range sites {
		if site == nil || site.Location == nil {
			continue
		}

		p := rtreego.Point{site.Location.Lat, site.Location.Lon}
		item := &spatialSite{site, p.ToRect(tolerance)}

		idx := g.partitionFor(site.Location.Lon)
		partitioned[idx] = append(partitioned[idx], item)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var wg sync.WaitGroup
	var totalInserted atomic.Int64

	for i := 0; i < g.numCPU; i++ {
		if len(partitioned[i]) == 0 {
			continue
		}

		wg.Add(1)
		go func(partitionIdx int, items []*spatialSite) {
			defer wg.Done()

			// Each partition can be updated independently
			for _, item := range items {
				g.partitions[partitionIdx].Insert(item)
			}
			totalInserted.Add(int64(len(items)))
		}(i, partitioned[i])
	}

	wg.Wait()
	g.itemCount.Add(totalInserted.Load())
	return nil
}

func (g *GeoIndex) partitionFor(lon float64) int {
	lonRange := 360.0 / float64(g.numCPU)
	idx := int((lon + 180.0) / lonRange)
	if idx >= g.numCPU {
		idx = g.numCPU - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// QueryBox returns all sites within the given bounding box, edges
// included, ordered by id
func (g *GeoIndex) QueryBox(box models.BoundingBox) ([]*models.Site, error) {
	bounds, err := rect(box)
	if err != nil {
		return nil, err
	}

	sites := g.search(box, bounds, func(s *models.Site) bool {
		return box.Contains(*s.Location)
	})
	sort.Slice(sites, func(i, j int) bool { return sites[i].ID < sites[j].ID })
	return sites, nil
}

// QueryRadius returns all sites within radiusKm of center, nearest first.
// A zero radius returns the sites located exactly at center.
func (g *GeoIndex) QueryRadius(center models.Location, radiusKm float64) ([]*models.Site, error) {
	if !(radiusKm >= 0) {
		return nil, fmt.Errorf("%w: %v", ErrNegativeRadius, radiusKm)
	}

	box := radiusBox(center, radiusKm)
	bounds, err := rect(box)
	if err != nil {
		return nil, err
	}

	sites := g.search(box, bounds, func(s *models.Site) bool {
		return Distance(center.Lat, center.Lon, s.Location.Lat, s.Location.Lon) <= radiusKm
	})
	byDistance(center, sites)
	return sites, nil
}

// radiusBox bounds the spherical cap of radiusKm around center. The
// longitude half-width of a cap with angular radius r at latitude phi is
// asin(sin r / cos phi); caps reaching a pole span every longitude.
func radiusBox(center models.Location, radiusKm float64) models.BoundingBox {
	r := radiusKm / earthRadius
	latDeg := r * 180 / math.Pi

	box := models.BoundingBox{
		BottomLeft: models.Location{Lat: math.Max(center.Lat-latDeg, -90), Lon: -180},
		TopRight:   models.Location{Lat: math.Min(center.Lat+latDeg, 90), Lon: 180},
	}
	if box.BottomLeft.Lat == -90 || box.TopRight.Lat == 90 {
		return box
	}

	x := math.Sin(r) / math.Cos(center.Lat*math.Pi/180)
	if x >= 1 {
		return box
	}
	lonDeg := math.Asin(x) * 180 / math.Pi
	box.BottomLeft.Lon = center.Lon - lonDeg
	box.TopRight.Lon = center.Lon + lonDeg
	return box
}

// rect converts box to a search rectangle. rtreego rejects sides of zero
// length, so flat boxes are widened by tolerance; callers filter the
// candidates against the exact box.
func rect(box models.BoundingBox) (*rtreego.Rect, error) {
	minLat, minLon := box.BottomLeft.Lat, box.BottomLeft.Lon
	dLat := box.TopRight.Lat - minLat
	dLon := box.TopRight.Lon - minLon
	if !(dLat >= 0 && dLon >= 0) {
		return nil, fmt.Errorf("%w: top right %v lies below or left of bottom left %v",
			ErrInvalidBox, box.TopRight, box.BottomLeft)
	}

	if dLat == 0 {
		minLat -= tolerance
		dLat = 2 * tolerance
	}
	if dLon == 0 {
		minLon -= tolerance
		dLon = 2 * tolerance
	}
	return rtreego.NewRect(rtreego.Point{minLat, minLon}, []float64{dLat, dLon})
}

// byDistance orders sites by great-circle distance from center, ties by id
func byDistance(center models.Location, sites []*models.Site) {
	dist := make(map[*models.Site]float64, len(sites))
	for _, s := range sites {
		dist[s] = Distance(center.Lat, center.Lon, s.Location.Lat, s.Location.Lon)
	}
	sort.Slice(sites, func(i, j int) bool {
		di, dj := dist[sites[i]], dist[sites[j]]
		if di != dj {
			return di < dj
		}
		return sites[i].ID < sites[j].ID
	})
}

// search runs an intersect query on every partition overlapping box and
// keeps the candidates accepted by keep
func (g *GeoIndex) search(box models.BoundingBox, bounds *rtreego.Rect, keep func(*models.Site) bool) []*models.Site {
	g.mu.RLock()
	defer g.mu.RUnlock()

	relevant := g.getRelevantPartitions(box)
	resultsChan := make(chan []*models.Site, len(relevant))

	for _, partitionIdx := range relevant {
		go func(idx int) {
			results := g.partitions[idx].SearchIntersect(bounds)

			sites := make([]*models.Site, 0, len(results))
			for _, result := range results {
				item, ok := result.(*spatialSite)
				if !ok || item.Site == nil || item.Site.Location == nil {
					continue
				}
				if keep(item.Site) {
					sites = append(sites, item.Site)
				}
			}
			resultsChan <- sites
		}(partitionIdx)
	}

	var all []*models.Site
	for i := 0; i < len(relevant); i++ {
		all = append(all, <-resultsChan...)
	}
	return all
}

// NearestNeighbors returns the n sites closest to center by great-circle
// distance, nearest first
func (g *GeoIndex) NearestNeighbors(center models.Location, n int) []*models.Site {
	return g.NearestMatching(center, n, nil)
}

// NearestMatching returns the n sites accepted by keep that are closest to
// center, nearest first. A nil keep accepts every site. The search radius
// doubles from nearestStartKm until it holds n matches or covers the globe.
func (g *GeoIndex) NearestMatching(center models.Location, n int, keep func(*models.Site) bool) []*models.Site {
	if n <= 0 || g.Count() == 0 {
		return nil
	}

	maxRadius := math.Pi * earthRadius
	for radius := nearestStartKm; ; radius *= 2 {
		sites, err := g.QueryRadius(center, radius)
		if err != nil {
			return nil
		}
		if keep != nil {
			sites = lo.Filter(sites, func(s *models.Site, _ int) bool { return keep(s) })
		}
		if len(sites) >= n || radius >= maxRadius {
			if len(sites) > n {
				sites = sites[:n]
			}
			return sites
		}
	}
}

// Count returns the number of indexed sites
func (g *GeoIndex) Count() int64 {
	return g.itemCount.Load()
}

// Clear removes all sites from the index
func (g *GeoIndex) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := 0; i < g.numCPU; i++ {
		g.partitions[i] = rtreego.NewTree(dimensions, minChildren, maxChildren)
	}
	g.itemCount.Store(0)
}

// getRelevantPartitions returns the indices of partitions that intersect with the given bounding box
func (g *GeoIndex) getRelevantPartitions(box models.BoundingBox) []int {
	var relevant []int
	for i, bounds := range g.partitionBounds {
		if box.BottomLeft.Lon <= bounds.TopRight.Lon &&
			box.TopRight.Lon >= bounds.BottomLeft.Lon {
			relevant = append(relevant, i)
		}
	}
	return relevant
}

// Distance calculates the Haversine distance between two points in kilometers
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	return geo.DistanceHaversine(orb.Point{lon1, lat1}, orb.Point{lon2, lat2}) / 1000
}
