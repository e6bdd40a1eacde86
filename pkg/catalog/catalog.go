// Package catalog holds a set of validated site records keyed by site id,
// with a spatial index for geographic queries.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/samber/lo"

	"github.com/kass/go-mt-sites/pkg/feature"
	"github.com/kass/go-mt-sites/pkg/models"
	"github.com/kass/go-mt-sites/pkg/rtree"
)

var (
	ErrNotFound      = errors.New("site not found")
	ErrDuplicateID   = errors.New("duplicate id")
	ErrInvalidFilter = errors.New("invalid filter")
)

type entry struct {
	feature *feature.Feature
	site    *models.Site
}

// Catalog is safe for concurrent use
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]entry
	index   *rtree.GeoIndex
}

// New creates an empty catalog whose index uses the given partition count
func New(partitions int) *Catalog {
	return &Catalog{
		entries: make(map[string]entry),
		index:   rtree.NewGeoIndexWithWorkers(partitions),
	}
}

// Add validates f and stores it under its site id
func (c *Catalog) Add(f *feature.Feature, source string) (*models.Site, error) {
	site, err := c.insert(f, source)
	if err != nil {
		return nil, err
	}
	if err := c.index.IndexSites([]*models.Site{site}); err != nil {
		return nil, fmt.Errorf("failed to index site: %w", err)
	}
	return site, nil
}

// insert stores f without touching the spatial index
func (c *Catalog) insert(f *feature.Feature, source string) (*models.Site, error) {
	if err := feature.Validate(f); err != nil {
		return nil, err
	}
	site := feature.ToSite(f, source)

	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.entries[site.ID]; ok {
		return nil, fmt.Errorf("%w: %q already loaded from %s", ErrDuplicateID, site.ID, prev.site.Source)
	}
	c.entries[site.ID] = entry{feature: f, site: site}
	return site, nil
}

// Get returns the record stored under id
func (c *Catalog) Get(id string) (*feature.Feature, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return e.feature, nil
}

// Site returns the flattened view of the record stored under id
func (c *Catalog) Site(id string) (*models.Site, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return e.site, nil
}

// Sites returns every site sorted by id
func (c *Catalog) Sites() []*models.Site {
	c.mu.RLock()
	sites := make([]*models.Site, 0, len(c.entries))
	for _, e := range c.entries {
		sites = append(sites, e.site)
	}
	c.mu.RUnlock()

	sortByID(sites)
	return sites
}

// Len returns the number of records
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Index exposes the spatial index, e.g. for persisting it
func (c *Catalog) Index() *rtree.GeoIndex { return c.index }

// Filter selects sites. Zero fields do not constrain the result; string
// fields match case-insensitively.
type Filter struct {
	Box *models.BoundingBox
	// Center keeps the sites within RadiusKm of it; a zero radius keeps
	// the sites located exactly at Center. RadiusKm without Center is an
	// error.
	Center   *models.Location
	RadiusKm float64

	Project  string
	Survey   string
	DataType string
	Provides string

	// Acquisition window must overlap [From, To]
	From time.Time
	To   time.Time
}

// Query returns the sites matching every predicate of q, sorted by id
func (c *Catalog) Query(q Filter) ([]*models.Site, error) {
	var sites []*models.Site
	var err error

	switch {
	case q.Center == nil && q.RadiusKm != 0:
		return nil, fmt.Errorf("%w: radius %v km without a center", ErrInvalidFilter, q.RadiusKm)
	case q.Center != nil:
		sites, err = c.index.QueryRadius(*q.Center, q.RadiusKm)
		if err == nil && q.Box != nil {
			box := *q.Box
			sites = lo.Filter(sites, func(s *models.Site, _ int) bool {
				return box.Contains(*s.Location)
			})
		}
	case q.Box != nil:
		sites, err = c.index.QueryBox(*q.Box)
	default:
		sites = c.Sites()
	}
	if err != nil {
		return nil, fmt.Errorf("spatial query failed: %w", err)
	}

	sites = q.Apply(sites)
	sortByID(sites)
	return sites, nil
}

// Match reports whether s satisfies the attribute predicates of q. The
// spatial fields are not evaluated.
func (q Filter) Match(s *models.Site) bool {
	return matches(q.Project, s.Project) &&
		matches(q.Survey, s.Survey) &&
		contains(s.DataTypes, q.DataType) &&
		contains(s.Provides, q.Provides) &&
		s.Overlaps(q.From, q.To)
}

// Apply keeps the sites matching the attribute predicates of q, in order
func (q Filter) Apply(sites []*models.Site) []*models.Site {
	return lo.Filter(sites, func(s *models.Site, _ int) bool { return q.Match(s) })
}

func matches(want, got string) bool {
	return want == "" || strings.EqualFold(want, got)
}

func contains(values []string, want string) bool {
	if want == "" {
		return true
	}
	return lo.ContainsBy(values, func(v string) bool { return strings.EqualFold(v, want) })
}

// FeatureCollection returns every record as GeoJSON, ordered by site id
func (c *Catalog) FeatureCollection() *geojson.FeatureCollection {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := lo.Keys(c.entries)
	sort.Strings(ids)

	fc := geojson.NewFeatureCollection()
	for _, id := range ids {
		fc.Append(c.entries[id].feature.Feature)
	}
	return fc
}

func sortByID(sites []*models.Site) {
	sort.Slice(sites, func(i, j int) bool { return sites[i].ID < sites[j].ID })
}
