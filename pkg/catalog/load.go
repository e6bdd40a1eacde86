package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/kass/go-mt-sites/pkg/feature"
	"github.com/kass/go-mt-sites/pkg/models"
)

// Extensions lists the file extensions picked up by Load. A .json file
// without a top-level "type" member is not GeoJSON and is skipped.
var Extensions = []string{".geojson", ".json"}

// Options tunes Load
type Options struct {
	// Workers bounds concurrent decoding, defaults to the CPU count
	Workers int
	// Partitions is the spatial index partition count
	Partitions int
	// Progress, if set, is called after each file is decoded. It may be
	// called from several goroutines.
	Progress func(done, total int)
}

// Reject records a file that did not make it into the catalog
type Reject struct {
	Path   string
	Reason string
	Err    error
}

// Report summarises a Load
type Report struct {
	Files    int
	Loaded   int
	Rejected []Reject
	// Skipped lists .json files holding other documents, e.g. transfer
	// functions stored next to the site records
	Skipped  []string
	Duration time.Duration
}

type decoded struct {
	path    string
	feature *feature.Feature
	skipped bool
	err     error
}

// Load reads every feature file below dir. Files that fail to decode or
// validate are listed in the report, not returned as errors. When two
// files share a site id the one later in lexical path order is rejected.
func Load(ctx context.Context, dir string, opts Options) (*Catalog, *Report, error) {
	start := time.Now()
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}

	paths, err := findFiles(dir)
	if err != nil {
		return nil, nil, err
	}

	results := make([]decoded, len(paths))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = decodeFile(path)
			if opts.Progress != nil {
				opts.Progress(int(done.Add(1)), len(paths))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("catalog load interrupted: %w", err)
	}

	c := New(opts.Partitions)
	report := &Report{Files: len(paths)}
	sites := make([]*models.Site, 0, len(paths))

	for _, r := range results {
		if r.skipped {
			report.Skipped = append(report.Skipped, r.path)
			log.Debug().Str("path", r.path).Msg("Skipped non-GeoJSON file")
			continue
		}
		if r.err != nil {
			report.reject(r.path, r.err)
			continue
		}
		site, err := c.insert(r.feature, r.path)
		if err != nil {
			report.reject(r.path, err)
			continue
		}
		sites = append(sites, site)
	}

	if err := c.index.IndexSites(sites); err != nil {
		return nil, nil, fmt.Errorf("failed to index sites: %w", err)
	}

	report.Loaded = len(sites)
	report.Duration = time.Since(start)

	log.Info().
		Str("dir", dir).
		Int("files", report.Files).
		Int("loaded", report.Loaded).
		Int("rejected", len(report.Rejected)).
		Int("skipped", len(report.Skipped)).
		Dur("duration", report.Duration).
		Msg("Catalog loaded")

	return c, report, nil
}

func decodeFile(path string) decoded {
	data, err := os.ReadFile(path)
	if err != nil {
		return decoded{path: path, err: fmt.Errorf("failed to open feature: %w", err)}
	}
	if foreignJSON(path, data) {
		return decoded{path: path, skipped: true}
	}
	f, err := feature.Decode(data)
	if err != nil {
		return decoded{path: path, err: fmt.Errorf("%s: %w", path, err)}
	}
	return decoded{path: path, feature: f}
}

// foreignJSON reports whether path is a .json file whose top level object
// has no "type" member
func foreignJSON(path string, data []byte) bool {
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		return false
	}
	var probe struct {
		Type *string `json:"type"`
	}
	return json.Unmarshal(data, &probe) == nil && probe.Type == nil
}

func (r *Report) reject(path string, err error) {
	reason := err.Error()
	if errors.Is(err, ErrDuplicateID) {
		reason = ErrDuplicateID.Error()
	}
	r.Rejected = append(r.Rejected, Reject{Path: path, Reason: reason, Err: err})

	log.Warn().Str("path", path).Err(err).Msg("Rejected site record")
}

func findFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		for _, e := range Extensions {
			if ext == e {
				paths = append(paths, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	return paths, nil
}
