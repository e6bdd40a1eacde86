package rtree

import (
	"bufio"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/lo"

	"github.com/kass/go-mt-sites/pkg/models"
)

// indexFileVersion changes whenever the encoded layout of models.Site does
const indexFileVersion = 1

var ErrIndexFile = errors.New("invalid index file")

// indexFile is the gob payload of a saved index. Only the sites are
// stored; the trees are rebuilt on load with the receiver's partitioning.
type indexFile struct {
	Version int
	Count   int64
	Sites   []*models.Site
}

// world covers every valid location
var world = models.BoundingBox{
	BottomLeft: models.Location{Lat: -90, Lon: -180},
	TopRight:   models.Location{Lat: 90, Lon: 180},
}

// Sites returns every indexed site ordered by id
func (g *GeoIndex) Sites() ([]*models.Site, error) {
	sites, err := g.QueryBox(world)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	return sites, nil
}

// SaveToFile writes the indexed sites to filename. The file is replaced
// atomically so a reader never sees a partial index.
func (g *GeoIndex) SaveToFile(filename string) error {
	sites, err := g.Sites()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	data := indexFile{Version: indexFileVersion, Count: int64(len(sites)), Sites: sites}
	if err := gob.NewEncoder(w).Encode(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode index: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filename, err)
	}
	return nil
}

// LoadFromFile replaces the index content with the sites stored in
// filename. The index is left untouched when the file is rejected.
func (g *GeoIndex) LoadFromFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var data indexFile
	if err := gob.NewDecoder(bufio.NewReader(file)).Decode(&data); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIndexFile, filename, err)
	}
	if err := data.check(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIndexFile, filename, err)
	}

	g.Clear()
	if err := g.IndexSites(data.Sites); err != nil {
		return fmt.Errorf("failed to index sites: %w", err)
	}
	return nil
}

func (d *indexFile) check() error {
	if d.Version != indexFileVersion {
		return fmt.Errorf("version %d, want %d", d.Version, indexFileVersion)
	}
	if int64(len(d.Sites)) != d.Count {
		return fmt.Errorf("holds %d sites, header says %d", len(d.Sites), d.Count)
	}
	if bad, found := lo.Find(d.Sites, func(s *models.Site) bool {
		return s == nil || s.Location == nil
	}); found {
		id := ""
		if bad != nil {
			id = bad.ID
		}
		return fmt.Errorf("site %q has no location", id)
	}
	return nil
}
