// Package feature models a magnetotelluric survey site published as a
// single GeoJSON Feature with EPOS extension properties.
//
// Parsing of the container format is delegated to orb/geojson. This
// package adds the checks the generic decoder does not make (Point
// geometry with exactly two numeric coordinates) and typed access to the
// site properties.
package feature

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/kass/go-mt-sites/pkg/models"
)

// Property keys of a site record
const (
	KeyName       = "Name"
	KeyProject    = "Project"
	KeySurvey     = "Survey"
	KeyAcquiredBy = "AcquiredBy"
	KeyStartTime  = "StartTime"
	KeyStopTime   = "StopTime"
	KeyProvides   = "Provides"
	KeyDataTypes  = "DataTypes"

	// ExtensionPrefix marks vendor specific keys layered on top of GeoJSON
	ExtensionPrefix = "@epos_"
	KeyMapKeys      = "@epos_map_keys"
	KeyDataKeys     = "@epos_data_keys"
)

const (
	typeFeature = "Feature"
	typePoint   = "Point"
)

var (
	ErrNotFeature  = errors.New("not a GeoJSON Feature")
	ErrNotPoint    = errors.New("geometry is not a Point")
	ErrCoordinates = errors.New("point coordinates must be exactly two numbers")
)

// Feature is a decoded site record
type Feature struct {
	*geojson.Feature
}

// New creates a site feature located at lon/lat
func New(name string, lon, lat float64) *Feature {
	f := &Feature{Feature: geojson.NewFeature(orb.Point{lon, lat})}
	f.Properties[KeyName] = name
	return f
}

type rawGeometry struct {
	Type        string            `json:"type"`
	Coordinates []json.RawMessage `json:"coordinates"`
}

type rawFeature struct {
	Type     string       `json:"type"`
	Geometry *rawGeometry `json:"geometry"`
}

// Decode parses one GeoJSON Feature carrying a Point geometry
func Decode(data []byte) (*Feature, error) {
	var probe rawFeature
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse feature: %w", err)
	}
	if probe.Type != typeFeature {
		return nil, fmt.Errorf("%w: type %q", ErrNotFeature, probe.Type)
	}
	if probe.Geometry == nil {
		return nil, fmt.Errorf("%w: geometry is missing", ErrNotPoint)
	}
	if probe.Geometry.Type != typePoint {
		return nil, fmt.Errorf("%w: type %q", ErrNotPoint, probe.Geometry.Type)
	}
	if err := checkCoordinates(probe.Geometry.Coordinates); err != nil {
		return nil, err
	}

	gf, err := geojson.UnmarshalFeature(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode feature: %w", err)
	}
	if gf.Properties == nil {
		gf.Properties = geojson.Properties{}
	}

	return &Feature{Feature: gf}, nil
}

// orb decodes a Point into [2]float64 and silently drops or zero-fills
// coordinates, so the arity is checked on the raw message.
func checkCoordinates(coords []json.RawMessage) error {
	if len(coords) != 2 {
		return fmt.Errorf("%w: got %d elements", ErrCoordinates, len(coords))
	}
	for i, c := range coords {
		c = bytes.TrimSpace(c)
		if len(c) == 0 || !(c[0] == '-' || (c[0] >= '0' && c[0] <= '9')) {
			return fmt.Errorf("%w: element %d is %s", ErrCoordinates, i, string(c))
		}
		var v float64
		if err := json.Unmarshal(c, &v); err != nil {
			return fmt.Errorf("%w: element %d: %v", ErrCoordinates, i, err)
		}
	}
	return nil
}

// Read decodes a feature from r
func Read(r io.Reader) (*Feature, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read feature: %w", err)
	}
	return Decode(data)
}

// DecodeFile decodes the feature stored at path
func DecodeFile(path string) (*Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feature: %w", err)
	}
	f, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Encode writes f as indented GeoJSON
func Encode(w io.Writer, f *Feature) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f.Feature); err != nil {
		return fmt.Errorf("failed to encode feature: %w", err)
	}
	return nil
}

// Point returns the site location, or the zero point when the geometry is not a Point
func (f *Feature) Point() orb.Point {
	p, _ := f.Geometry.(orb.Point)
	return p
}

func (f *Feature) Lon() float64 { return f.Point().Lon() }
func (f *Feature) Lat() float64 { return f.Point().Lat() }

func (f *Feature) Name() string       { return f.Properties.MustString(KeyName, "") }
func (f *Feature) Project() string    { return f.Properties.MustString(KeyProject, "") }
func (f *Feature) Survey() string     { return f.Properties.MustString(KeySurvey, "") }
func (f *Feature) AcquiredBy() string { return f.Properties.MustString(KeyAcquiredBy, "") }

// Provides lists the data products the site provides
func (f *Feature) Provides() []string {
	v, _ := f.stringList(KeyProvides)
	return v
}

// DataTypes lists the data formats available for the site
func (f *Feature) DataTypes() []string {
	v, _ := f.stringList(KeyDataTypes)
	return v
}

// MapKeys lists the properties meant to be shown on a map popup
func (f *Feature) MapKeys() []string {
	v, _ := f.stringList(KeyMapKeys)
	return v
}

// DataKeys lists the properties holding links to data products
func (f *Feature) DataKeys() []string {
	v, _ := f.stringList(KeyDataKeys)
	return v
}

// StartTime parses the StartTime property. A missing value yields the zero time.
func (f *Feature) StartTime() (time.Time, error) {
	return f.timeProp(KeyStartTime)
}

// StopTime parses the StopTime property. A missing value yields the zero time.
func (f *Feature) StopTime() (time.Time, error) {
	return f.timeProp(KeyStopTime)
}

// Link resolves a property holding a link descriptor
func (f *Feature) Link(key string) (models.Link, bool) {
	m, ok := f.Properties[key].(map[string]interface{})
	if !ok {
		return models.Link{}, false
	}
	l := models.Link{Key: key}
	l.Href, _ = m["href"].(string)
	l.Label, _ = m["label"].(string)
	l.Type, _ = m["type"].(string)
	return l, true
}

// Links resolves every data key to its link descriptor, skipping keys that
// do not hold one
func (f *Feature) Links() []models.Link {
	var links []models.Link
	for _, key := range f.DataKeys() {
		if l, ok := f.Link(key); ok {
			links = append(links, l)
		}
	}
	return links
}

func (f *Feature) timeProp(key string) (time.Time, error) {
	v, ok := f.Properties[key]
	if !ok || v == nil {
		return time.Time{}, nil
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("%s is not a string", key)
	}
	return ParseTime(s)
}

// stringList returns the list stored under key. ok is false when the value
// is present but not a list of strings.
func (f *Feature) stringList(key string) ([]string, bool) {
	v, present := f.Properties[key]
	if !present || v == nil {
		return nil, true
	}
	items, ok := v.([]interface{})
	if !ok {
		if ss, ok := v.([]string); ok {
			return ss, true
		}
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
