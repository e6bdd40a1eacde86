package models

import "time"

// Location represents a geographic location with latitude and longitude
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Link describes an external data product attached to a site
type Link struct {
	Key   string `json:"key"`
	Href  string `json:"href"`
	Label string `json:"label,omitempty"`
	Type  string `json:"type,omitempty"`
}

// Site is the flattened view of a survey site record used by the index,
// the relational store and the CLI
type Site struct {
	ID         string    `json:"id"`
	Location   *Location `json:"location"`
	Name       string    `json:"name"`
	Project    string    `json:"project,omitempty"`
	Survey     string    `json:"survey,omitempty"`
	AcquiredBy string    `json:"acquired_by,omitempty"`
	Start      time.Time `json:"start,omitempty"`
	Stop       time.Time `json:"stop,omitempty"`
	Provides   []string  `json:"provides,omitempty"`
	DataTypes  []string  `json:"data_types,omitempty"`
	Links      []Link    `json:"links,omitempty"`
	// Source is the file the record was read from, if any
	Source string `json:"source,omitempty"`
}

// Overlaps reports whether the site's acquisition window intersects [from, to].
// Zero bounds are open.
func (s *Site) Overlaps(from, to time.Time) bool {
	if !to.IsZero() && !s.Start.IsZero() && s.Start.After(to) {
		return false
	}
	if !from.IsZero() && !s.Stop.IsZero() && s.Stop.Before(from) {
		return false
	}
	return true
}

// BoundingBox represents a rectangular area defined by two corners
type BoundingBox struct {
	BottomLeft Location
	TopRight   Location
}

// Contains reports whether loc lies inside the box, edges included
func (b BoundingBox) Contains(loc Location) bool {
	return loc.Lat >= b.BottomLeft.Lat && loc.Lat <= b.TopRight.Lat &&
		loc.Lon >= b.BottomLeft.Lon && loc.Lon <= b.TopRight.Lon
}
