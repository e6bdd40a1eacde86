package feature

import (
	"strings"

	"github.com/gosimple/slug"
	"github.com/samber/lo"

	"github.com/kass/go-mt-sites/pkg/models"
)

// DeriveID builds a stable identifier from the project, survey and site name
func DeriveID(project, survey, name string) string {
	parts := lo.Filter([]string{project, survey, name}, func(s string, _ int) bool {
		return strings.TrimSpace(s) != ""
	})
	return slug.Make(strings.Join(parts, " "))
}

// SiteID returns the feature id when it is a non-empty string, otherwise
// the id derived from project, survey and name
func (f *Feature) SiteID() string {
	if id, ok := f.Feature.ID.(string); ok && id != "" {
		return id
	}
	return DeriveID(f.Project(), f.Survey(), f.Name())
}

// ToSite flattens the record. Unparseable timestamps are left zero; run
// Validate first to reject them.
func ToSite(f *Feature, source string) *models.Site {
	start, _ := f.StartTime()
	stop, _ := f.StopTime()
	return &models.Site{
		ID:         f.SiteID(),
		Location:   &models.Location{Lat: f.Lat(), Lon: f.Lon()},
		Name:       f.Name(),
		Project:    f.Project(),
		Survey:     f.Survey(),
		AcquiredBy: f.AcquiredBy(),
		Start:      start,
		Stop:       stop,
		Provides:   f.Provides(),
		DataTypes:  f.DataTypes(),
		Links:      f.Links(),
		Source:     source,
	}
}
