package feature

import (
	"fmt"
	"math"
	"mime"
	"net/url"
	"strings"

	"github.com/paulmach/orb"
	"github.com/samber/lo"
)

// Violation is a single broken invariant of a site record
type Violation struct {
	Field  string
	Reason string
}

func (v Violation) String() string {
	return v.Field + ": " + v.Reason
}

// ValidationError aggregates every violation found in a record
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := lo.Map(e.Violations, func(v Violation, _ int) string { return v.String() })
	return fmt.Sprintf("invalid site record (%d violations): %s", len(parts), strings.Join(parts, "; "))
}

// Has reports whether a violation was recorded for field
func (e *ValidationError) Has(field string) bool {
	return lo.ContainsBy(e.Violations, func(v Violation) bool { return v.Field == field })
}

type validator struct {
	violations []Violation
}

func (v *validator) add(field, format string, args ...interface{}) {
	v.violations = append(v.violations, Violation{Field: field, Reason: fmt.Sprintf(format, args...)})
}

// Validate checks the record invariants and returns a *ValidationError
// listing every violation, or nil
func Validate(f *Feature) error {
	v := &validator{}
	if f == nil || f.Feature == nil {
		v.add("type", "record is empty")
		return &ValidationError{Violations: v.violations}
	}

	if f.Type != typeFeature {
		v.add("type", "must be %q, got %q", typeFeature, f.Type)
	}
	v.geometry(f)

	name, ok := f.Properties[KeyName].(string)
	if !ok || strings.TrimSpace(name) == "" {
		v.add(KeyName, "must be a non-empty string")
	}

	v.times(f)

	for _, key := range []string{KeyProvides, KeyDataTypes} {
		if _, ok := f.stringList(key); !ok {
			v.add(key, "must be a list of strings")
		}
	}

	v.keyList(f, KeyMapKeys)
	dataKeys := v.keyList(f, KeyDataKeys)
	for _, key := range dataKeys {
		v.link(f, key)
	}

	if len(v.violations) == 0 {
		return nil
	}
	return &ValidationError{Violations: v.violations}
}

func (v *validator) geometry(f *Feature) {
	p, ok := f.Geometry.(orb.Point)
	if !ok {
		v.add("geometry", "must be a Point")
		return
	}
	lon, lat := p.Lon(), p.Lat()
	if math.IsNaN(lon) || math.IsInf(lon, 0) || lon < -180 || lon > 180 {
		v.add("geometry.coordinates", "longitude %v out of range [-180, 180]", lon)
	}
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		v.add("geometry.coordinates", "latitude %v out of range [-90, 90]", lat)
	}
}

func (v *validator) times(f *Feature) {
	start, errStart := f.StartTime()
	if errStart != nil {
		v.add(KeyStartTime, "%v", errStart)
	}
	stop, errStop := f.StopTime()
	if errStop != nil {
		v.add(KeyStopTime, "%v", errStop)
	}
	if errStart == nil && errStop == nil && !start.IsZero() && !stop.IsZero() && start.After(stop) {
		v.add(KeyStopTime, "precedes %s", KeyStartTime)
	}
}

// keyList checks that an @epos key list only references keys present
// elsewhere in properties and returns its deduplicated entries
func (v *validator) keyList(f *Feature, listKey string) []string {
	keys, ok := f.stringList(listKey)
	if !ok {
		v.add(listKey, "must be a list of strings")
		return nil
	}
	keys = lo.Uniq(keys)
	for _, key := range keys {
		switch {
		case key == listKey:
			v.add(listKey, "references itself")
		case !lo.HasKey(f.Properties, key):
			v.add(listKey, "references unknown key %q", key)
		}
	}
	return lo.Filter(keys, func(key string, _ int) bool {
		return key != listKey && lo.HasKey(f.Properties, key)
	})
}

func (v *validator) link(f *Feature, key string) {
	l, ok := f.Link(key)
	if !ok {
		v.add(key, "must be a link object with href, label and type")
		return
	}
	if l.Href == "" {
		v.add(key+".href", "is empty")
	} else if u, err := url.Parse(l.Href); err != nil || !u.IsAbs() {
		v.add(key+".href", "%q is not an absolute URI", l.Href)
	}
	if l.Type != "" {
		if _, _, err := mime.ParseMediaType(l.Type); err != nil {
			v.add(key+".type", "%q is not a MIME type", l.Type)
		}
	}
}
