package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kass/go-mt-sites/pkg/feature"
	"github.com/kass/go-mt-sites/pkg/models"
)

func newSite(name, project, survey string, lon, lat float64, props map[string]interface{}) *feature.Feature {
	f := feature.New(name, lon, lat)
	f.Properties[feature.KeyProject] = project
	f.Properties[feature.KeySurvey] = survey
	for k, v := range props {
		f.Properties[k] = v
	}
	return f
}

func writeFeature(t *testing.T, path string, f *feature.Feature) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()
	require.NoError(t, feature.Encode(file, f))
}

func kir012() *feature.Feature {
	return newSite("KIR012", "DREX", "Kiruna 2021", 20.2253, 67.8558, map[string]interface{}{
		feature.KeyDataTypes: []string{"EDI", "JSON", "ATS"},
		feature.KeyProvides:  []string{"MT transfer functions"},
		feature.KeyStartTime: "2021-06-14T10:22:00",
		feature.KeyStopTime:  "2021-06-16T08:05:30",
	})
}

// surveyDir lays out four valid records, three that must be rejected and
// a transfer function that is skipped
func surveyDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	writeFeature(t, filepath.Join(dir, "a_kir012.geojson"), kir012())
	writeFeature(t, filepath.Join(dir, "b_kir013.geojson"), newSite("KIR013", "DREX", "Kiruna 2021", 20.70, 67.85, map[string]interface{}{
		feature.KeyDataTypes: []string{"EDI"},
		feature.KeyStartTime: "2021-06-17T09:00:00",
		feature.KeyStopTime:  "2021-06-18T09:00:00",
	}))
	writeFeature(t, filepath.Join(dir, "c_lul001.json"), newSite("LUL001", "DREX", "Lulea 2019", 22.15, 65.58, map[string]interface{}{
		feature.KeyDataTypes: []string{"JSON"},
		feature.KeyStartTime: "2019-08-01",
		feature.KeyStopTime:  "2019-08-03",
	}))
	writeFeature(t, filepath.Join(dir, "d_oul005.geojson"), newSite("OUL005", "EMMA", "Oulu", 25.47, 65.01, nil))

	noName := kir012()
	delete(noName.Properties, feature.KeyName)
	writeFeature(t, filepath.Join(dir, "noname.geojson"), noName)
	writeFeature(t, filepath.Join(dir, "z_dup.geojson"), kir012())
	writeFeature(t, filepath.Join(dir, ".hidden", "ignored.geojson"), kir012())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{"type": "FeatureCollection", "features": []}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("field notes"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tf"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tf", "KIR012.json"),
		[]byte(`{"Header": {"Site": {"Name": "KIR012"}}, "Data": {"Freq": [1], "Z": {}}}`), 0644))

	return dir
}

func loadSurvey(t *testing.T) *Catalog {
	t.Helper()
	c, _, err := Load(context.Background(), surveyDir(t), Options{Workers: 2, Partitions: 4})
	require.NoError(t, err)
	return c
}

func ids(sites []*models.Site) []string {
	out := make([]string, len(sites))
	for i, s := range sites {
		out[i] = s.ID
	}
	return out
}

func TestLoad(t *testing.T) {
	dir := surveyDir(t)

	var calls atomic.Int64
	c, report, err := Load(context.Background(), dir, Options{
		Workers:  3,
		Progress: func(done, total int) { calls.Add(1); assert.Equal(t, 8, total) },
	})
	require.NoError(t, err)

	assert.Equal(t, 8, report.Files)
	assert.Equal(t, 4, report.Loaded)
	assert.EqualValues(t, 8, calls.Load())
	assert.Equal(t, []string{filepath.Join(dir, "tf", "KIR012.json")}, report.Skipped)
	assert.Equal(t, 4, c.Len())
	assert.EqualValues(t, 4, c.Index().Count())

	require.Len(t, report.Rejected, 3)
	assert.Equal(t, filepath.Join(dir, "bad.json"), report.Rejected[0].Path)
	assert.ErrorIs(t, report.Rejected[0].Err, feature.ErrNotFeature)
	assert.Equal(t, filepath.Join(dir, "noname.geojson"), report.Rejected[1].Path)
	assert.Contains(t, report.Rejected[1].Reason, feature.KeyName)
	assert.Equal(t, filepath.Join(dir, "z_dup.geojson"), report.Rejected[2].Path)
	assert.Equal(t, "duplicate id", report.Rejected[2].Reason)

	assert.Equal(t, []string{
		"drex-kiruna-2021-kir012",
		"drex-kiruna-2021-kir013",
		"drex-lulea-2019-lul001",
		"emma-oulu-oul005",
	}, ids(c.Sites()))

	site, err := c.Site("drex-kiruna-2021-kir012")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a_kir012.geojson"), site.Source)
}

func TestLoadErrors(t *testing.T) {
	_, _, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing"), Options{})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = Load(ctx, surveyDir(t), Options{Workers: 1})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestLoadEmptyDir(t *testing.T) {
	c, report, err := Load(context.Background(), t.TempDir(), Options{})
	require.NoError(t, err)
	assert.Zero(t, c.Len())
	assert.Zero(t, report.Files)
	assert.Empty(t, report.Rejected)
}

func TestAddAndGet(t *testing.T) {
	c := New(2)

	site, err := c.Add(kir012(), "")
	require.NoError(t, err)
	assert.Equal(t, "drex-kiruna-2021-kir012", site.ID)

	f, err := c.Get(site.ID)
	require.NoError(t, err)
	assert.Equal(t, "KIR012", f.Name())

	_, err = c.Add(kir012(), "")
	assert.ErrorIs(t, err, ErrDuplicateID)

	_, err = c.Add(feature.New("", 0, 0), "")
	var verr *feature.ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = c.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.Site("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	near, err := c.Query(Filter{Center: &models.Location{Lat: 67.86, Lon: 20.23}, RadiusKm: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{site.ID}, ids(near))
}

func TestQuery(t *testing.T) {
	c := loadSurvey(t)
	kiruna := models.Location{Lat: 67.8558, Lon: 20.2253}

	testCases := []struct {
		name     string
		filter   Filter
		expected []string
	}{
		{
			name:     "no constraints",
			filter:   Filter{},
			expected: []string{"drex-kiruna-2021-kir012", "drex-kiruna-2021-kir013", "drex-lulea-2019-lul001", "emma-oulu-oul005"},
		},
		{
			name: "box",
			filter: Filter{Box: &models.BoundingBox{
				BottomLeft: models.Location{Lat: 67, Lon: 19},
				TopRight:   models.Location{Lat: 68.5, Lon: 21},
			}},
			expected: []string{"drex-kiruna-2021-kir012", "drex-kiruna-2021-kir013"},
		},
		{
			name:     "radius 50km",
			filter:   Filter{Center: &kiruna, RadiusKm: 50},
			expected: []string{"drex-kiruna-2021-kir012", "drex-kiruna-2021-kir013"},
		},
		{
			name:     "radius 300km",
			filter:   Filter{Center: &kiruna, RadiusKm: 300},
			expected: []string{"drex-kiruna-2021-kir012", "drex-kiruna-2021-kir013", "drex-lulea-2019-lul001"},
		},
		{
			name: "radius and box",
			filter: Filter{Center: &kiruna, RadiusKm: 300, Box: &models.BoundingBox{
				BottomLeft: models.Location{Lat: 65, Lon: 20},
				TopRight:   models.Location{Lat: 66, Lon: 23},
			}},
			expected: []string{"drex-lulea-2019-lul001"},
		},
		{
			name:     "project",
			filter:   Filter{Project: "drex"},
			expected: []string{"drex-kiruna-2021-kir012", "drex-kiruna-2021-kir013", "drex-lulea-2019-lul001"},
		},
		{
			name:     "survey",
			filter:   Filter{Survey: "KIRUNA 2021"},
			expected: []string{"drex-kiruna-2021-kir012", "drex-kiruna-2021-kir013"},
		},
		{
			name:     "data type",
			filter:   Filter{DataType: "json"},
			expected: []string{"drex-kiruna-2021-kir012", "drex-lulea-2019-lul001"},
		},
		{
			name:     "provides",
			filter:   Filter{Provides: "mt transfer functions"},
			expected: []string{"drex-kiruna-2021-kir012"},
		},
		{
			name: "time window",
			filter: Filter{
				From: time.Date(2021, 6, 16, 12, 0, 0, 0, time.UTC),
				To:   time.Date(2021, 6, 30, 0, 0, 0, 0, time.UTC),
			},
			expected: []string{"drex-kiruna-2021-kir013", "emma-oulu-oul005"},
		},
		{
			name:     "nothing matches",
			filter:   Filter{Project: "drex", DataType: "ATS", Survey: "Lulea 2019"},
			expected: []string{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sites, err := c.Query(tc.filter)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, ids(sites))
		})
	}
}

func TestQueryRadiusEdgeCases(t *testing.T) {
	c := loadSurvey(t)
	kir013 := models.Location{Lat: 67.85, Lon: 20.70}

	sites, err := c.Query(Filter{Center: &kir013})
	require.NoError(t, err)
	assert.Equal(t, []string{"drex-kiruna-2021-kir013"}, ids(sites))

	_, err = c.Query(Filter{RadiusKm: 50})
	assert.ErrorIs(t, err, ErrInvalidFilter)

	_, err = c.Query(Filter{Center: &kir013, RadiusKm: -1})
	assert.Error(t, err)
}

func TestForeignJSON(t *testing.T) {
	testCases := []struct {
		path     string
		data     string
		expected bool
	}{
		{"tf.json", `{"Header": {}, "Data": {}}`, true},
		{"TF.JSON", `{"Data": {}}`, true},
		{"site.json", `{"type": "Feature"}`, false},
		{"collection.json", `{"type": "FeatureCollection"}`, false},
		{"tf.geojson", `{"Data": {}}`, false},
		{"broken.json", `{"Data": `, false},
		{"list.json", `[1, 2]`, false},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.expected, foreignJSON(tc.path, []byte(tc.data)))
		})
	}
}

func TestFeatureCollection(t *testing.T) {
	c := loadSurvey(t)

	fc := c.FeatureCollection()
	require.Len(t, fc.Features, 4)
	assert.Equal(t, "KIR012", fc.Features[0].Properties.MustString(feature.KeyName))
	assert.Equal(t, "OUL005", fc.Features[3].Properties.MustString(feature.KeyName))

	b, err := fc.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(b), `"FeatureCollection"`)
}

func TestFilterApplyIgnoresSpatialFields(t *testing.T) {
	sites := []*models.Site{
		{ID: "a", Project: "DREX", Location: &models.Location{Lat: 10, Lon: 10}},
		{ID: "b", Project: "EMMA", Location: &models.Location{Lat: 60, Lon: 20}},
	}
	q := Filter{
		Project: "drex",
		Box:     &models.BoundingBox{TopRight: models.Location{Lat: 1, Lon: 1}},
	}
	assert.Equal(t, []string{"a"}, ids(q.Apply(sites)))
	assert.Len(t, Filter{}.Apply(sites), 2)
}
