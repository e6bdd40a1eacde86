package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kass/go-mt-sites/pkg/feature"
	"github.com/kass/go-mt-sites/pkg/tf"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, args...))
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeSite(t *testing.T, dir, name string, lon, lat float64) string {
	t.Helper()
	f := feature.New(name, lon, lat)
	f.Properties[feature.KeyProject] = "DREX"
	f.Properties[feature.KeySurvey] = "Kiruna 2021"

	path := filepath.Join(dir, name+".geojson")
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()
	require.NoError(t, feature.Encode(file, f))
	return path
}

func TestParseRegion(t *testing.T) {
	r, err := parseRegion("1, -1, 3,2")
	require.NoError(t, err)
	assert.Equal(t, tf.Region{MinX: -1, MaxX: 1, MinY: 2, MaxY: 3}, r)

	_, err = parseRegion("1,2,3")
	assert.Error(t, err)
	_, err = parseRegion("1,2,3,x")
	assert.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := writeSite(t, dir, "KIR012", 20.2253, 67.8558)

	out, err := execute(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "OK")
	assert.Contains(t, out, "drex-kiruna-2021-kir012")

	bad := filepath.Join(dir, "bad.geojson")
	require.NoError(t, os.WriteFile(bad, []byte(`{"type": "Feature", "geometry": {"type": "Point", "coordinates": [200, 10]}, "properties": {}}`), 0644))

	out, err = execute(t, "validate", good, bad)
	assert.ErrorIs(t, err, errInvalid)
	assert.Contains(t, out, "INVALID "+bad)
	assert.Contains(t, out, "longitude")
}

func TestIndexAndQueryCommands(t *testing.T) {
	dir := t.TempDir()
	writeSite(t, dir, "KIR012", 20.2253, 67.8558)
	writeSite(t, dir, "KIR013", 20.70, 67.85)
	writeSite(t, dir, "LUL001", 22.15, 65.58)
	oulu := feature.New("OUL005", 25.47, 65.01)
	oulu.Properties[feature.KeyProject] = "EMMA"
	oulu.Properties[feature.KeySurvey] = "Oulu"
	file, err := os.Create(filepath.Join(dir, "OUL005.geojson"))
	require.NoError(t, err)
	require.NoError(t, feature.Encode(file, oulu))
	require.NoError(t, file.Close())
	indexPath := filepath.Join(t.TempDir(), "sites.idx")

	out, err := execute(t, "index", "--dir", dir, "--file", indexPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded 4 of 4 files")

	out, err = execute(t, "query", "radius", "--file", indexPath, "--lat", "67.8558", "--lon", "20.2253", "--radius", "50")
	require.NoError(t, err)
	assert.Contains(t, out, "drex-kiruna-2021-kir012")
	assert.Contains(t, out, "drex-kiruna-2021-kir013")
	assert.NotContains(t, out, "lul001")
	assert.Contains(t, out, "2 sites")
	assert.Less(t, strings.Index(out, "kir012"), strings.Index(out, "kir013"))

	out, err = execute(t, "query", "nearest", "--file", indexPath, "--lat", "65.5", "--lon", "22", "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "drex-kiruna-2021-lul001")
	assert.Contains(t, out, "1 sites")

	// The filter applies before the n nearest are picked
	out, err = execute(t, "query", "nearest", "--file", indexPath, "--lat", "67.8558", "--lon", "20.2253", "-n", "1", "--project", "EMMA")
	require.NoError(t, err)
	assert.Contains(t, out, "emma-oulu-oul005")
	assert.Contains(t, out, "1 sites")
}
