package tf

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadDoc(t *testing.T) *Document {
	t.Helper()
	doc, err := Load("testdata/KIR012.json")
	require.NoError(t, err)
	return doc
}

func TestLoadDropsNonPositiveFrequencies(t *testing.T) {
	doc := loadDoc(t)

	assert.Equal(t, "KIR012", doc.Header.Site.Name)
	assert.Equal(t, "Kiruna 2021", doc.Header.Survey)
	assert.Equal(t, 67.8558, doc.Header.Location.Latitude)

	assert.Equal(t, []float64{100, 10, 1, 0.1}, doc.Freq)
	assert.Equal(t, []string{XX, XY, YX, YY}, doc.Components())
	for _, name := range doc.Components() {
		c, err := doc.Component(name)
		require.NoError(t, err)
		assert.Equal(t, 4, c.Len(), name)
		assert.Len(t, c.Var, 4, name)
	}
	assert.InDeltaSlice(t, []float64{0.01, 0.1, 1, 10}, doc.Periods(), 1e-12)
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected error
	}{
		{"no data", `{"Header": {}}`, ErrNoData},
		{"length mismatch", `{"Data": {"Freq": [1, 2], "Z": {"xy": {"Re": [1], "Im": [1], "Var": [1]}}}}`, ErrLengthMismatch},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.input))
			assert.ErrorIs(t, err, tc.expected)
		})
	}

	_, err := Parse([]byte(`{"Data": {"Z": {}}}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`not json`))
	assert.Error(t, err)
}

func TestApparentResistivityAndPhase(t *testing.T) {
	doc := loadDoc(t)
	xy, err := doc.Component(XY)
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{0.004, 0.16, 3.6, 64}, xy.ApparentResistivity(doc.Freq), 1e-9)
	assert.InDeltaSlice(t, []float64{45, 45, 45, 45}, xy.Phase(), 1e-9)
	assert.InDeltaSlice(t, []float64{0.1, 0.1, 0.1, 0.1}, xy.RelativeError(), 1e-9)

	yx, err := doc.Component(YX)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-135, -135, -135, -135}, yx.Phase(), 1e-9)
}

func TestDeterminant(t *testing.T) {
	doc := loadDoc(t)
	det, err := doc.Component(Det)
	require.NoError(t, err)

	// With zero diagonal elements and Zyx = -Zxy the determinant equals Zxy
	assert.InDeltaSlice(t, []float64{1, 2, 3, 4}, det.Re, 1e-9)
	assert.InDeltaSlice(t, []float64{1, 2, 3, 4}, det.Im, 1e-9)
	assert.InDeltaSlice(t, []float64{0.02, 0.08, 0.18, 0.32}, det.Var, 1e-12)

	delete(doc.Z, YY)
	_, err = doc.Component(Det)
	assert.ErrorIs(t, err, ErrUnknownComp)
}

func TestUnknownComponent(t *testing.T) {
	doc := loadDoc(t)
	_, err := doc.Component("zz")
	assert.ErrorIs(t, err, ErrUnknownComp)
}

func TestDeleteIndex(t *testing.T) {
	doc := loadDoc(t)
	require.NoError(t, doc.DeleteIndex(1))

	assert.Equal(t, []float64{100, 1, 0.1}, doc.Freq)
	assert.Equal(t, []float64{1, 3, 4}, doc.Z[XY].Re)
	assert.Equal(t, []float64{-1, -3, -4}, doc.Z[YX].Im)
	assert.Equal(t, []float64{0.02, 0.18, 0.32}, doc.Z[XY].Var)

	assert.ErrorIs(t, doc.DeleteIndex(3), ErrIndexRange)
	assert.ErrorIs(t, doc.DeleteIndex(-1), ErrIndexRange)
}

func TestDeleteInRegion(t *testing.T) {
	doc := loadDoc(t)

	// log10(T) = 0 is the 1 Hz sample; log10(rho) there is log10(3.6)
	n, err := doc.DeleteInRegion(XY, Region{MinX: -0.5, MaxX: 0.5, MinY: 0, MaxY: 1}, Rho)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []float64{100, 10, 0.1}, doc.Freq)
	assert.Equal(t, 3, doc.Z[YY].Len())

	// Any selected quantity inside the region removes the sample
	n, err = doc.DeleteInRegion(XY, Region{MinX: -3, MaxX: 3, MinY: 3.5, MaxY: 4.5}, Real, Imag)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []float64{100, 10}, doc.Freq)

	n, err = doc.DeleteInRegion(XY, Region{MinX: -3, MaxX: 3, MinY: 44, MaxY: 46}, Phase)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, doc.Len())

	_, err = doc.DeleteInRegion("zz", Region{}, Real)
	assert.ErrorIs(t, err, ErrUnknownComp)
}

func TestEditorUndo(t *testing.T) {
	ed := NewEditor(loadDoc(t))
	assert.False(t, ed.Undo())

	require.NoError(t, ed.DeleteIndex(0))
	n, err := ed.DeleteInRegion(XY, Region{MinX: -0.5, MaxX: 0.5, MinY: -10, MaxY: 10}, Real)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []float64{10, 0.1}, ed.Document().Freq)
	assert.Equal(t, 2, ed.History())

	// A region without samples leaves the history untouched
	n, err = ed.DeleteInRegion(XY, Region{MinX: 5, MaxX: 6, MinY: 0, MaxY: 1}, Real)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 2, ed.History())

	assert.Error(t, ed.DeleteIndex(10))
	assert.Equal(t, 2, ed.History())

	assert.True(t, ed.Undo())
	assert.Equal(t, []float64{10, 1, 0.1}, ed.Document().Freq)
	assert.True(t, ed.Undo())
	assert.Equal(t, []float64{100, 10, 1, 0.1}, ed.Document().Freq)
	assert.Equal(t, []float64{1, 2, 3, 4}, ed.Document().Z[XY].Re)
	assert.False(t, ed.Undo())
}

func TestEditorHistoryIsBounded(t *testing.T) {
	doc := &Document{Freq: make([]float64, MaxHistory+10), Z: map[string]*Component{}}
	for i := range doc.Freq {
		doc.Freq[i] = float64(i + 1)
	}
	ed := NewEditor(doc)
	for i := 0; i < MaxHistory+5; i++ {
		require.NoError(t, ed.DeleteIndex(0))
	}
	assert.Equal(t, MaxHistory, ed.History())
	assert.Equal(t, 5, ed.Document().Len())
}

func TestEditorFullHistoryKeepsOldestOnNoop(t *testing.T) {
	doc := &Document{Freq: make([]float64, MaxHistory+10), Z: map[string]*Component{}}
	for i := range doc.Freq {
		doc.Freq[i] = float64(i + 1)
	}
	ed := NewEditor(doc)
	for i := 0; i < MaxHistory; i++ {
		require.NoError(t, ed.DeleteIndex(0))
	}
	require.Equal(t, MaxHistory, ed.History())

	assert.ErrorIs(t, ed.DeleteIndex(1000), ErrIndexRange)
	_, err := ed.DeleteInRegion(XY, Region{}, Real)
	assert.ErrorIs(t, err, ErrUnknownComp)
	assert.Equal(t, MaxHistory, ed.History())
	assert.Equal(t, 10, ed.Document().Len())

	for i := 0; i < MaxHistory; i++ {
		require.True(t, ed.Undo())
	}
	assert.False(t, ed.Undo())
	assert.Equal(t, float64(1), ed.Document().Freq[0])
	assert.Equal(t, MaxHistory+10, ed.Document().Len())
}

func TestSaveKeepsUnknownKeys(t *testing.T) {
	doc := loadDoc(t)
	require.NoError(t, doc.DeleteIndex(0))

	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, doc.Save(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "procmt", raw["Processing"]["Software"])
	assert.Contains(t, raw["Data"], "T")
	assert.Contains(t, string(b), "\n    \"Data\"")

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 1, 0.1}, again.Freq)
	assert.Equal(t, doc.Header, again.Header)
	assert.Equal(t, doc.Z[YX].Re, again.Z[YX].Re)
}

func TestParseQuantity(t *testing.T) {
	for _, q := range []Quantity{Real, Imag, Rho, Phase} {
		got, err := ParseQuantity(q.String())
		require.NoError(t, err)
		assert.Equal(t, q, got)
	}
	got, err := ParseQuantity("Ph")
	require.NoError(t, err)
	assert.Equal(t, Phase, got)

	_, err = ParseQuantity("amp")
	assert.Error(t, err)
}

func TestRhoQuantityIsLogarithmic(t *testing.T) {
	doc := loadDoc(t)
	values := Rho.Values(doc.Z[XY], doc.Freq)
	assert.InDelta(t, math.Log10(64), values[3], 1e-9)
}
