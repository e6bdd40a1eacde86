package feature

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validationError(t *testing.T, f *Feature) *ValidationError {
	t.Helper()
	err := Validate(f)
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	return verr
}

func TestValidateKeyReferences(t *testing.T) {
	f := loadSample(t)
	f.Properties[KeyMapKeys] = []interface{}{"Name", "Operator"}
	f.Properties[KeyDataKeys] = []interface{}{"TransferFunctionEDI", "Missing", "Missing"}

	verr := validationError(t, f)
	assert.Len(t, verr.Violations, 2)
	assert.Contains(t, verr.Error(), `references unknown key "Operator"`)
	assert.Contains(t, verr.Error(), `references unknown key "Missing"`)
}

func TestValidateKeyListSelfReference(t *testing.T) {
	f := loadSample(t)
	f.Properties[KeyMapKeys] = []interface{}{"Name", KeyMapKeys}

	verr := validationError(t, f)
	assert.Len(t, verr.Violations, 1)
	assert.True(t, verr.Has(KeyMapKeys))
	assert.Contains(t, verr.Error(), "references itself")
}

func TestValidateKeyListMayNameOtherList(t *testing.T) {
	f := loadSample(t)
	require.Contains(t, f.Properties, KeyDataKeys)
	f.Properties[KeyMapKeys] = []interface{}{"Name", KeyDataKeys}

	assert.NoError(t, Validate(f))
	assert.Equal(t, []string{"Name", KeyDataKeys}, f.MapKeys())
}

func TestValidateKeyListType(t *testing.T) {
	f := loadSample(t)
	f.Properties[KeyDataKeys] = "TransferFunctionEDI"

	verr := validationError(t, f)
	assert.True(t, verr.Has(KeyDataKeys))
}

func TestValidateLinks(t *testing.T) {
	f := loadSample(t)
	f.Properties["TransferFunctionEDI"] = "https://data.example.org/KIR012.edi"
	f.Properties["TransferFunctionJSON"] = map[string]interface{}{
		"href":  "KIR012.json",
		"label": "relative",
		"type":  "not a mime type",
	}

	verr := validationError(t, f)
	assert.True(t, verr.Has("TransferFunctionEDI"))
	assert.True(t, verr.Has("TransferFunctionJSON.href"))
	assert.True(t, verr.Has("TransferFunctionJSON.type"))
}

func TestValidateCoordinates(t *testing.T) {
	testCases := []struct {
		name  string
		point orb.Point
	}{
		{"latitude too high", orb.Point{20, 95}},
		{"latitude too low", orb.Point{20, -90.5}},
		{"longitude too high", orb.Point{180.1, 0}},
		{"not a number", orb.Point{math.NaN(), 0}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := loadSample(t)
			f.Geometry = tc.point
			verr := validationError(t, f)
			assert.True(t, verr.Has("geometry.coordinates"))
		})
	}
}

func TestValidateGeometryType(t *testing.T) {
	f := loadSample(t)
	f.Geometry = orb.LineString{{1, 2}, {3, 4}}

	verr := validationError(t, f)
	assert.True(t, verr.Has("geometry"))
}

func TestValidateTimes(t *testing.T) {
	f := loadSample(t)
	f.Properties[KeyStartTime] = "2021-06-17T00:00:00"

	verr := validationError(t, f)
	assert.True(t, verr.Has(KeyStopTime))

	f = loadSample(t)
	f.Properties[KeyStartTime] = "yesterday"
	verr = validationError(t, f)
	assert.True(t, verr.Has(KeyStartTime))

	f = loadSample(t)
	delete(f.Properties, KeyStartTime)
	delete(f.Properties, KeyStopTime)
	f.Properties[KeyMapKeys] = []interface{}{"Name"}
	assert.NoError(t, Validate(f))
}

func TestValidateNameAndLists(t *testing.T) {
	f := loadSample(t)
	delete(f.Properties, KeyName)
	f.Properties[KeyMapKeys] = []interface{}{"Project"}
	f.Properties[KeyProvides] = []interface{}{"MT", 3.0}

	verr := validationError(t, f)
	assert.True(t, verr.Has(KeyName))
	assert.True(t, verr.Has(KeyProvides))
	assert.False(t, verr.Has(KeyDataTypes))
}

func TestValidateCollectsEverything(t *testing.T) {
	f := loadSample(t)
	f.Type = "Thing"
	f.Properties[KeyName] = ""
	f.Properties[KeyMapKeys] = []interface{}{"Nope"}

	verr := validationError(t, f)
	assert.True(t, verr.Has("type"))
	assert.True(t, verr.Has(KeyName))
	assert.True(t, verr.Has(KeyMapKeys))
}

func TestValidateNil(t *testing.T) {
	verr := validationError(t, nil)
	assert.True(t, verr.Has("type"))
}
