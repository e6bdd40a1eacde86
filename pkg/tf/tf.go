// Package tf reads and edits magnetotelluric transfer function documents:
// JSON files holding the impedance tensor Z per frequency.
package tf

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"os"
	"sort"
)

// Tensor component names
const (
	XX  = "xx"
	XY  = "xy"
	YX  = "yx"
	YY  = "yy"
	Det = "det"
)

var (
	ErrNoData         = errors.New("document has no Data section")
	ErrUnknownComp    = errors.New("unknown tensor component")
	ErrLengthMismatch = errors.New("component length differs from frequency count")
	ErrIndexRange     = errors.New("sample index out of range")
)

type Location struct {
	Latitude  float64 `json:"Latitude"`
	Longitude float64 `json:"Longitude"`
}

type SiteInfo struct {
	Name string `json:"Name"`
}

// Header is the descriptive part of a document
type Header struct {
	Survey   string   `json:"Survey"`
	Project  string   `json:"Project"`
	Operator string   `json:"Operator"`
	Site     SiteInfo `json:"Site"`
	Location Location `json:"Location"`
}

// Component holds one element of the impedance tensor
type Component struct {
	Re  []float64 `json:"Re"`
	Im  []float64 `json:"Im"`
	Var []float64 `json:"Var"`
}

func (c *Component) Len() int { return len(c.Re) }

// Impedance returns sample i as a complex number
func (c *Component) Impedance(i int) complex128 {
	return complex(c.Re[i], c.Im[i])
}

// ApparentResistivity returns rho_a = 0.2 * T * |Z|^2 in Ohm-m, T = 1/f
func (c *Component) ApparentResistivity(freq []float64) []float64 {
	out := make([]float64, c.Len())
	for i := range out {
		a := cmplx.Abs(c.Impedance(i))
		out[i] = 0.2 / freq[i] * a * a
	}
	return out
}

// Phase returns the impedance phase in degrees
func (c *Component) Phase() []float64 {
	out := make([]float64, c.Len())
	for i := range out {
		out[i] = cmplx.Phase(c.Impedance(i)) * 180 / math.Pi
	}
	return out
}

// RelativeError returns sqrt(Var)/|Z|
func (c *Component) RelativeError() []float64 {
	out := make([]float64, c.Len())
	for i := range out {
		v := 0.0
		if i < len(c.Var) {
			v = c.Var[i]
		}
		out[i] = math.Sqrt(v) / cmplx.Abs(c.Impedance(i))
	}
	return out
}

func (c *Component) clone() *Component {
	return &Component{
		Re:  append([]float64(nil), c.Re...),
		Im:  append([]float64(nil), c.Im...),
		Var: append([]float64(nil), c.Var...),
	}
}

func (c *Component) keep(mask []bool) {
	c.Re = filter(c.Re, mask)
	c.Im = filter(c.Im, mask)
	c.Var = filter(c.Var, mask)
}

func filter(values []float64, mask []bool) []float64 {
	out := values[:0]
	for i, v := range values {
		if i < len(mask) && mask[i] {
			out = append(out, v)
		}
	}
	return out
}

// Document is a transfer function file. Keys outside Data.Freq and Data.Z
// are carried through unchanged on save.
type Document struct {
	Header Header
	Freq   []float64
	Z      map[string]*Component

	raw  map[string]json.RawMessage
	data map[string]json.RawMessage
}

// Parse decodes a document. Samples with a non-positive frequency are dropped.
func Parse(b []byte) (*Document, error) {
	doc := &Document{}
	if err := json.Unmarshal(b, &doc.raw); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	if h, ok := doc.raw["Header"]; ok {
		if err := json.Unmarshal(h, &doc.Header); err != nil {
			return nil, fmt.Errorf("failed to parse Header: %w", err)
		}
	}

	d, ok := doc.raw["Data"]
	if !ok {
		return nil, ErrNoData
	}
	if err := json.Unmarshal(d, &doc.data); err != nil {
		return nil, fmt.Errorf("failed to parse Data: %w", err)
	}
	if err := json.Unmarshal(doc.data["Freq"], &doc.Freq); err != nil {
		return nil, fmt.Errorf("failed to parse Data.Freq: %w", err)
	}
	if z, ok := doc.data["Z"]; ok {
		if err := json.Unmarshal(z, &doc.Z); err != nil {
			return nil, fmt.Errorf("failed to parse Data.Z: %w", err)
		}
	}
	if doc.Z == nil {
		doc.Z = map[string]*Component{}
	}

	for name, c := range doc.Z {
		if c == nil {
			delete(doc.Z, name)
			continue
		}
		if len(c.Re) != len(doc.Freq) || len(c.Im) != len(doc.Freq) || len(c.Var) != len(doc.Freq) {
			return nil, fmt.Errorf("%w: %s has %d/%d/%d samples, %d frequencies",
				ErrLengthMismatch, name, len(c.Re), len(c.Im), len(c.Var), len(doc.Freq))
		}
	}

	doc.DeleteWhere(func(i int) bool { return doc.Freq[i] <= 0 })
	return doc, nil
}

// Load reads the document stored at path
func Load(path string) (*Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	doc, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Save writes the document to path with four-space indentation
func (d *Document) Save(path string) error {
	b, err := json.MarshalIndent(d, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (d *Document) MarshalJSON() ([]byte, error) {
	data := make(map[string]json.RawMessage, len(d.data)+2)
	for k, v := range d.data {
		data[k] = v
	}
	freq, err := json.Marshal(d.Freq)
	if err != nil {
		return nil, err
	}
	z, err := json.Marshal(d.Z)
	if err != nil {
		return nil, err
	}
	data["Freq"] = freq
	data["Z"] = z

	raw := make(map[string]json.RawMessage, len(d.raw)+1)
	for k, v := range d.raw {
		raw[k] = v
	}
	if raw["Data"], err = json.Marshal(data); err != nil {
		return nil, err
	}
	return json.Marshal(raw)
}

// Len returns the number of frequencies
func (d *Document) Len() int { return len(d.Freq) }

// Periods returns 1/f for every frequency
func (d *Document) Periods() []float64 {
	out := make([]float64, len(d.Freq))
	for i, f := range d.Freq {
		out[i] = 1 / f
	}
	return out
}

// Components lists the tensor components present, sorted
func (d *Document) Components() []string {
	names := make([]string, 0, len(d.Z))
	for name := range d.Z {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Component returns a stored component or the derived determinant
// impedance sqrt(Zxx*Zyy - Zxy*Zyx)
func (d *Document) Component(name string) (*Component, error) {
	if name == Det {
		return d.determinant()
	}
	c, ok := d.Z[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownComp, name)
	}
	return c, nil
}

func (d *Document) determinant() (*Component, error) {
	var parts [4]*Component
	for i, name := range []string{XX, XY, YX, YY} {
		c, ok := d.Z[name]
		if !ok {
			return nil, fmt.Errorf("%w: determinant needs %q", ErrUnknownComp, name)
		}
		parts[i] = c
	}
	xx, xy, yx, yy := parts[0], parts[1], parts[2], parts[3]

	n := d.Len()
	det := &Component{Re: make([]float64, n), Im: make([]float64, n), Var: make([]float64, n)}
	for i := 0; i < n; i++ {
		z := cmplx.Sqrt(xx.Impedance(i)*yy.Impedance(i) - xy.Impedance(i)*yx.Impedance(i))
		det.Re[i] = real(z)
		det.Im[i] = imag(z)
		det.Var[i] = (xy.Var[i] + yx.Var[i]) / 2
	}
	return det, nil
}

// DeleteIndex removes sample i from the frequencies and every component
func (d *Document) DeleteIndex(i int) error {
	if i < 0 || i >= d.Len() {
		return fmt.Errorf("%w: %d of %d", ErrIndexRange, i, d.Len())
	}
	d.DeleteWhere(func(j int) bool { return j == i })
	return nil
}

// DeleteWhere removes every sample for which drop returns true and reports
// how many were removed. Components stay aligned with Freq.
func (d *Document) DeleteWhere(drop func(i int) bool) int {
	mask := make([]bool, d.Len())
	removed := 0
	for i := range mask {
		mask[i] = !drop(i)
		if !mask[i] {
			removed++
		}
	}
	if removed == 0 {
		return 0
	}

	d.Freq = filter(d.Freq, mask)
	for _, c := range d.Z {
		c.keep(mask)
	}
	return removed
}

// Clone returns a deep copy
func (d *Document) Clone() *Document {
	c := &Document{
		Header: d.Header,
		Freq:   append([]float64(nil), d.Freq...),
		Z:      make(map[string]*Component, len(d.Z)),
		raw:    d.raw,
		data:   d.data,
	}
	for name, comp := range d.Z {
		c.Z[name] = comp.clone()
	}
	return c
}
