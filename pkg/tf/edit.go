package tf

import (
	"fmt"
	"math"
	"strings"
)

// Quantity is a value derived from a component for display and selection
type Quantity int

const (
	Real Quantity = iota
	Imag
	// Rho is log10 of the apparent resistivity
	Rho
	Phase
)

var quantityNames = map[Quantity]string{
	Real:  "re",
	Imag:  "im",
	Rho:   "rho",
	Phase: "phase",
}

func (q Quantity) String() string {
	if s, ok := quantityNames[q]; ok {
		return s
	}
	return fmt.Sprintf("quantity(%d)", int(q))
}

// ParseQuantity accepts re, im, rho and phase (also "ph"), case insensitive
func ParseQuantity(s string) (Quantity, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "ph" {
		return Phase, nil
	}
	for q, name := range quantityNames {
		if name == s {
			return q, nil
		}
	}
	return 0, fmt.Errorf("unknown quantity %q", s)
}

// Values evaluates q for every sample of c
func (q Quantity) Values(c *Component, freq []float64) []float64 {
	switch q {
	case Real:
		return append([]float64(nil), c.Re...)
	case Imag:
		return append([]float64(nil), c.Im...)
	case Rho:
		rho := c.ApparentResistivity(freq)
		for i, v := range rho {
			rho[i] = math.Log10(v)
		}
		return rho
	case Phase:
		return c.Phase()
	}
	return make([]float64, c.Len())
}

// Region is a rectangle in (log10 period, value) space, edges included
type Region struct {
	MinX, MaxX float64
	MinY, MaxY float64
}

func (r Region) contains(x, y float64) bool {
	return x >= r.MinX && x <= r.MaxX && y >= r.MinY && y <= r.MaxY
}

// DeleteInRegion removes every sample whose log10 period and value of any
// of the given quantities of component fall inside r. The sample is removed
// from all components. It returns the number of samples removed.
func (d *Document) DeleteInRegion(component string, r Region, quantities ...Quantity) (int, error) {
	c, err := d.Component(component)
	if err != nil {
		return 0, err
	}

	values := make([][]float64, len(quantities))
	for i, q := range quantities {
		values[i] = q.Values(c, d.Freq)
	}

	return d.DeleteWhere(func(i int) bool {
		x := -math.Log10(d.Freq[i])
		for _, v := range values {
			if r.contains(x, v[i]) {
				return true
			}
		}
		return false
	}), nil
}

// MaxHistory bounds the number of undo snapshots an Editor keeps
const MaxHistory = 50

// Editor applies deletions to a document and keeps an undo history
type Editor struct {
	doc     *Document
	history []*Document
}

func NewEditor(doc *Document) *Editor {
	return &Editor{doc: doc}
}

// Document returns the current state
func (e *Editor) Document() *Document { return e.doc }

// History returns the number of undo steps available
func (e *Editor) History() int { return len(e.history) }

// push records prev as the state before the last deletion, dropping the
// oldest snapshot once MaxHistory is reached
func (e *Editor) push(prev *Document) {
	if len(e.history) >= MaxHistory {
		e.history = e.history[1:]
	}
	e.history = append(e.history, prev)
}

// DeleteIndex removes sample i
func (e *Editor) DeleteIndex(i int) error {
	prev := e.doc.Clone()
	if err := e.doc.DeleteIndex(i); err != nil {
		return err
	}
	e.push(prev)
	return nil
}

// DeleteInRegion removes the samples inside r. Nothing is recorded in the
// history when no sample matched.
func (e *Editor) DeleteInRegion(component string, r Region, quantities ...Quantity) (int, error) {
	prev := e.doc.Clone()
	n, err := e.doc.DeleteInRegion(component, r, quantities...)
	if err == nil && n > 0 {
		e.push(prev)
	}
	return n, err
}

// Undo restores the state before the last deletion. It returns false when
// there is nothing to undo.
func (e *Editor) Undo() bool {
	if len(e.history) == 0 {
		return false
	}
	last := len(e.history) - 1
	e.doc = e.history[last]
	e.history = e.history[:last]
	return true
}
