// Package mps implements Matrix Product States in canonical form.
//
// A state on L sites stores one tensor per site with legs (vL, p, vR),
// and L+1 spectra where spectra[i] sits on the bond left of site i.
// Each tensor carries a Form that records how much of the neighbouring spectra it has absorbed.
//
// References:
//   - The density-matrix renormalization group in the age of matrix product states, Ulrich Schollwock
//   - Efficient classical simulation of slightly entangled quantum computations, Guifre Vidal
package mps

import (
	"fmt"
	"math"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/fumin/qmps/array"
	"github.com/fumin/qmps/site"
)

const (
	// DefaultCutoff is the default relative cutoff of singular values when inverting a dense spectrum.
	DefaultCutoff = 1e-16

	// normTol is the tolerance of the unit norm of diagonal spectra.
	normTol = 1e-8
)

var tensorLabels = []string{"vL", "p", "vR"}

// MPS is a matrix product state.
type MPS struct {
	sites []*site.Site
	bs    []*array.Array
	ss    []Spectrum
	bc    Boundary
	forms []Form
}

// New returns a state with tensors bs and spectra ss.
// forms gives the form of the tensors: none means B, a single form applies to every site.
// The inputs are copied, and the state is validated before it is returned.
func New(sites []*site.Site, bs []*array.Array, ss []Spectrum, bc Boundary, forms ...Form) (*MPS, error) {
	if len(sites) == 0 {
		return nil, errors.Wrapf(ErrValidation, "no sites")
	}
	if bc != Finite && bc != Segment && bc != Infinite {
		return nil, errors.Wrapf(ErrValidation, "%v", bc)
	}
	fs, err := parseForms(len(sites), forms)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	psi := &MPS{sites: slices.Clone(sites), ss: slices.Clone(ss), bc: bc, forms: fs}
	for i, b := range bs {
		if b == nil {
			return nil, errors.Wrapf(ErrValidation, "nil tensor %d", i)
		}
		t, err := b.Transpose(tensorLabels...)
		if err != nil {
			return nil, errors.Wrapf(ErrValidation, "tensor %d has legs %v: %v", i, b.Labels(), err)
		}
		psi.bs = append(psi.bs, t)
	}

	if err := psi.Validate(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if bc == Infinite {
		psi.ss[psi.L()] = psi.ss[0]
	}
	return psi, nil
}

// Validate checks the invariants of the state.
func (psi *MPS) Validate() error {
	l := len(psi.sites)
	if len(psi.bs) != l {
		return errors.Wrapf(ErrValidation, "%d tensors for %d sites", len(psi.bs), l)
	}
	if len(psi.ss) != l+1 {
		return errors.Wrapf(ErrValidation, "%d spectra for %d sites", len(psi.ss), l)
	}
	if len(psi.forms) != l {
		return errors.Wrapf(ErrValidation, "%d forms for %d sites", len(psi.forms), l)
	}
	for i, s := range psi.ss {
		if !s.valid() {
			return errors.Wrapf(ErrValidation, "spectrum %d is not a vector or matrix", i)
		}
		if s.IsDense() {
			continue
		}
		for _, v := range s.values {
			if v < 0 || math.IsNaN(v) {
				return errors.Wrapf(ErrValidation, "spectrum %d %v", i, s.values)
			}
		}
		if n := floats.Norm(s.values, 2); math.Abs(n-1) > normTol {
			return errors.Wrapf(ErrValidation, "spectrum %d has norm %v", i, n)
		}
	}

	for i, b := range psi.bs {
		labels := b.Labels()
		slices.Sort(labels)
		if !slices.Equal(labels, []string{"p", "vL", "vR"}) {
			return errors.Wrapf(ErrValidation, "tensor %d has legs %v", i, b.Labels())
		}
		p, _ := b.Leg("p")
		if !array.Equal(p, psi.sites[i].Leg()) {
			return errors.Wrapf(ErrValidation, "tensor %d has physical leg %#v, site %#v", i, p, psi.sites[i].Leg())
		}
		vL, _ := b.Leg("vL")
		vR, _ := b.Leg("vR")
		if _, trailing := psi.ss[i].dims(); trailing != vL.Dim() {
			return errors.Wrapf(ErrValidation, "spectrum %d has dim %d, tensor %d vL %d", i, trailing, i, vL.Dim())
		}
		if leading, _ := psi.ss[i+1].dims(); leading != vR.Dim() {
			return errors.Wrapf(ErrValidation, "spectrum %d has dim %d, tensor %d vR %d", i+1, leading, i, vR.Dim())
		}
		if psi.bc != Infinite && i == l-1 {
			continue
		}
		next, _ := psi.bs[(i+1)%l].Leg("vL")
		if err := array.Contractible(vR, next); err != nil {
			return errors.Wrapf(ErrValidation, "bond %d: %v", i+1, err)
		}
	}

	switch psi.bc {
	case Finite:
		for _, i := range []int{0, l} {
			s := psi.ss[i]
			if s.IsDense() || len(s.values) != 1 || math.Abs(s.values[0]-1) > normTol {
				return errors.Wrapf(ErrValidation, "finite boundary spectrum %d is not trivial", i)
			}
		}
	case Infinite:
		if !psi.ss[l].equal(psi.ss[0]) {
			return errors.Wrapf(ErrValidation, "infinite state with spectrum %d != spectrum 0", l)
		}
	}
	return nil
}

// L returns the number of sites.
func (psi *MPS) L() int { return len(psi.sites) }

// Boundary returns the boundary condition.
func (psi *MPS) Boundary() Boundary { return psi.bc }

// Finite reports whether the chain is open, which is the case for Finite and Segment boundaries.
func (psi *MPS) Finite() bool { return psi.bc != Infinite }

// Sites returns the sites.
func (psi *MPS) Sites() []*site.Site { return slices.Clone(psi.sites) }

// Dims returns the local dimension of every site.
func (psi *MPS) Dims() []int {
	dims := make([]int, 0, len(psi.sites))
	for _, s := range psi.sites {
		dims = append(dims, s.Dim())
	}
	return dims
}

// Form returns the form of the tensor at site i.
func (psi *MPS) Form(i int) (Form, error) {
	i, err := psi.index(i)
	if err != nil {
		return Unknown, errors.Wrap(err, "")
	}
	return psi.forms[i], nil
}

// Forms returns the form of every tensor.
func (psi *MPS) Forms() []Form { return slices.Clone(psi.forms) }

// NontrivialBonds returns the bond indices in [first, last) that may carry more than one singular value.
func (psi *MPS) NontrivialBonds() (int, int) {
	switch psi.bc {
	case Finite:
		return 1, psi.L()
	case Segment:
		return 0, psi.L() + 1
	}
	return 0, psi.L()
}

// Chi returns the dimension of the nontrivial bonds.
func (psi *MPS) Chi() []int {
	first, last := psi.NontrivialBonds()
	chi := make([]int, 0, last-first)
	for _, s := range psi.ss[first:last] {
		leading, _ := s.dims()
		chi = append(chi, leading)
	}
	return chi
}

// EntanglementEntropy returns the von Neumann entropy of the nontrivial bonds.
func (psi *MPS) EntanglementEntropy() ([]float64, error) {
	first, last := psi.NontrivialBonds()
	es := make([]float64, 0, last-first)
	for i, s := range psi.ss[first:last] {
		e, err := s.Entropy()
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d", first+i))
		}
		es = append(es, e)
	}
	return es, nil
}

func (psi *MPS) index(i int) (int, error) {
	return resolveIndex(psi.bc, psi.L(), i)
}

// Tensor returns a copy of the tensor at site i in form.
// Unknown returns the tensor in the form it is stored.
func (psi *MPS) Tensor(i int, form Form, cutoff float64) (*array.Array, error) {
	i, err := psi.index(i)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	b, err := Convert(psi.bs[i], psi.ss[i], psi.ss[i+1], psi.forms[i], form, true, cutoff)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("%d", i))
	}
	return b, nil
}

// Borrow is like Tensor, but avoids the copy when no conversion is needed.
func (psi *MPS) Borrow(i int, form Form, cutoff float64) (Borrowed, error) {
	i, err := psi.index(i)
	if err != nil {
		return Borrowed{}, errors.Wrap(err, "")
	}
	b, err := Convert(psi.bs[i], psi.ss[i], psi.ss[i+1], psi.forms[i], form, false, cutoff)
	if err != nil {
		return Borrowed{}, errors.Wrap(err, fmt.Sprintf("%d", i))
	}
	return Borrowed{a: b}, nil
}

// SetTensor stores b at site i in form.
// The state is not validated, callers restore its invariants themselves.
func (psi *MPS) SetTensor(i int, b *array.Array, form Form) error {
	i, err := psi.index(i)
	if err != nil {
		return errors.Wrap(err, "")
	}
	t, err := b.Transpose(tensorLabels...)
	if err != nil {
		return errors.Wrapf(ErrValidation, "tensor has legs %v: %v", b.Labels(), err)
	}
	psi.bs[i] = t
	psi.forms[i] = form
	return nil
}

// SL returns the spectrum to the left of site i.
func (psi *MPS) SL(i int) (Spectrum, error) {
	i, err := psi.index(i)
	if err != nil {
		return Spectrum{}, errors.Wrap(err, "")
	}
	return psi.ss[i], nil
}

// SR returns the spectrum to the right of site i.
func (psi *MPS) SR(i int) (Spectrum, error) {
	i, err := psi.index(i)
	if err != nil {
		return Spectrum{}, errors.Wrap(err, "")
	}
	return psi.ss[i+1], nil
}

// SetSL sets the spectrum to the left of site i.
// For infinite states, the bond left of site 0 is also the bond right of site L-1.
func (psi *MPS) SetSL(i int, s Spectrum) error {
	i, err := psi.index(i)
	if err != nil {
		return errors.Wrap(err, "")
	}
	psi.ss[i] = s
	if psi.bc == Infinite && i == 0 {
		psi.ss[psi.L()] = s
	}
	return nil
}

// SetSR sets the spectrum to the right of site i.
func (psi *MPS) SetSR(i int, s Spectrum) error {
	i, err := psi.index(i)
	if err != nil {
		return errors.Wrap(err, "")
	}
	psi.ss[i+1] = s
	if psi.bc == Infinite && i == psi.L()-1 {
		psi.ss[0] = s
	}
	return nil
}

// ConvertForm converts every tensor to forms, which is broadcast like in New.
// It fails without touching the state if a tensor of Unknown form would need a conversion.
func (psi *MPS) ConvertForm(forms ...Form) error {
	fs, err := parseForms(psi.L(), forms)
	if err != nil {
		return errors.Wrap(err, "")
	}
	bs := make([]*array.Array, psi.L())
	for i, f := range fs {
		if !psi.forms[i].Known() && f.Known() {
			return errors.Wrapf(ErrUnknownFormConversion, "site %d", i)
		}
		bs[i], err = Convert(psi.bs[i], psi.ss[i], psi.ss[i+1], psi.forms[i], f, false, DefaultCutoff)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("%d", i))
		}
	}
	psi.bs = bs
	psi.forms = fs
	return nil
}

// Copy returns a deep copy of psi.
func (psi *MPS) Copy() *MPS {
	c := &MPS{sites: slices.Clone(psi.sites), ss: slices.Clone(psi.ss), bc: psi.bc, forms: slices.Clone(psi.forms)}
	for _, b := range psi.bs {
		c.bs = append(c.bs, b.Copy())
	}
	return c
}

// Borrowed is a read-only view of a tensor that may be shared with the state it came from.
type Borrowed struct {
	a *array.Array
}

// Labels returns the leg labels.
func (b Borrowed) Labels() []string { return b.a.Labels() }

// Shape returns the leg dimensions.
func (b Borrowed) Shape() []int { return b.a.Shape() }

// At returns the entry at idx.
func (b Borrowed) At(idx ...int) float64 { return b.a.At(idx...) }

// Leg returns the leg labeled label.
func (b Borrowed) Leg(label string) (array.Leg, error) { return b.a.Leg(label) }

// Norm returns the Frobenius norm.
func (b Borrowed) Norm() float64 { return b.a.Norm() }

// Own returns a copy that the caller may modify.
func (b Borrowed) Own() *array.Array { return b.a.Copy() }
