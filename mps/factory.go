package mps

import (
	"fmt"
	"math"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/fumin/qmps/array"
	"github.com/fumin/qmps/site"
)

// denseImagTol is the largest imaginary part tolerated when reading a real wavefunction from complex64 entries.
const denseImagTol = 1e-6

// State is the local state of one site in a product state.
type State struct {
	index      int
	amplitudes []float64
}

// BasisIndex is the i-th basis state of a site.
func BasisIndex(i int) State { return State{index: i} }

// Amplitudes is the superposition with the given coefficients over the basis of a site.
func Amplitudes(v ...float64) State { return State{amplitudes: append([]float64(nil), v...)} }

func (s State) vector(dim int) ([]float64, error) {
	if s.amplitudes != nil {
		if len(s.amplitudes) != dim {
			return nil, errors.Wrapf(ErrShapeMismatch, "%d amplitudes, local dim %d", len(s.amplitudes), dim)
		}
		return append([]float64(nil), s.amplitudes...), nil
	}
	if s.index < 0 || s.index >= dim {
		return nil, errors.Wrapf(ErrShapeMismatch, "basis state %d, local dim %d", s.index, dim)
	}
	v := make([]float64, dim)
	v[s.index] = 1
	return v, nil
}

// FromProductState returns the product state with the local state states[i] on site i.
// chargeL is the charge of the leftmost bond, nil means zero.
func FromProductState(sites []*site.Site, states []State, bc Boundary, form Form, chargeL []int) (*MPS, error) {
	l := len(sites)
	if len(states) != l {
		return nil, errors.Wrapf(ErrShapeMismatch, "%d states for %d sites", len(states), l)
	}
	if l == 0 {
		return nil, errors.Wrapf(ErrValidation, "no sites")
	}
	ci := sites[0].Leg().Info
	legL := array.NewLeg(ci, [][]int{ci.MakeValid(chargeL)}, 1)

	bs := make([]*array.Array, 0, l)
	for i, s := range sites {
		v, err := states[i].vector(s.Dim())
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d", i))
		}
		largest := floats.MaxIdx(absAll(v))
		if v[largest] == 0 {
			return nil, errors.Wrapf(ErrShapeMismatch, "zero state on site %d", i)
		}

		// The right charge is fixed by the largest amplitude and a zero total charge.
		p := s.Leg()
		chargeR := ci.MakeValid(nil)
		for k := range chargeR {
			chargeR[k] = legL.Contribution(0)[k] + p.Contribution(largest)[k]
		}
		legR := array.NewLeg(ci, [][]int{chargeR}, -1)

		b, err := array.FromData([]array.Leg{legL, p, legR}, tensorLabels, v)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		if err := b.CheckCharges(0); err != nil {
			return nil, errors.Wrapf(ErrValidation, "site %d mixes charge sectors: %v", i, err)
		}
		bs = append(bs, b)
		legL = legR.Conj()
	}

	if bc == Infinite {
		// The right leg of the unit cell must match its left leg.
		first, _ := bs[0].Leg("vL")
		last, _ := bs[l-1].Leg("vR")
		diff := make([]int, ci.NumQ())
		for k := range diff {
			diff[k] = last.Charges[0][k] - first.Charges[0][k]
		}
		var err error
		bs[l-1], err = bs[l-1].GaugeTotalCharge("vR", diff)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
	}

	ss := make([]Spectrum, l+1)
	for i := range ss {
		ss[i] = ones()
	}
	psi, err := New(sites, bs, ss, bc, form)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return psi, nil
}

func absAll(v []float64) []float64 {
	a := make([]float64, 0, len(v))
	for _, x := range v {
		a = append(a, math.Abs(x))
	}
	return a
}

// FromFullTensor decomposes the wavefunction psi with legs p0, ..., p{L-1} into a finite state.
// A sweep of SVDs from the right produces B tensors, discarding singular values not above cutoff.
// The result is normalized, and converted to form, which must be A, B, C or G.
func FromFullTensor(sites []*site.Site, psi *array.Array, form Form, cutoff float64) (*MPS, error) {
	if !form.Named() {
		return nil, errors.Wrapf(ErrShapeMismatch, "invalid form %v", form)
	}
	l := len(sites)
	if l < 2 {
		return nil, errors.Wrapf(ErrShapeMismatch, "%d sites", l)
	}
	labels := make([]string, 0, l)
	for i := range l {
		labels = append(labels, physLabel(i))
	}
	x, err := psi.Transpose(labels...)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	// Combine vL, p0, ..., p{L-2} into one leg, leaving (left, p{L-1}, vR).
	if x, err = x.AddTrivialLeg(0, "vL", 1); err != nil {
		return nil, errors.Wrap(err, "")
	}
	for range l - 1 {
		ls := x.Labels()
		if x, err = x.CombineLegs(ls[0], ls[1]); err != nil {
			return nil, errors.Wrap(err, "")
		}
	}
	if x, err = x.AddTrivialLeg(2, "vR", -1); err != nil {
		return nil, errors.Wrap(err, "")
	}

	bs := make([]*array.Array, l)
	ss := make([]Spectrum, l+1)
	for i := l - 1; i > 0; i-- {
		if x, err = x.CombineLegs(labels[i], "vR"); err != nil {
			return nil, errors.Wrap(err, "")
		}
		u, s, v, err := array.SVD(x, cutoff, [2]string{"vR", "vL"}, nil)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d", i))
		}
		floats.Scale(1/floats.Norm(s, 2), s)
		if u, err = u.ScaleAxis(s, "vR"); err != nil {
			return nil, errors.Wrap(err, "")
		}
		if bs[i], err = splitB(v, labels[i]); err != nil {
			return nil, errors.Wrap(err, "")
		}
		ss[i] = Diagonal(s)
		if x, err = u.SplitLegs(u.Labels()[0]); err != nil {
			return nil, errors.Wrap(err, "")
		}
	}

	if x, err = x.CombineLegs(labels[0], "vR"); err != nil {
		return nil, errors.Wrap(err, "")
	}
	u, _, v, err := array.SVD(x, cutoff, [2]string{"vR", "vL"}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "0")
	}
	if shape := u.Shape(); shape[0] != 1 || shape[1] != 1 {
		panic(fmt.Sprintf("%#v", shape))
	}
	if bs[0], err = splitB(v, labels[0]); err != nil {
		return nil, errors.Wrap(err, "")
	}
	// Keep the sign of the wavefunction, which the SVD may have moved into u.
	if u.At(0, 0) < 0 {
		bs[0] = bs[0].Scale(-1)
	}
	ss[0], ss[l] = ones(), ones()

	res, err := New(sites, bs, ss, Finite, B)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if !form.Equal(B) {
		if err := res.ConvertForm(form); err != nil {
			return nil, errors.Wrap(err, "")
		}
	}
	return res, nil
}

// splitB turns the right factor (vL, (p{i}.vR)) of an SVD into a tensor (vL, p, vR).
func splitB(v *array.Array, p string) (*array.Array, error) {
	b, err := v.SplitLegs(v.Labels()[1])
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if b, err = b.ReplaceLabel(p, "p"); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return b.Transpose(tensorLabels...)
}

// FromDense is like FromFullTensor for a wavefunction given as a complex tensor with one axis per site.
// The entries must be real.
func FromDense(sites []*site.Site, psi *tensor.Dense, form Form, cutoff float64) (*MPS, error) {
	legs := make([]array.Leg, 0, len(sites))
	labels := make([]string, 0, len(sites))
	for i, s := range sites {
		legs = append(legs, s.Leg())
		labels = append(labels, physLabel(i))
	}
	a, err := array.FromDense(psi, legs, labels, denseImagTol)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if a, err = a.DetectQTotal(denseImagTol); err != nil {
		return nil, errors.Wrap(err, "")
	}
	res, err := FromFullTensor(sites, a, form, cutoff)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return res, nil
}
