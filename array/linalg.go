package array

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// epsilon is the float64 machine epsilon.
const epsilon = 0x1p-52

// Tensordot contracts the legs axesA[k] of a with the legs axesB[k] of b.
// The result has the remaining legs of a followed by the remaining legs of b.
func Tensordot(a, b *Array, axesA, axesB []string) (*Array, error) {
	if len(axesA) != len(axesB) {
		return nil, errors.Errorf("%#v %#v", axesA, axesB)
	}
	if !a.info.Equal(b.info) {
		return nil, errors.Wrapf(ErrIncompatibleLegs, "%#v %#v", a.info, b.info)
	}
	contractA := make([]int, 0, len(axesA))
	contractB := make([]int, 0, len(axesB))
	for k := range axesA {
		ia, err := a.LegIndex(axesA[k])
		if err != nil {
			return nil, err
		}
		ib, err := b.LegIndex(axesB[k])
		if err != nil {
			return nil, err
		}
		if err := Contractible(a.legs[ia], b.legs[ib]); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%q %q", axesA[k], axesB[k]))
		}
		contractA = append(contractA, ia)
		contractB = append(contractB, ib)
	}
	freeA := freeAxes(a.Rank(), contractA)
	freeB := freeAxes(b.Rank(), contractB)

	at := a.permute(slices.Concat(freeA, contractA))
	bt := b.permute(slices.Concat(contractB, freeB))
	m, k, n := 1, 1, 1
	for _, i := range freeA {
		m *= a.shape[i]
	}
	for _, i := range contractA {
		k *= a.shape[i]
	}
	for _, i := range freeB {
		n *= b.shape[i]
	}

	c := &Array{info: a.info, qtotal: a.info.add(a.qtotal, b.qtotal)}
	for _, i := range freeA {
		c.legs = append(c.legs, a.legs[i])
		c.labels = append(c.labels, a.labels[i])
		c.shape = append(c.shape, a.shape[i])
	}
	for _, i := range freeB {
		c.legs = append(c.legs, b.legs[i])
		c.labels = append(c.labels, b.labels[i])
		c.shape = append(c.shape, b.shape[i])
	}
	for i, l := range c.labels {
		if slices.Index(c.labels, l) != i {
			return nil, errors.Wrapf(ErrShape, "duplicate label %q", l)
		}
	}

	c.data = make([]float64, m*n)
	mc := mat.NewDense(m, n, c.data)
	mc.Mul(mat.NewDense(m, k, at.data), mat.NewDense(k, n, bt.data))
	return c, nil
}

func freeAxes(rank int, contracted []int) []int {
	free := make([]int, 0, rank)
	for i := range rank {
		if !slices.Contains(contracted, i) {
			free = append(free, i)
		}
	}
	return free
}

// Inner returns the sum over all entries of a times b, matching legs by label.
func Inner(a, b *Array) (float64, error) {
	bt, err := b.Transpose(a.labels...)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	if !slices.Equal(a.shape, bt.shape) {
		return 0, errors.Wrapf(ErrShape, "%#v %#v", a.shape, bt.shape)
	}
	return floats.Dot(a.data, bt.data), nil
}

type singular struct {
	value  float64
	charge []int
	u      []float64 // column of U restricted to the rows of its block
	v      []float64 // row of V^T restricted to the columns of its block
	rows   []int
	cols   []int
}

// SVD decomposes the matrix a = u · diag(s) · v.
// Only singular values larger than cutoff are kept, but never fewer than one.
// Values below the numerical rank of a, max(rows, cols)*epsilon times the largest value, are dropped as well.
// The new leg of u is labeled inner[0], the new leg of v is labeled inner[1].
// u carries the total charge qtotalLeft, v carries the rest.
// Singular values are returned in descending order.
func SVD(a *Array, cutoff float64, inner [2]string, qtotalLeft []int) (*Array, []float64, *Array, error) {
	if a.Rank() != 2 {
		return nil, nil, nil, errors.Wrapf(ErrRank, "%d", a.Rank())
	}
	ci := a.info
	qtL := ci.MakeValid(qtotalLeft)
	qtR := ci.sub(a.qtotal, qtL)
	rowLeg, colLeg := a.legs[0], a.legs[1]
	nCols := a.shape[1]

	// Group rows and columns into charge sectors.
	type sector struct {
		charge []int
		idx    []int
	}
	group := func(l Leg) []sector {
		sectors := make([]sector, 0)
		for i := range l.Dim() {
			q := l.Contribution(i)
			j := slices.IndexFunc(sectors, func(s sector) bool { return ci.equal(s.charge, q) })
			if j < 0 {
				sectors = append(sectors, sector{charge: q})
				j = len(sectors) - 1
			}
			sectors[j].idx = append(sectors[j].idx, i)
		}
		return sectors
	}
	rowSectors, colSectors := group(rowLeg), group(colLeg)

	all := make([]singular, 0)
	for _, rs := range rowSectors {
		want := ci.sub(a.qtotal, rs.charge)
		j := slices.IndexFunc(colSectors, func(s sector) bool { return ci.equal(s.charge, want) })
		if j < 0 {
			continue
		}
		cs := colSectors[j]

		blk := mat.NewDense(len(rs.idx), len(cs.idx), nil)
		for bi, r := range rs.idx {
			for bj, c := range cs.idx {
				blk.Set(bi, bj, a.data[r*nCols+c])
			}
		}
		var svd mat.SVD
		if ok := svd.Factorize(blk, mat.SVDThin); !ok {
			return nil, nil, nil, errors.Errorf("svd failed %#v", rs.charge)
		}
		vals := svd.Values(nil)
		var u, v mat.Dense
		svd.UTo(&u)
		svd.VTo(&v)

		// The inner leg of u is outgoing with charge r - qtL, the inner leg of v is incoming with the same charge.
		charge := ci.sub(rs.charge, qtL)
		for k, val := range vals {
			sv := singular{value: val, charge: charge, rows: rs.idx, cols: cs.idx}
			sv.u = mat.Col(nil, k, &u)
			sv.v = mat.Col(nil, k, &v)
			all = append(all, sv)
		}
	}
	slices.SortStableFunc(all, func(x, y singular) int { return cmp.Compare(y.value, x.value) })
	if len(all) == 0 || all[0].value == 0 {
		return nil, nil, nil, errors.Errorf("zero matrix %v", a.labels)
	}

	// Values within rounding error of zero are dropped even for a zero cutoff.
	tol := math.Max(cutoff, numericalZero(all[0].value, a.shape[0], a.shape[1]))
	svs := all[:1]
	for _, sv := range all[1:] {
		if sv.value > tol {
			svs = append(svs, sv)
		}
	}

	charges := make([][]int, 0, len(svs))
	s := make([]float64, 0, len(svs))
	for _, sv := range svs {
		charges = append(charges, sv.charge)
		s = append(s, sv.value)
	}
	chi := len(svs)

	u, err := Zeros([]Leg{rowLeg, NewLeg(ci, charges, -1)}, []string{a.labels[0], inner[0]})
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "")
	}
	u.qtotal = qtL
	v, err := Zeros([]Leg{NewLeg(ci, charges, 1), colLeg}, []string{inner[1], a.labels[1]})
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "")
	}
	v.qtotal = qtR
	for k, sv := range svs {
		for bi, r := range sv.rows {
			u.data[r*chi+k] = sv.u[bi]
		}
		for bj, c := range sv.cols {
			v.data[k*nCols+c] = sv.v[bj]
		}
	}
	return u, s, v, nil
}

// numericalZero is the largest singular value of a rows x cols matrix that is indistinguishable from zero,
// given its largest singular value smax.
func numericalZero(smax float64, rows, cols int) float64 {
	return smax * float64(max(rows, cols)) * epsilon
}

// PseudoInverse returns the Moore-Penrose pseudo-inverse of the matrix a.
// Singular values smaller than cutoff times the largest singular value are discarded.
// If a has legs (l0, l1), the result has legs (l1, l0), both conjugated.
func PseudoInverse(a *Array, cutoff float64) (*Array, error) {
	if a.Rank() != 2 {
		return nil, errors.Wrapf(ErrRank, "%d", a.Rank())
	}
	rows, cols := a.shape[0], a.shape[1]
	var svd mat.SVD
	if ok := svd.Factorize(mat.NewDense(rows, cols, slices.Clone(a.data)), mat.SVDThin); !ok {
		return nil, errors.Errorf("svd failed %v", a.labels)
	}
	vals := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	threshold := cutoff * slices.Max(vals)
	inv := make([]float64, len(vals))
	for k, val := range vals {
		if val > threshold && val > 0 {
			inv[k] = 1 / val
		}
	}
	// pinv = V · diag(inv) · U^T
	vs := mat.DenseCopyOf(&v)
	for k, x := range inv {
		col := mat.Col(nil, k, vs)
		floats.Scale(x, col)
		vs.SetCol(k, col)
	}
	p, err := Zeros([]Leg{a.legs[1].Conj(), a.legs[0].Conj()}, []string{a.labels[1], a.labels[0]})
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	p.qtotal = a.info.sub(a.info.MakeValid(nil), a.qtotal)
	mat.NewDense(cols, rows, p.data).Mul(vs, u.T())
	return p, nil
}
