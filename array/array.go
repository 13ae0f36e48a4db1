// Package array implements dense multi-dimensional arrays with labeled legs and abelian charges.
//
// Every leg carries a charge for each of its indices.
// An entry may be nonzero only if the charge contributions of its indices sum to the total charge of the array.
// Arrays are values in practice: every operation returns a new Array, except Set which writes in place.
package array

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrIncompatibleLegs is returned when contracted or compared legs differ in charges or direction.
	ErrIncompatibleLegs = errors.New("array: incompatible legs")
	// ErrNoLabel is returned when an array has no leg with the requested label.
	ErrNoLabel = errors.New("array: no such label")
	// ErrRank is returned when an array has the wrong number of legs for an operation.
	ErrRank = errors.New("array: wrong rank")
	// ErrShape is returned for data or labels whose length does not match the legs.
	ErrShape = errors.New("array: wrong shape")
)

// Array is a dense row-major array of float64 with labeled legs.
type Array struct {
	info   ChargeInfo
	legs   []Leg
	labels []string
	qtotal []int
	shape  []int
	data   []float64
}

// Zeros returns an array of zeros with the given legs and labels.
func Zeros(legs []Leg, labels []string) (*Array, error) {
	a, err := newArray(legs, labels)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	a.data = make([]float64, size(a.shape))
	return a, nil
}

// FromData returns an array with the given legs and labels, whose row-major entries are data.
// data is copied.
func FromData(legs []Leg, labels []string, data []float64) (*Array, error) {
	a, err := newArray(legs, labels)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if len(data) != size(a.shape) {
		return nil, errors.Wrapf(ErrShape, "%d %#v", len(data), a.shape)
	}
	a.data = slices.Clone(data)
	return a, nil
}

func newArray(legs []Leg, labels []string) (*Array, error) {
	if len(legs) != len(labels) {
		return nil, errors.Wrapf(ErrShape, "%d legs %d labels", len(legs), len(labels))
	}
	var ci ChargeInfo
	if len(legs) > 0 {
		ci = legs[0].Info
	}
	a := &Array{info: ci, legs: slices.Clone(legs), labels: slices.Clone(labels), qtotal: ci.MakeValid(nil)}
	for i, l := range legs {
		if !l.Info.Equal(ci) {
			return nil, errors.Wrapf(ErrIncompatibleLegs, "%d %#v %#v", i, l.Info, ci)
		}
		if l.Dim() == 0 {
			return nil, errors.Wrapf(ErrShape, "leg %q has dimension 0", labels[i])
		}
		if slices.Index(labels, labels[i]) != i {
			return nil, errors.Wrapf(ErrShape, "duplicate label %q", labels[i])
		}
		a.shape = append(a.shape, l.Dim())
	}
	return a, nil
}

// Info returns the charge info shared by all legs.
func (a *Array) Info() ChargeInfo { return a.info }

// Rank returns the number of legs.
func (a *Array) Rank() int { return len(a.legs) }

// Shape returns the dimensions of the legs.
func (a *Array) Shape() []int { return slices.Clone(a.shape) }

// Labels returns the leg labels in storage order.
func (a *Array) Labels() []string { return slices.Clone(a.labels) }

// QTotal returns the total charge.
func (a *Array) QTotal() []int { return slices.Clone(a.qtotal) }

// Data returns a copy of the row-major entries.
func (a *Array) Data() []float64 { return slices.Clone(a.data) }

// HasLabel reports whether a has a leg labeled label.
func (a *Array) HasLabel(label string) bool { return slices.Contains(a.labels, label) }

// LegIndex returns the position of the leg labeled label.
func (a *Array) LegIndex(label string) (int, error) {
	i := slices.Index(a.labels, label)
	if i < 0 {
		return -1, errors.Wrapf(ErrNoLabel, "%q not in %v", label, a.labels)
	}
	return i, nil
}

// Leg returns the leg labeled label.
func (a *Array) Leg(label string) (Leg, error) {
	i, err := a.LegIndex(label)
	if err != nil {
		return Leg{}, err
	}
	return a.legs[i], nil
}

// LegAt returns the i-th leg.
func (a *Array) LegAt(i int) Leg { return a.legs[i] }

// At returns the entry at idx.
func (a *Array) At(idx ...int) float64 {
	return a.data[a.flat(idx)]
}

// Set writes v at idx.
func (a *Array) Set(v float64, idx ...int) {
	a.data[a.flat(idx)] = v
}

func (a *Array) flat(idx []int) int {
	if len(idx) != len(a.shape) {
		panic(fmt.Sprintf("%#v %#v", idx, a.shape))
	}
	f := 0
	for k, i := range idx {
		if i < 0 || i >= a.shape[k] {
			panic(fmt.Sprintf("%#v %#v", idx, a.shape))
		}
		f = f*a.shape[k] + i
	}
	return f
}

// Copy returns a deep copy of a.
func (a *Array) Copy() *Array {
	c := a.header()
	c.data = slices.Clone(a.data)
	return c
}

// header returns a shallow copy that shares data with a.
func (a *Array) header() *Array {
	return &Array{
		info:   a.info,
		legs:   slices.Clone(a.legs),
		labels: slices.Clone(a.labels),
		qtotal: slices.Clone(a.qtotal),
		shape:  slices.Clone(a.shape),
		data:   a.data,
	}
}

// ReplaceLabel returns a with the leg old renamed to new.
// The result shares its entries with a.
func (a *Array) ReplaceLabel(old, new string) (*Array, error) {
	return a.ReplaceLabels([]string{old}, []string{new})
}

// ReplaceLabels renames the legs olds[k] to news[k].
// The result shares its entries with a.
func (a *Array) ReplaceLabels(olds, news []string) (*Array, error) {
	if len(olds) != len(news) {
		return nil, errors.Errorf("%#v %#v", olds, news)
	}
	c := a.header()
	for k, old := range olds {
		i := slices.Index(a.labels, old)
		if i < 0 {
			return nil, errors.Wrapf(ErrNoLabel, "%q not in %v", old, a.labels)
		}
		c.labels[i] = news[k]
	}
	for i, l := range c.labels {
		if slices.Index(c.labels, l) != i {
			return nil, errors.Wrapf(ErrShape, "duplicate label %q", l)
		}
	}
	return c, nil
}

// Transpose returns a with its legs reordered as labels.
func (a *Array) Transpose(labels ...string) (*Array, error) {
	if len(labels) != len(a.labels) {
		return nil, errors.Wrapf(ErrRank, "%v %v", labels, a.labels)
	}
	perm := make([]int, 0, len(labels))
	for _, l := range labels {
		i, err := a.LegIndex(l)
		if err != nil {
			return nil, err
		}
		if slices.Contains(perm, i) {
			return nil, errors.Wrapf(ErrShape, "duplicate label %q", l)
		}
		perm = append(perm, i)
	}
	return a.permute(perm), nil
}

// permute returns an array whose k-th leg is the perm[k]-th leg of a.
func (a *Array) permute(perm []int) *Array {
	identity := true
	for k, p := range perm {
		if k != p {
			identity = false
		}
	}
	if identity {
		return a.Copy()
	}

	c := &Array{info: a.info, qtotal: slices.Clone(a.qtotal), data: make([]float64, len(a.data))}
	for _, p := range perm {
		c.legs = append(c.legs, a.legs[p])
		c.labels = append(c.labels, a.labels[p])
		c.shape = append(c.shape, a.shape[p])
	}

	// srcStride[k] is the stride in a of the k-th leg of c.
	strides := rowMajorStrides(a.shape)
	srcStride := make([]int, len(perm))
	for k, p := range perm {
		srcStride[k] = strides[p]
	}
	idx := make([]int, len(c.shape))
	for f := range c.data {
		src := 0
		for k, i := range idx {
			src += i * srcStride[k]
		}
		c.data[f] = a.data[src]
		increment(idx, c.shape)
	}
	return c
}

// ScaleAxis multiplies the leg labeled label elementwise by v.
func (a *Array) ScaleAxis(v []float64, label string) (*Array, error) {
	ax, err := a.LegIndex(label)
	if err != nil {
		return nil, err
	}
	if len(v) != a.shape[ax] {
		return nil, errors.Wrapf(ErrShape, "%d %#v %q", len(v), a.shape, label)
	}
	c := a.Copy()
	inner := 1
	for _, d := range a.shape[ax+1:] {
		inner *= d
	}
	for f := range c.data {
		c.data[f] *= v[(f/inner)%a.shape[ax]]
	}
	return c, nil
}

// Scale returns a multiplied by x.
func (a *Array) Scale(x float64) *Array {
	c := a.Copy()
	floats.Scale(x, c.data)
	return c
}

// Norm returns the Frobenius norm.
func (a *Array) Norm() float64 {
	return floats.Norm(a.data, 2)
}

// AddTrivialLeg inserts a leg of dimension 1 and zero charge at position pos.
func (a *Array) AddTrivialLeg(pos int, label string, qconj int) (*Array, error) {
	if pos < 0 || pos > len(a.legs) {
		return nil, errors.Wrapf(ErrRank, "%d %d", pos, len(a.legs))
	}
	if a.HasLabel(label) {
		return nil, errors.Wrapf(ErrShape, "duplicate label %q", label)
	}
	c := a.Copy()
	c.legs = slices.Insert(c.legs, pos, TrivialLeg(a.info, 1, qconj))
	c.labels = slices.Insert(c.labels, pos, label)
	c.shape = slices.Insert(c.shape, pos, 1)
	return c, nil
}

// GaugeTotalCharge shifts the charges of the leg labeled label such that the total charge becomes target.
// All nonzero entries keep satisfying the charge rule.
func (a *Array) GaugeTotalCharge(label string, target []int) (*Array, error) {
	ax, err := a.LegIndex(label)
	if err != nil {
		return nil, err
	}
	target = a.info.MakeValid(target)
	leg := a.legs[ax]
	shift := a.info.sub(target, a.qtotal)
	for k := range shift {
		shift[k] *= leg.QConj
	}
	charges := make([][]int, 0, leg.Dim())
	for _, q := range leg.Charges {
		charges = append(charges, a.info.add(q, shift))
	}

	c := a.Copy()
	c.legs[ax] = NewLeg(a.info, charges, leg.QConj)
	c.qtotal = target
	return c, nil
}

// Conj returns a with every leg conjugated and the total charge negated.
// The entries are real, so they are unchanged.
func (a *Array) Conj() *Array {
	c := a.Copy()
	for i, l := range c.legs {
		c.legs[i] = l.Conj()
	}
	c.qtotal = a.info.sub(a.info.MakeValid(nil), a.qtotal)
	return c
}

// DetectQTotal returns a copy of a whose total charge is read off its largest entry.
// It fails if a is zero or if another entry larger than tol violates the charge rule.
func (a *Array) DetectQTotal(tol float64) (*Array, error) {
	largest := -1
	for f, v := range a.data {
		if v != 0 && (largest < 0 || math.Abs(v) > math.Abs(a.data[largest])) {
			largest = f
		}
	}
	if largest < 0 {
		return nil, errors.Errorf("zero array %v", a.labels)
	}
	idx := make([]int, len(a.shape))
	for k, s := range rowMajorStrides(a.shape) {
		idx[k] = (largest / s) % a.shape[k]
	}
	q := a.info.MakeValid(nil)
	for k, l := range a.legs {
		q = a.info.add(q, l.Contribution(idx[k]))
	}

	c := a.Copy()
	c.qtotal = q
	if err := c.CheckCharges(tol); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return c, nil
}

// CombineLegs merges the legs labeled labels into one leg labeled "(l0.l1...)".
// The merged leg takes the position of the leftmost of the merged legs.
func (a *Array) CombineLegs(labels ...string) (*Array, error) {
	if len(labels) == 0 {
		return nil, errors.Wrapf(ErrRank, "nothing to combine")
	}
	group := make([]int, 0, len(labels))
	for _, l := range labels {
		i, err := a.LegIndex(l)
		if err != nil {
			return nil, err
		}
		if slices.Contains(group, i) {
			return nil, errors.Wrapf(ErrShape, "duplicate label %q", l)
		}
		group = append(group, i)
	}
	pos := slices.Min(group)

	perm := make([]int, 0, len(a.legs))
	for i := 0; i < pos; i++ {
		if !slices.Contains(group, i) {
			perm = append(perm, i)
		}
	}
	perm = append(perm, group...)
	for i := pos; i < len(a.legs); i++ {
		if !slices.Contains(group, i) {
			perm = append(perm, i)
		}
	}
	t := a.permute(perm)

	p := &pipe{}
	for _, g := range group {
		p.legs = append(p.legs, a.legs[g])
		p.labels = append(p.labels, a.labels[g])
	}
	subShape := make([]int, 0, len(group))
	for _, l := range p.legs {
		subShape = append(subShape, l.Dim())
	}
	charges := make([][]int, 0, size(subShape))
	idx := make([]int, len(subShape))
	for range size(subShape) {
		q := a.info.MakeValid(nil)
		for k, l := range p.legs {
			q = a.info.add(q, l.Contribution(idx[k]))
		}
		charges = append(charges, q)
		increment(idx, subShape)
	}
	combined := NewLeg(a.info, charges, 1)
	combined.pipe = p

	n := len(group)
	c := &Array{info: a.info, qtotal: t.qtotal, data: t.data}
	c.legs = slices.Concat(t.legs[:pos], []Leg{combined}, t.legs[pos+n:])
	c.labels = slices.Concat(t.labels[:pos], []string{"(" + strings.Join(labels, ".") + ")"}, t.labels[pos+n:])
	c.shape = slices.Concat(t.shape[:pos], []int{combined.Dim()}, t.shape[pos+n:])
	return c, nil
}

// SplitLegs undoes CombineLegs for the leg labeled label.
func (a *Array) SplitLegs(label string) (*Array, error) {
	ax, err := a.LegIndex(label)
	if err != nil {
		return nil, err
	}
	leg := a.legs[ax]
	if leg.pipe == nil {
		return nil, errors.Errorf("leg %q was not combined", label)
	}

	shape := make([]int, 0, len(leg.pipe.legs))
	for _, l := range leg.pipe.legs {
		shape = append(shape, l.Dim())
	}
	c := a.Copy()
	c.legs = slices.Concat(a.legs[:ax], leg.pipe.legs, a.legs[ax+1:])
	c.labels = slices.Concat(a.labels[:ax], leg.pipe.labels, a.labels[ax+1:])
	c.shape = slices.Concat(a.shape[:ax], shape, a.shape[ax+1:])
	for i, l := range c.labels {
		if slices.Index(c.labels, l) != i {
			return nil, errors.Wrapf(ErrShape, "duplicate label %q", l)
		}
	}
	return c, nil
}

// CheckCharges returns an error if an entry larger than tol in magnitude violates the charge rule.
func (a *Array) CheckCharges(tol float64) error {
	idx := make([]int, len(a.shape))
	for _, v := range a.data {
		if v > tol || v < -tol {
			q := a.info.MakeValid(nil)
			for k, l := range a.legs {
				q = a.info.add(q, l.Contribution(idx[k]))
			}
			if !a.info.equal(q, a.qtotal) {
				return errors.Errorf("entry %v = %v has charge %v, qtotal %v", idx, v, q, a.qtotal)
			}
		}
		increment(idx, a.shape)
	}
	return nil
}

// String formats a as its labels, shape and entries.
func (a *Array) String() string {
	return fmt.Sprintf("%v%v%v", a.labels, a.shape, a.data)
}

func size(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	s := 1
	for k := len(shape) - 1; k >= 0; k-- {
		strides[k] = s
		s *= shape[k]
	}
	return strides
}

// increment advances idx to the next row-major index of shape.
func increment(idx, shape []int) {
	for k := len(idx) - 1; k >= 0; k-- {
		idx[k]++
		if idx[k] < shape[k] {
			return
		}
		idx[k] = 0
	}
}
