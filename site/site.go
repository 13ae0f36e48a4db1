// Package site describes the local Hilbert space of one site of a lattice.
package site

import (
	"fmt"
	"maps"
	"slices"

	"github.com/pkg/errors"

	"github.com/fumin/qmps/array"
)

var (
	pauliX = [][]float64{
		{0, 1},
		{1, 0},
	}
	pauliZ = [][]float64{
		{1, 0},
		{0, -1},
	}
)

// Site is the local Hilbert space of a site together with its named operators.
// Operators have the legs "p" and "p*".
type Site struct {
	leg array.Leg
	ops map[string]*array.Array
}

// New returns a site with physical leg leg.
// Every operator must be a dim x dim matrix, and the identity "Id" is always added.
// The total charge of an operator is read off its entries, which must all carry the same charge.
func New(leg array.Leg, ops map[string][][]float64) (*Site, error) {
	if leg.QConj != 1 {
		return nil, errors.Errorf("physical leg must be incoming %d", leg.QConj)
	}
	s := &Site{leg: leg, ops: make(map[string]*array.Array)}

	dim := leg.Dim()
	id := make([][]float64, dim)
	for i := range id {
		id[i] = make([]float64, dim)
		id[i][i] = 1
	}
	all := maps.Clone(ops)
	if all == nil {
		all = make(map[string][][]float64)
	}
	all["Id"] = id

	for name, m := range all {
		if len(m) != dim {
			return nil, errors.Errorf("%s %d %d", name, len(m), dim)
		}
		data := make([]float64, 0, dim*dim)
		for _, row := range m {
			if len(row) != dim {
				return nil, errors.Errorf("%s %d %d", name, len(row), dim)
			}
			data = append(data, row...)
		}
		op, err := array.FromData([]array.Leg{leg, leg.Conj()}, []string{"p", "p*"}, data)
		if err != nil {
			return nil, errors.Wrap(err, name)
		}
		// A zero operator keeps total charge zero.
		if slices.ContainsFunc(data, func(v float64) bool { return v != 0 }) {
			if op, err = op.DetectQTotal(0); err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("%s breaks charge conservation", name))
			}
		}
		s.ops[name] = op
	}
	return s, nil
}

// Dim returns the local dimension.
func (s *Site) Dim() int { return s.leg.Dim() }

// Leg returns the physical leg.
func (s *Site) Leg() array.Leg { return s.leg }

// Op returns a copy of the operator called name.
func (s *Site) Op(name string) (*array.Array, error) {
	op, ok := s.ops[name]
	if !ok {
		return nil, errors.Errorf("unknown operator %q, have %v", name, s.OpNames())
	}
	return op.Copy(), nil
}

// OpNames returns the names of all operators in sorted order.
func (s *Site) OpNames() []string {
	return slices.Sorted(maps.Keys(s.ops))
}

func (s *Site) String() string {
	return fmt.Sprintf("Site(%d %v)", s.Dim(), s.OpNames())
}

// SpinHalf returns a spin-1/2 site with basis {up, down}.
// conserve is either "" or "Sz"; in the latter case the charge of a state is 2Sz.
func SpinHalf(conserve string) (*Site, error) {
	sz := scale(0.5, pauliZ)
	sp := [][]float64{{0, 1}, {0, 0}}
	sm := [][]float64{{0, 0}, {1, 0}}
	ops := map[string][][]float64{"Sz": sz, "Sp": sp, "Sm": sm, "Sigmaz": pauliZ}

	var leg array.Leg
	switch conserve {
	case "Sz":
		leg = array.NewLeg(array.NewChargeInfo(1), [][]int{{1}, {-1}}, 1)
	case "":
		leg = array.TrivialLeg(array.ChargeInfo{}, 2, 1)
		ops["Sx"] = scale(0.5, pauliX)
		ops["Sigmax"] = pauliX
	default:
		return nil, errors.Errorf("cannot conserve %q", conserve)
	}
	s, err := New(leg, ops)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return s, nil
}

// SpinHalfChain returns l spin-1/2 sites.
func SpinHalfChain(l int, conserve string) ([]*Site, error) {
	s, err := SpinHalf(conserve)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	sites := make([]*Site, l)
	for i := range sites {
		sites[i] = s
	}
	return sites, nil
}

func scale(c float64, m [][]float64) [][]float64 {
	s := make([][]float64, 0, len(m))
	for _, row := range m {
		r := make([]float64, 0, len(row))
		for _, v := range row {
			r = append(r, c*v)
		}
		s = append(s, r)
	}
	return s
}
