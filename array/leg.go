package array

import (
	"fmt"
	"slices"

	"github.com/pkg/errors"
)

// ChargeInfo describes the abelian charges carried by the legs of an Array.
// Mod[k] == 1 is a U(1) charge, Mod[k] > 1 is a Z_n charge.
// The zero value has no charges, which means nothing is conserved.
type ChargeInfo struct {
	Mod []int
}

// NewChargeInfo returns a ChargeInfo with the given moduli.
func NewChargeInfo(mod ...int) ChargeInfo {
	return ChargeInfo{Mod: slices.Clone(mod)}
}

// NumQ returns the number of charges.
func (ci ChargeInfo) NumQ() int { return len(ci.Mod) }

// Equal reports whether ci and o describe the same charges.
func (ci ChargeInfo) Equal(o ChargeInfo) bool {
	return slices.Equal(ci.Mod, o.Mod)
}

// MakeValid reduces q by the moduli.
// A nil q is read as the zero charge.
func (ci ChargeInfo) MakeValid(q []int) []int {
	v := make([]int, len(ci.Mod))
	if q == nil {
		return v
	}
	if len(q) != len(ci.Mod) {
		panic(fmt.Sprintf("%#v %#v", q, ci.Mod))
	}
	for k, m := range ci.Mod {
		v[k] = q[k]
		if m > 1 {
			v[k] = ((v[k] % m) + m) % m
		}
	}
	return v
}

func (ci ChargeInfo) add(a, b []int) []int {
	s := make([]int, len(ci.Mod))
	for k := range s {
		s[k] = a[k] + b[k]
	}
	return ci.MakeValid(s)
}

func (ci ChargeInfo) sub(a, b []int) []int {
	s := make([]int, len(ci.Mod))
	for k := range s {
		s[k] = a[k] - b[k]
	}
	return ci.MakeValid(s)
}

func (ci ChargeInfo) equal(a, b []int) bool {
	return slices.Equal(ci.MakeValid(a), ci.MakeValid(b))
}

// Leg is one index of an Array together with the charge of each of its values.
type Leg struct {
	Info    ChargeInfo
	Charges [][]int
	// QConj is +1 for incoming and -1 for outgoing legs.
	QConj int

	// pipe is set on legs produced by CombineLegs.
	pipe *pipe
}

type pipe struct {
	legs   []Leg
	labels []string
}

// NewLeg returns a leg with the given charges, one per index.
func NewLeg(ci ChargeInfo, charges [][]int, qconj int) Leg {
	l := Leg{Info: ci, QConj: qconj, Charges: make([][]int, 0, len(charges))}
	for _, q := range charges {
		l.Charges = append(l.Charges, ci.MakeValid(q))
	}
	return l
}

// TrivialLeg returns a leg of dimension dim carrying zero charges.
func TrivialLeg(ci ChargeInfo, dim, qconj int) Leg {
	return NewLeg(ci, make([][]int, dim), qconj)
}

// Dim returns the dimension of the leg.
func (l Leg) Dim() int { return len(l.Charges) }

// Conj returns the leg with the opposite QConj.
func (l Leg) Conj() Leg {
	c := l
	c.QConj = -l.QConj
	if l.pipe != nil {
		p := &pipe{labels: l.pipe.labels, legs: make([]Leg, 0, len(l.pipe.legs))}
		for _, sub := range l.pipe.legs {
			p.legs = append(p.legs, sub.Conj())
		}
		c.pipe = p
	}
	return c
}

// Contribution returns QConj times the charge of index i.
func (l Leg) Contribution(i int) []int {
	q := make([]int, len(l.Info.Mod))
	for k := range q {
		q[k] = l.QConj * l.Charges[i][k]
	}
	return l.Info.MakeValid(q)
}

// Combined reports whether the leg was produced by CombineLegs.
func (l Leg) Combined() bool { return l.pipe != nil }

// Contractible returns an error unless a and b can be contracted with each other.
func Contractible(a, b Leg) error {
	if !a.Info.Equal(b.Info) {
		return errors.Wrapf(ErrIncompatibleLegs, "charge info %#v %#v", a.Info, b.Info)
	}
	if a.Dim() != b.Dim() {
		return errors.Wrapf(ErrIncompatibleLegs, "dim %d %d", a.Dim(), b.Dim())
	}
	if a.QConj != -b.QConj {
		return errors.Wrapf(ErrIncompatibleLegs, "qconj %d %d", a.QConj, b.QConj)
	}
	for i := range a.Charges {
		if !a.Info.equal(a.Charges[i], b.Charges[i]) {
			return errors.Wrapf(ErrIncompatibleLegs, "charge %d %v %v", i, a.Charges[i], b.Charges[i])
		}
	}
	return nil
}

// Equal reports whether a and b have the same dimension, qconj and charges.
func Equal(a, b Leg) bool {
	if !a.Info.Equal(b.Info) || a.Dim() != b.Dim() || a.QConj != b.QConj {
		return false
	}
	for i := range a.Charges {
		if !a.Info.equal(a.Charges[i], b.Charges[i]) {
			return false
		}
	}
	return true
}
