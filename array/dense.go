package array

import (
	"encoding/json"
	"math"
	"slices"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"
)

// ToDense converts a to a complex64 tensor with the same shape, legs in storage order.
// A rank zero array becomes a tensor of shape {1}.
func (a *Array) ToDense() *tensor.Dense {
	shape := a.Shape()
	if len(shape) == 0 {
		shape = []int{1}
	}
	d := tensor.Zeros(shape...)
	idx := make([]int, len(shape))
	for _, v := range a.data {
		d.SetAt(idx, complex(float32(v), 0))
		increment(idx, shape)
	}
	return d
}

// FromDense converts the complex64 tensor d to an array with the given legs and labels.
// It fails if an imaginary part is larger than tol in magnitude.
func FromDense(d *tensor.Dense, legs []Leg, labels []string, tol float64) (*Array, error) {
	a, err := Zeros(legs, labels)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if !slices.Equal(d.Shape(), a.shape) {
		return nil, errors.Wrapf(ErrShape, "%#v %#v", d.Shape(), a.shape)
	}
	for ijk, v := range d.All() {
		if math.Abs(float64(imag(v))) > tol {
			return nil, errors.Errorf("complex entry %v at %v", v, ijk)
		}
		a.data[a.flat(ijk)] = float64(real(v))
	}
	return a, nil
}

type legJSON struct {
	Charges [][]int `json:"charges"`
	QConj   int     `json:"qconj"`
}

type arrayJSON struct {
	Mod    []int     `json:"mod"`
	Labels []string  `json:"labels"`
	Legs   []legJSON `json:"legs"`
	QTotal []int     `json:"qtotal"`
	Data   []float64 `json:"data"`
}

// MarshalJSON encodes a. Combined legs are encoded as plain legs.
func (a *Array) MarshalJSON() ([]byte, error) {
	aj := arrayJSON{Mod: a.info.Mod, Labels: a.labels, QTotal: a.qtotal, Data: a.data}
	for _, l := range a.legs {
		aj.Legs = append(aj.Legs, legJSON{Charges: l.Charges, QConj: l.QConj})
	}
	b, err := json.Marshal(aj)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return b, nil
}

// UnmarshalJSON decodes an array encoded by MarshalJSON.
func (a *Array) UnmarshalJSON(b []byte) error {
	var aj arrayJSON
	if err := json.Unmarshal(b, &aj); err != nil {
		return errors.Wrap(err, "")
	}
	ci := NewChargeInfo(aj.Mod...)
	legs := make([]Leg, 0, len(aj.Legs))
	for _, lj := range aj.Legs {
		legs = append(legs, NewLeg(ci, lj.Charges, lj.QConj))
	}
	c, err := FromData(legs, aj.Labels, aj.Data)
	if err != nil {
		return errors.Wrap(err, "")
	}
	c.info = ci
	c.qtotal = ci.MakeValid(aj.QTotal)
	*a = *c
	return nil
}
