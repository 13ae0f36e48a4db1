package mps

import (
	"math"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/fumin/qmps/array"
)

// Spectrum holds the singular values on a bond.
// It is either a vector of non-negative values, or a dense matrix whose first leg faces the left site.
// The dense variant appears when an algorithm widens the bond with a mixer.
type Spectrum struct {
	values []float64
	matrix *array.Array
}

// Diagonal returns the spectrum with singular values values.
func Diagonal(values []float64) Spectrum {
	return Spectrum{values: slices.Clone(values)}
}

// Dense returns the spectrum given by the matrix m.
// The first leg of m is contracted with the vR leg of the tensor on its left,
// and the second leg with the vL leg of the tensor on its right.
func Dense(m *array.Array) Spectrum {
	return Spectrum{matrix: m.Copy()}
}

// ones returns the trivial spectrum of a boundary bond.
func ones() Spectrum {
	return Spectrum{values: []float64{1}}
}

// IsDense reports whether s is a matrix.
func (s Spectrum) IsDense() bool { return s.matrix != nil }

// Values returns the singular values of a diagonal spectrum, and nil for a dense one.
func (s Spectrum) Values() []float64 { return slices.Clone(s.values) }

// Matrix returns a copy of the matrix of a dense spectrum, and nil for a diagonal one.
func (s Spectrum) Matrix() *array.Array {
	if s.matrix == nil {
		return nil
	}
	return s.matrix.Copy()
}

// dims returns the leading and trailing dimension.
func (s Spectrum) dims() (int, int) {
	if s.matrix != nil {
		shape := s.matrix.Shape()
		return shape[0], shape[len(shape)-1]
	}
	return len(s.values), len(s.values)
}

func (s Spectrum) valid() bool {
	if s.matrix != nil {
		return s.matrix.Rank() == 2
	}
	return s.values != nil
}

func (s Spectrum) equal(o Spectrum) bool {
	if s.IsDense() != o.IsDense() {
		return false
	}
	if !s.IsDense() {
		return slices.Equal(s.values, o.values)
	}
	return slices.Equal(s.matrix.Labels(), o.matrix.Labels()) &&
		slices.Equal(s.matrix.Shape(), o.matrix.Shape()) &&
		slices.Equal(s.matrix.Data(), o.matrix.Data())
}

// singularValues returns the singular values of s in descending order.
func (s Spectrum) singularValues() ([]float64, error) {
	if !s.IsDense() {
		v := slices.Clone(s.values)
		slices.Sort(v)
		slices.Reverse(v)
		return v, nil
	}
	_, v, _, err := array.SVD(s.matrix, 0, [2]string{"_l", "_r"}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return v, nil
}

// Entropy returns the von Neumann entanglement entropy -sum s^2 log s^2 of the normalized spectrum.
func (s Spectrum) Entropy() (float64, error) {
	v, err := s.singularValues()
	if err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	n := floats.Norm(v, 2)
	if n == 0 {
		return math.NaN(), errors.Errorf("zero spectrum")
	}
	var e float64
	for _, x := range v {
		p := (x / n) * (x / n)
		if p > 0 {
			e -= p * math.Log(p)
		}
	}
	return e, nil
}

// ScaleLeg multiplies the leg of b labeled leg by s raised to exponent.
//
// A diagonal s scales the leg elementwise by s^exponent.
// A dense s supports only the exponents 1 and -1, where -1 contracts the pseudo-inverse of s,
// and singular values of s below cutoff times the largest are discarded when inverting.
// For a dense s, leg must be one of "vL", "vR", or their conjugates "vL*", "vR*".
// An exponent of zero returns b itself.
func ScaleLeg(b *array.Array, s Spectrum, exponent float64, leg string, cutoff float64) (*array.Array, error) {
	if exponent == 0 {
		return b, nil
	}
	if !s.IsDense() {
		v := slices.Clone(s.values)
		if exponent != 1 {
			for i, x := range v {
				if x == 0 && exponent < 0 {
					return nil, errors.Wrapf(ErrSpectrumDomain, "%d %v", i, exponent)
				}
				v[i] = math.Pow(x, exponent)
			}
		}
		c, err := b.ScaleAxis(v, leg)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		return c, nil
	}

	m := s.matrix
	switch exponent {
	case 1:
	case -1:
		var err error
		m, err = array.PseudoInverse(m, cutoff)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
	default:
		return nil, errors.Wrapf(ErrUnsupportedSpectrumExponent, "%v", exponent)
	}
	if strings.HasSuffix(leg, "*") {
		m = m.Conj()
	}
	m, err := m.ReplaceLabels(m.Labels(), []string{"_sL", "_sR"})
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	var c *array.Array
	switch strings.TrimSuffix(leg, "*") {
	case "vL":
		c, err = array.Tensordot(m, b, []string{"_sR"}, []string{leg})
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		c, err = c.ReplaceLabel("_sL", leg)
	case "vR":
		c, err = array.Tensordot(b, m, []string{leg}, []string{"_sL"})
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		c, err = c.ReplaceLabel("_sR", leg)
	default:
		return nil, errors.Wrapf(ErrShapeMismatch, "dense spectrum on leg %q", leg)
	}
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	c, err = c.Transpose(b.Labels()...)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return c, nil
}

// Convert rescales the tensor b, stored in form from, into form to.
// sL and sR are the spectra to the left and right of b.
// If nothing needs to be done, b itself is returned unless copy is set.
func Convert(b *array.Array, sL, sR Spectrum, from, to Form, copy bool, cutoff float64) (*array.Array, error) {
	if !to.Known() || from.Equal(to) {
		if copy {
			return b.Copy(), nil
		}
		return b, nil
	}
	if !from.Known() {
		return nil, errors.Wrapf(ErrUnknownFormConversion, "%v to %v", from, to)
	}
	fromL, fromR := from.Exponents()
	toL, toR := to.Exponents()
	c, err := ScaleLeg(b, sL, toL-fromL, "vL", cutoff)
	if err != nil {
		return nil, errors.Wrap(err, "vL")
	}
	c, err = ScaleLeg(c, sR, toR-fromR, "vR", cutoff)
	if err != nil {
		return nil, errors.Wrap(err, "vR")
	}
	if c == b && copy {
		c = b.Copy()
	}
	return c, nil
}
