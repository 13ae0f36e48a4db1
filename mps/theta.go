package mps

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"github.com/fumin/qmps/array"
)

// ThetaOptions are options for Theta.
type ThetaOptions struct {
	cutoff float64
	formL  float64
	formR  float64
}

// NewThetaOptions returns the default options, which include the spectra on both ends of the window.
func NewThetaOptions() *ThetaOptions {
	return &ThetaOptions{cutoff: DefaultCutoff, formL: 1, formR: 1}
}

// Cutoff sets the relative cutoff of the pseudo-inverse of dense spectra.
func (opts *ThetaOptions) Cutoff(c float64) *ThetaOptions {
	opts.cutoff = c
	return opts
}

// FormL sets the exponent of the spectrum on the left end.
func (opts *ThetaOptions) FormL(f float64) *ThetaOptions {
	opts.formL = f
	return opts
}

// FormR sets the exponent of the spectrum on the right end.
func (opts *ThetaOptions) FormR(f float64) *ThetaOptions {
	opts.formR = f
	return opts
}

func physLabel(k int) string { return "p" + strconv.Itoa(k) }

// Theta returns the wavefunction on the n sites starting at i, SL^formL B_i ... B_{i+n-1} SR^formR,
// with legs (vL, p0, ..., p{n-1}, vR).
// Sites inside the window may have Unknown form, in which case their tensors are used as stored.
func (psi *MPS) Theta(i, n int, opts *ThetaOptions) (*array.Array, error) {
	if opts == nil {
		opts = NewThetaOptions()
	}
	if n < 1 {
		return nil, errors.Wrapf(ErrIndexOutOfBounds, "n = %d", n)
	}
	i, err := psi.index(i)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	l := psi.L()
	if psi.Finite() && i+n > l {
		return nil, errors.Wrapf(ErrIndexOutOfBounds, "window [%d, %d) of %d sites", i, i+n, l)
	}
	last := (i + n - 1) % l
	if !psi.forms[i].Known() || !psi.forms[last].Known() {
		return nil, errors.Wrapf(ErrUnknownFormConversion, "window [%d, %d) forms %v %v", i, i+n, psi.forms[i], psi.forms[last])
	}

	fL, fR := psi.forms[i].Exponents()
	fRKnown := true
	theta, err := psi.bs[i].ReplaceLabel("p", physLabel(0))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	theta, err = ScaleLeg(theta, psi.ss[i], opts.formL-fL, "vL", opts.cutoff)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	for k := 1; k < n; k++ {
		j := (i + k) % l
		b, err := psi.bs[j].ReplaceLabel("p", physLabel(k))
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		if psi.forms[j].Known() {
			fLj, fRj := psi.forms[j].Exponents()
			if fRKnown {
				// The bond between the accumulator and b must carry the spectrum exactly once.
				b, err = ScaleLeg(b, psi.ss[j], 1-fLj-fR, "vL", opts.cutoff)
				if err != nil {
					return nil, errors.Wrap(err, fmt.Sprintf("%d", j))
				}
			}
			fR, fRKnown = fRj, true
		} else {
			fRKnown = false
		}
		theta, err = array.Tensordot(theta, b, []string{"vR"}, []string{"vL"})
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d", j))
		}
	}
	theta, err = ScaleLeg(theta, psi.ss[last+1], opts.formR-fR, "vR", opts.cutoff)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	labels := make([]string, 0, n+2)
	labels = append(labels, "vL")
	for k := range n {
		labels = append(labels, physLabel(k))
	}
	labels = append(labels, "vR")
	theta, err = theta.Transpose(labels...)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return theta, nil
}

// Operator is an operator acting on one or more consecutive sites.
type Operator struct {
	name string
	op   *array.Array
}

// OpName refers to the single site operator called name, looked up on the site it acts on.
func OpName(name string) Operator { return Operator{name: name} }

// OpArray is an n-site operator with legs p0, ..., p{n-1} and p0*, ..., p{n-1}*.
// A single site operator may also have the legs p and p*.
func OpArray(op *array.Array) Operator { return Operator{op: op} }

func (o Operator) numSites() int {
	if o.op == nil {
		return 1
	}
	return o.op.Rank() / 2
}

func (o Operator) String() string {
	if o.op == nil {
		return o.name
	}
	return fmt.Sprintf("%v", o.op.Labels())
}

// resolveOp returns the operator with legs p0, p0*, ... for the window starting at site i.
func (psi *MPS) resolveOp(o Operator, i int) (*array.Array, error) {
	op := o.op
	if op == nil {
		j, err := psi.index(i)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		if op, err = psi.sites[j].Op(o.name); err != nil {
			return nil, errors.Wrap(err, "")
		}
	}
	if op.HasLabel("p") && op.HasLabel("p*") {
		return op.ReplaceLabels([]string{"p", "p*"}, []string{physLabel(0), physLabel(0) + "*"})
	}
	return op, nil
}

// ExpectationValue returns <psi|op|psi> for every window starting at a site i of sites.
// The operator of site i is ops[i mod len(ops)], taken non-negative.
// All operators must act on the same number n of sites.
// If sites is nil, every window that fits on the chain is used.
func (psi *MPS) ExpectationValue(ops []Operator, sites []int) ([]float64, error) {
	if len(ops) == 0 {
		return nil, errors.Wrapf(ErrShapeMismatch, "no operators")
	}
	n := ops[0].numSites()
	for _, o := range ops {
		if o.op != nil && o.op.Rank() != 2*n {
			return nil, errors.Wrapf(ErrShapeMismatch, "operator %v has %d legs, expected %d", o, o.op.Rank(), 2*n)
		}
		if o.op == nil && n != 1 {
			return nil, errors.Wrapf(ErrShapeMismatch, "single site operator %v among %d-site operators", o, n)
		}
	}
	if n < 1 {
		return nil, errors.Wrapf(ErrShapeMismatch, "operator %v has no legs", ops[0])
	}
	if sites == nil {
		count := psi.L()
		if psi.Finite() {
			count = psi.L() - n + 1
		}
		for i := range count {
			sites = append(sites, i)
		}
	}

	ps := make([]string, 0, n)
	pstars := make([]string, 0, n)
	for k := range n {
		ps = append(ps, physLabel(k))
		pstars = append(pstars, physLabel(k)+"*")
	}
	vals := make([]float64, 0, len(sites))
	for _, i := range sites {
		op, err := psi.resolveOp(ops[((i%len(ops))+len(ops))%len(ops)], i)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d", i))
		}
		theta, err := psi.Theta(i, n, nil)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		c, err := array.Tensordot(op, theta, pstars, ps)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d", i))
		}
		v, err := array.Inner(theta, c)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d", i))
		}
		vals = append(vals, v)
	}
	return vals, nil
}
