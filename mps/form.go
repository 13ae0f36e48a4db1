package mps

import (
	"fmt"

	"github.com/pkg/errors"
)

type formKind int

const (
	kindUnknown formKind = iota
	kindA
	kindB
	kindC
	kindG
	kindCustom
)

// Form describes how the spectra on either side of a site are absorbed into its tensor.
// A tensor in form (nuL, nuR) equals SL^nuL Gamma SR^nuR, where Gamma is the tensor in G form.
// The zero value is Unknown.
type Form struct {
	kind     formKind
	nuL, nuR float64
}

var (
	// A is the left canonical form SL Gamma.
	A = Form{kind: kindA, nuL: 1, nuR: 0}
	// B is the right canonical form Gamma SR.
	B = Form{kind: kindB, nuL: 0, nuR: 1}
	// C is the symmetric form SL^0.5 Gamma SR^0.5.
	C = Form{kind: kindC, nuL: 0.5, nuR: 0.5}
	// G is Vidal's Gamma.
	G = Form{kind: kindG, nuL: 0, nuR: 0}
	// Unknown marks a tensor whose gauge is not known, for example right after a local update.
	Unknown = Form{}
)

// Custom returns the form with exponents nuL and nuR.
// A Custom form is never equal to a named form, even if their exponents coincide.
func Custom(nuL, nuR float64) Form {
	return Form{kind: kindCustom, nuL: nuL, nuR: nuR}
}

// ParseForm returns the named form "A", "B", "C" or "G".
func ParseForm(name string) (Form, error) {
	switch name {
	case "A":
		return A, nil
	case "B":
		return B, nil
	case "C":
		return C, nil
	case "G":
		return G, nil
	}
	return Unknown, errors.Wrapf(ErrShapeMismatch, "invalid form %q", name)
}

// Known reports whether f is not Unknown.
func (f Form) Known() bool { return f.kind != kindUnknown }

// Named reports whether f is one of A, B, C and G.
func (f Form) Named() bool { return f.kind != kindUnknown && f.kind != kindCustom }

// Exponents returns the exponents of the left and right spectra.
// It panics for Unknown.
func (f Form) Exponents() (float64, float64) {
	if !f.Known() {
		panic(fmt.Sprintf("%#v", f))
	}
	return f.nuL, f.nuR
}

// Equal reports whether f and o are the same form.
// Named forms compare by name, Custom forms by their exponents.
func (f Form) Equal(o Form) bool {
	if f.kind != o.kind {
		return false
	}
	if f.kind == kindCustom {
		return f.nuL == o.nuL && f.nuR == o.nuR
	}
	return true
}

// Name returns the name of a named form, and the empty string otherwise.
func (f Form) Name() string {
	switch f.kind {
	case kindA:
		return "A"
	case kindB:
		return "B"
	case kindC:
		return "C"
	case kindG:
		return "G"
	}
	return ""
}

func (f Form) String() string {
	switch f.kind {
	case kindUnknown:
		return "Unknown"
	case kindCustom:
		return fmt.Sprintf("(%g,%g)", f.nuL, f.nuR)
	}
	return f.Name()
}

// Boundary is the boundary condition of a state.
type Boundary int

const (
	// Finite is an open chain with trivial boundary spectra.
	Finite Boundary = iota
	// Segment is an open chain embedded in fixed environments on both ends.
	Segment
	// Infinite is the unit cell of an infinite periodic chain.
	Infinite
)

// ParseBoundary returns the boundary condition called name.
func ParseBoundary(name string) (Boundary, error) {
	switch name {
	case "finite":
		return Finite, nil
	case "segment":
		return Segment, nil
	case "infinite":
		return Infinite, nil
	}
	return Finite, errors.Errorf("invalid boundary %q", name)
}

func (bc Boundary) String() string {
	switch bc {
	case Finite:
		return "finite"
	case Segment:
		return "segment"
	case Infinite:
		return "infinite"
	}
	return fmt.Sprintf("Boundary(%d)", int(bc))
}

// resolveIndex maps the site index i to [0, l).
// Infinite chains wrap around, finite chains count negative indices from the end.
func resolveIndex(bc Boundary, l, i int) (int, error) {
	if bc == Infinite {
		return ((i % l) + l) % l, nil
	}
	if i < 0 {
		i += l
	}
	if i < 0 || i >= l {
		return -1, errors.Wrapf(ErrIndexOutOfBounds, "%d %d", i, l)
	}
	return i, nil
}

// parseForms broadcasts forms to l sites.
// No forms means B everywhere, a single form applies to every site.
func parseForms(l int, forms []Form) ([]Form, error) {
	switch len(forms) {
	case 0:
		forms = []Form{B}
		fallthrough
	case 1:
		fs := make([]Form, l)
		for i := range fs {
			fs[i] = forms[0]
		}
		return fs, nil
	case l:
		return append([]Form(nil), forms...), nil
	}
	return nil, errors.Wrapf(ErrValidation, "%d forms for %d sites", len(forms), l)
}
