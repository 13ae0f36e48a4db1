// Package exactdiag computes reference states of small spin lattices by dense diagonalization.
//
// Basis states are indexed by bit strings where site 0 is the most significant bit,
// and a 0 bit is spin up, the +1 eigenstate of Pauli Z.
package exactdiag

import (
	"cmp"
	"math"
	"slices"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	identity = mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	pauliX   = mat.NewDense(2, 2, []float64{0, 1, 1, 0})
	pauliZ   = mat.NewDense(2, 2, []float64{1, 0, 0, -1})
)

// TransverseFieldIsing returns the Hamiltonian -sum_<ij> Z_i Z_j - h sum_i X_i
// on an n[0] x n[1] lattice with open boundaries.
// Site (y, x) is site y*n[1]+x of the chain.
func TransverseFieldIsing(n [2]int, h float64) *mat.SymDense {
	numSpins := n[0] * n[1]
	dim := 1 << numSpins
	hamiltonian := mat.NewDense(dim, dim, nil)

	for y := 0; y < n[0]; y++ {
		for x := 0; x < n[1]; x++ {
			if up := y - 1; up >= 0 {
				coupling(hamiltonian, n, [2]int{up, x}, [2]int{y, x})
			}
			if left := x - 1; left >= 0 {
				coupling(hamiltonian, n, [2]int{y, left}, [2]int{y, x})
			}
			magnetic(hamiltonian, n, [2]int{y, x}, h)
		}
	}

	sym := mat.NewSymDense(dim, nil)
	for i := range dim {
		for j := i; j < dim; j++ {
			sym.SetSym(i, j, hamiltonian.At(i, j))
		}
	}
	return sym
}

// kron returns the Kronecker product over all sites of the lattice, with op at the sites in ops and identity elsewhere.
func kron(n [2]int, ops map[[2]int]*mat.Dense) *mat.Dense {
	system := mat.NewDense(1, 1, []float64{1})
	for y := 0; y < n[0]; y++ {
		for x := 0; x < n[1]; x++ {
			op, ok := ops[[2]int{y, x}]
			if !ok {
				op = identity
			}
			var next mat.Dense
			next.Kronecker(system, op)
			system = &next
		}
	}
	return system
}

func coupling(hamiltonian *mat.Dense, n [2]int, i, j [2]int) {
	system := kron(n, map[[2]int]*mat.Dense{i: pauliZ, j: pauliZ})
	system.Scale(-1, system)
	hamiltonian.Add(hamiltonian, system)
}

func magnetic(hamiltonian *mat.Dense, n [2]int, i [2]int, h float64) {
	system := kron(n, map[[2]int]*mat.Dense{i: pauliX})
	system.Scale(-h, system)
	hamiltonian.Add(hamiltonian, system)
}

// transverseFieldIsingExplicit builds the same Hamiltonian as TransverseFieldIsing by flipping bits of basis states.
func transverseFieldIsingExplicit(n [2]int, h float64) *mat.SymDense {
	numSpins := n[0] * n[1]
	hamiltonian := mat.NewSymDense(1<<numSpins, nil)
	flipped := make([]byte, numSpins)
	for i, state := range bits(numSpins) {
		hamiltonian.SetSym(i, i, couplingExplicit(n, state))

		for k := range state {
			copy(flipped, state)
			flipped[k] ^= 1
			if col := bitIndex(flipped); col > i {
				hamiltonian.SetSym(i, col, -h)
			}
		}
	}
	return hamiltonian
}

func couplingExplicit(n [2]int, state []byte) float64 {
	var diag float64
	for y := range n[0] {
		for x := range n[1] {
			spin := state[y*n[1]+x]

			bonds := make([][2]int, 0, 2)
			if up := y - 1; up >= 0 {
				bonds = append(bonds, [2]int{up, x})
			}
			if left := x - 1; left >= 0 {
				bonds = append(bonds, [2]int{y, left})
			}
			for _, b := range bonds {
				if state[b[0]*n[1]+b[1]] == spin {
					diag -= 1
				} else {
					diag += 1
				}
			}
		}
	}
	return diag
}

// bits iterates over the basis states of n spins in order of their index.
func bits(n int) func(yield func(int, []byte) bool) {
	state := make([]byte, n)
	return func(yield func(int, []byte) bool) {
		for i := range 1 << n {
			for k := range state {
				state[k] = byte(i>>(n-1-k)) & 1
			}
			if !yield(i, state) {
				return
			}
		}
	}
}

func bitIndex(state []byte) int {
	idx := 0
	for _, b := range state {
		idx = idx<<1 | int(b)
	}
	return idx
}

// ValVec is an eigenpair.
type ValVec struct {
	Val float64
	Vec []float64
}

// Eigen returns the k lowest eigenpairs of the Hamiltonian h in ascending order.
func Eigen(h *mat.SymDense, k int) ([]ValVec, error) {
	var es mat.EigenSym
	if ok := es.Factorize(h, true); !ok {
		return nil, errors.Errorf("eigendecomposition failed %d", h.SymmetricDim())
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	vvs := make([]ValVec, 0, len(vals))
	for j, v := range vals {
		vvs = append(vvs, ValVec{Val: v, Vec: mat.Col(nil, j, &vecs)})
	}
	slices.SortStableFunc(vvs, func(a, b ValVec) int { return cmp.Compare(a.Val, b.Val) })
	if k > len(vvs) {
		k = len(vvs)
	}
	return vvs[:k], nil
}

// GroundState returns the lowest eigenpair of h.
func GroundState(h *mat.SymDense) (ValVec, error) {
	vvs, err := Eigen(h, 1)
	if err != nil {
		return ValVec{}, errors.Wrap(err, "")
	}
	return vvs[0], nil
}

// Dense returns the wavefunction vec on numSpins spins as a tensor with one axis per site.
func Dense(vec []float64, numSpins int) (*tensor.Dense, error) {
	if len(vec) != 1<<numSpins {
		return nil, errors.Errorf("%d %d", len(vec), 1<<numSpins)
	}
	shape := make([]int, numSpins)
	for i := range shape {
		shape[i] = 2
	}
	d := tensor.Zeros(shape...)
	for ijk := range d.All() {
		d.SetAt(ijk, complex(float32(vec[bitIndexInts(ijk)]), 0))
	}
	return d, nil
}

func bitIndexInts(state []int) int {
	idx := 0
	for _, b := range state {
		idx = idx<<1 | b
	}
	return idx
}

// MagnetizationZ returns the expectation value of Pauli Z on every site.
func MagnetizationZ(vec []float64, numSpins int) ([]float64, error) {
	if len(vec) != 1<<numSpins {
		return nil, errors.Errorf("%d %d", len(vec), 1<<numSpins)
	}
	m := make([]float64, numSpins)
	for i, state := range bits(numSpins) {
		p := vec[i] * vec[i]
		for k, b := range state {
			m[k] += p * float64(1-2*int(b))
		}
	}
	return m, nil
}

// pickSpinUp writes the spins of state as +1 or -1, choosing the sign such that the majority is +1.
func pickSpinUp(upState []int8, state []byte) {
	ups := 0
	for _, b := range state {
		if b == 0 {
			ups++
		}
	}
	sign := int8(1)
	if ups < len(state)-ups {
		sign = -1
	}
	for i, b := range state {
		upState[i] = sign * int8(1-2*int(b))
	}
}

// Statistics are properties of the low energy spectrum.
type Statistics struct {
	EigenValue     []float64
	Magnetization  float64
	BinderCumulant float64
}

// GetStatistics returns the eigenvalues of vvs, and the magnetization and Binder cumulant of the ground state vvs[0].
func GetStatistics(n [2]int, vvs []ValVec) (Statistics, error) {
	if len(vvs) == 0 {
		return Statistics{}, errors.Errorf("no eigenpairs")
	}
	var stats Statistics
	for _, vv := range vvs {
		stats.EigenValue = append(stats.EigenValue, vv.Val)
	}
	ground := vvs[0]
	numSpins := n[0] * n[1]
	if len(ground.Vec) != 1<<numSpins {
		return Statistics{}, errors.Errorf("%d %d", len(ground.Vec), 1<<numSpins)
	}
	// spinUpBasis is the basis where the majority of spins are up.
	spinUpBasis := make([]int8, numSpins)
	var totalProb float64
	var m2 float64
	for i, fullBasis := range bits(numSpins) {
		pickSpinUp(spinUpBasis, fullBasis)
		probability := ground.Vec[i] * ground.Vec[i]

		var basisM float64
		for _, spin := range spinUpBasis {
			basisM += float64(spin)
		}

		totalProb += probability
		stats.Magnetization += probability * basisM
		stats.BinderCumulant += probability * math.Pow(basisM, 4)
		m2 += probability * math.Pow(basisM, 2)
	}
	if math.Abs(totalProb-1) > 1e-3 {
		return Statistics{}, errors.Errorf("%f", totalProb)
	}

	stats.Magnetization /= float64(numSpins)
	stats.BinderCumulant /= (m2 * m2)
	stats.BinderCumulant = 1 - stats.BinderCumulant/3
	return stats, nil
}
