package mpsdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fumin/qmps/array"
	"github.com/fumin/qmps/exactdiag"
	"github.com/fumin/qmps/mps"
	"github.com/fumin/qmps/site"
)

func openDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "mps.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func isingState(t *testing.T, l int, form mps.Form) (*mps.MPS, []*site.Site) {
	t.Helper()
	vv, err := exactdiag.GroundState(exactdiag.TransverseFieldIsing([2]int{l, 1}, 1))
	require.NoError(t, err)
	d, err := exactdiag.Dense(vv.Vec, l)
	require.NoError(t, err)
	sites, err := site.SpinHalfChain(l, "")
	require.NoError(t, err)
	psi, err := mps.FromDense(sites, d, form, 1e-12)
	require.NoError(t, err)
	return psi, sites
}

func requireSameState(t *testing.T, expected, got *mps.MPS) {
	t.Helper()
	require.Equal(t, expected.L(), got.L())
	require.Equal(t, expected.Boundary(), got.Boundary())
	require.Equal(t, expected.Chi(), got.Chi())
	ef, gf := expected.Forms(), got.Forms()
	for i := range ef {
		require.Truef(t, ef[i].Equal(gf[i]), "%d %v %v", i, ef[i], gf[i])
	}
	for i := range expected.L() {
		eb, err := expected.Tensor(i, mps.Unknown, mps.DefaultCutoff)
		require.NoError(t, err)
		gb, err := got.Tensor(i, mps.Unknown, mps.DefaultCutoff)
		require.NoError(t, err)
		require.Equal(t, eb.Labels(), gb.Labels())
		require.Equal(t, eb.QTotal(), gb.QTotal())
		require.Equal(t, eb.Data(), gb.Data())

		es, err := expected.SL(i)
		require.NoError(t, err)
		gs, err := got.SL(i)
		require.NoError(t, err)
		require.Equal(t, es.IsDense(), gs.IsDense())
		require.Equal(t, es.Values(), gs.Values())
	}
}

func TestOpenIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mps.db")
	for range 3 {
		db, err := Open(path)
		require.NoError(t, err)
		require.NoError(t, db.Close())
	}
}

func TestSaveLoad(t *testing.T) {
	tests := []struct {
		name string
		form mps.Form
	}{
		{name: "B", form: mps.B},
		{name: "C", form: mps.C},
		{name: "A", form: mps.A},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ctx := context.Background()
			db := openDB(t)
			psi, sites := isingState(t, 4, test.form)

			id, err := db.Save(ctx, psi)
			require.NoError(t, err)
			loaded, err := db.Load(ctx, id, sites)
			require.NoError(t, err)
			requireSameState(t, psi, loaded)

			expected, err := psi.ExpectationValue([]mps.Operator{mps.OpName("Sigmax")}, nil)
			require.NoError(t, err)
			got, err := loaded.ExpectationValue([]mps.Operator{mps.OpName("Sigmax")}, nil)
			require.NoError(t, err)
			assert.InDeltaSlice(t, expected, got, 1e-12)
		})
	}
}

func TestSaveLoadMixedForms(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	psi, sites := isingState(t, 4, mps.B)
	require.NoError(t, psi.ConvertForm(mps.A, mps.Custom(0.3, 0.2), mps.C, mps.B))

	id, err := db.Save(ctx, psi)
	require.NoError(t, err)
	loaded, err := db.Load(ctx, id, sites)
	require.NoError(t, err)
	requireSameState(t, psi, loaded)
}

func TestSaveLoadCharges(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	sites, err := site.SpinHalfChain(4, "Sz")
	require.NoError(t, err)
	states := []mps.State{mps.BasisIndex(0), mps.BasisIndex(1), mps.BasisIndex(1), mps.BasisIndex(0)}
	psi, err := mps.FromProductState(sites, states, mps.Infinite, mps.B, []int{3})
	require.NoError(t, err)

	id, err := db.Save(ctx, psi)
	require.NoError(t, err)
	loaded, err := db.Load(ctx, id, sites)
	require.NoError(t, err)
	requireSameState(t, psi, loaded)

	b, err := loaded.Tensor(0, mps.B, mps.DefaultCutoff)
	require.NoError(t, err)
	vL, err := b.Leg("vL")
	require.NoError(t, err)
	assert.Equal(t, [][]int{{3}}, vL.Charges)

	// Loading on sites without charges fails validation.
	plain, err := site.SpinHalfChain(4, "")
	require.NoError(t, err)
	_, err = db.Load(ctx, id, plain)
	require.ErrorIs(t, err, mps.ErrValidation)
}

func TestSaveLoadDenseSpectrum(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	sites, err := site.SpinHalfChain(3, "")
	require.NoError(t, err)
	states := []mps.State{mps.BasisIndex(0), mps.Amplitudes(0.6, 0.8), mps.BasisIndex(1)}
	psi, err := mps.FromProductState(sites, states, mps.Finite, mps.B, nil)
	require.NoError(t, err)

	left, err := psi.Tensor(0, mps.B, mps.DefaultCutoff)
	require.NoError(t, err)
	right, err := psi.Tensor(1, mps.B, mps.DefaultCutoff)
	require.NoError(t, err)
	vR, err := left.Leg("vR")
	require.NoError(t, err)
	vL, err := right.Leg("vL")
	require.NoError(t, err)
	m, err := array.FromData([]array.Leg{vR.Conj(), vL.Conj()}, []string{"vL", "vR"}, []float64{1})
	require.NoError(t, err)
	require.NoError(t, psi.SetSL(1, mps.Dense(m)))
	require.NoError(t, psi.Validate())

	id, err := db.Save(ctx, psi)
	require.NoError(t, err)
	loaded, err := db.Load(ctx, id, sites)
	require.NoError(t, err)

	s, err := loaded.SL(1)
	require.NoError(t, err)
	require.True(t, s.IsDense())
	assert.Equal(t, []float64{1}, s.Matrix().Data())
	requireSameState(t, psi, loaded)
}

func TestLoadErrors(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	psi, sites := isingState(t, 3, mps.B)
	id, err := db.Save(ctx, psi)
	require.NoError(t, err)

	_, err = db.Load(ctx, "00000000-0000-0000-0000-000000000000", sites)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = db.Load(ctx, id, sites[:2])
	require.ErrorIs(t, err, mps.ErrShapeMismatch)
}

func TestListDelete(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	snaps, err := db.List(ctx)
	require.NoError(t, err)
	require.Empty(t, snaps)

	finite, _ := isingState(t, 3, mps.B)
	sites, err := site.SpinHalfChain(2, "")
	require.NoError(t, err)
	infinite, err := mps.FromProductState(sites, []mps.State{mps.BasisIndex(0), mps.BasisIndex(1)}, mps.Infinite, mps.B, nil)
	require.NoError(t, err)

	ids := make([]string, 0, 2)
	for _, psi := range []*mps.MPS{finite, infinite} {
		id, err := db.Save(ctx, psi)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	snaps, err = db.List(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, ids[1], snaps[0].ID)
	assert.Equal(t, mps.Infinite, snaps[0].Boundary)
	assert.Equal(t, 2, snaps[0].L)
	assert.Equal(t, ids[0], snaps[1].ID)
	assert.Equal(t, mps.Finite, snaps[1].Boundary)
	assert.Equal(t, 3, snaps[1].L)
	assert.False(t, snaps[0].Created.Before(snaps[1].Created))

	require.NoError(t, db.Delete(ctx, ids[0]))
	_, err = db.Load(ctx, ids[0], nil)
	require.True(t, errors.Is(err, ErrNotFound))
	require.ErrorIs(t, db.Delete(ctx, ids[0]), ErrNotFound)

	snaps, err = db.List(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
}

func TestCanceledContext(t *testing.T) {
	db := openDB(t)
	psi, sites := isingState(t, 3, mps.B)
	id, err := db.Save(context.Background(), psi)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = db.Save(ctx, psi)
	require.ErrorIs(t, err, context.Canceled)
	_, err = db.Load(ctx, id, sites)
	require.ErrorIs(t, err, context.Canceled)
	_, err = db.List(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, db.Delete(ctx, id), context.Canceled)

	snaps, err := db.List(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, id, snaps[0].ID)
}
