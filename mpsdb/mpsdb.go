// Package mpsdb stores snapshots of matrix product states in sqlite.
//
// A snapshot keeps every tensor in the form it is stored in, together with its form tag,
// so that loading a snapshot reproduces the state without any conversion.
package mpsdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/fumin/qmps/array"
	"github.com/fumin/qmps/mps"
	"github.com/fumin/qmps/site"
)

const (
	tableSnapshots = "snapshots"
	tableTensors   = "tensors"
	tableSpectra   = "spectra"

	queryTimeout = 3 * time.Second
	// Saving or loading a snapshot touches one row per tensor and spectrum.
	transferTimeout = time.Minute
)

var (
	// ErrNotFound is returned when there is no snapshot with the requested id.
	ErrNotFound = errors.New("snapshot not found")
)

// DB is a sqlite database of snapshots.
type DB struct {
	Path string

	db *sql.DB
}

// Snapshot describes a stored state.
type Snapshot struct {
	ID       string
	Boundary mps.Boundary
	L        int
	Created  time.Time
}

// Open opens the database at path, creating its tables if needed.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", path))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	// Writes are serialized by sqlite anyway.
	db.SetMaxOpenConns(1)

	if err := prepareDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, fmt.Sprintf("db %s", path))
	}
	return &DB{Path: path, db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			boundary TEXT NOT NULL,
			l INTEGER NOT NULL,
			created INTEGER NOT NULL
		) STRICT`, tableSnapshots),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			snapshot TEXT NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
			i INTEGER NOT NULL,
			form TEXT NOT NULL,
			nu_l REAL,
			nu_r REAL,
			data TEXT NOT NULL,
			PRIMARY KEY (snapshot, i)
		) STRICT`, tableTensors, tableSnapshots),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			snapshot TEXT NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
			i INTEGER NOT NULL,
			dense INTEGER NOT NULL,
			data TEXT NOT NULL,
			PRIMARY KEY (snapshot, i)
		) STRICT`, tableSpectra, tableSnapshots),
	}
	for _, sqlStr := range stmts {
		if _, err := db.ExecContext(ctx, sqlStr); err != nil {
			return errors.Wrap(err, sqlStr)
		}
	}
	return nil
}

// Save stores psi and returns the id of the new snapshot.
func (d *DB) Save(ctx context.Context, psi *mps.MPS) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, transferTimeout)
	defer cancel()
	id, err := uuid.NewV7()
	if err != nil {
		return "", errors.Wrap(err, "")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.Wrap(err, "")
	}
	if err := save(ctx, tx, id.String(), psi); err != nil {
		if err1 := tx.Rollback(); err1 != nil {
			return "", errors.Wrap(err, err1.Error())
		}
		return "", errors.Wrap(err, "")
	}
	if err := tx.Commit(); err != nil {
		return "", errors.Wrap(err, "")
	}
	return id.String(), nil
}

func save(ctx context.Context, tx *sql.Tx, id string, psi *mps.MPS) error {
	sqlStr := fmt.Sprintf(`INSERT INTO %s (id, boundary, l, created) VALUES (?, ?, ?, ?)`, tableSnapshots)
	if _, err := tx.ExecContext(ctx, sqlStr, id, psi.Boundary().String(), psi.L(), time.Now().UnixMicro()); err != nil {
		return errors.Wrap(err, "")
	}

	forms := psi.Forms()
	for i := range psi.L() {
		// Unknown keeps the tensor in its stored form.
		b, err := psi.Tensor(i, mps.Unknown, mps.DefaultCutoff)
		if err != nil {
			return errors.Wrap(err, "")
		}
		if err := setTensor(ctx, tx, id, i, b, forms[i]); err != nil {
			return errors.Wrap(err, fmt.Sprintf("%d", i))
		}
	}

	for i := range psi.L() + 1 {
		s, err := spectrum(psi, i)
		if err != nil {
			return errors.Wrap(err, "")
		}
		if err := setSpectrum(ctx, tx, id, i, s); err != nil {
			return errors.Wrap(err, fmt.Sprintf("%d", i))
		}
	}
	return nil
}

// spectrum returns the i-th of the L+1 spectra of psi.
func spectrum(psi *mps.MPS, i int) (mps.Spectrum, error) {
	if i == psi.L() {
		return psi.SR(i - 1)
	}
	return psi.SL(i)
}

func setTensor(ctx context.Context, tx *sql.Tx, id string, i int, b *array.Array, form mps.Form) error {
	data, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(err, "")
	}
	var nuL, nuR sql.NullFloat64
	if form.Known() {
		l, r := form.Exponents()
		nuL = sql.NullFloat64{Float64: l, Valid: true}
		nuR = sql.NullFloat64{Float64: r, Valid: true}
	}
	sqlStr := fmt.Sprintf(`INSERT INTO %s (snapshot, i, form, nu_l, nu_r, data) VALUES (?, ?, ?, ?, ?, ?)`, tableTensors)
	if _, err := tx.ExecContext(ctx, sqlStr, id, i, form.Name(), nuL, nuR, string(data)); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func setSpectrum(ctx context.Context, tx *sql.Tx, id string, i int, s mps.Spectrum) error {
	var data []byte
	var err error
	if s.IsDense() {
		data, err = json.Marshal(s.Matrix())
	} else {
		data, err = json.Marshal(s.Values())
	}
	if err != nil {
		return errors.Wrap(err, "")
	}
	sqlStr := fmt.Sprintf(`INSERT INTO %s (snapshot, i, dense, data) VALUES (?, ?, ?, ?)`, tableSpectra)
	if _, err := tx.ExecContext(ctx, sqlStr, id, i, s.IsDense(), string(data)); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// Load reads the snapshot id as a state on sites.
// The state is validated like any state built by mps.New.
func (d *DB) Load(ctx context.Context, id string, sites []*site.Site) (*mps.MPS, error) {
	ctx, cancel := context.WithTimeout(ctx, transferTimeout)
	defer cancel()
	snap, err := d.snapshot(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if len(sites) != snap.L {
		return nil, errors.Wrapf(mps.ErrShapeMismatch, "%d sites for a snapshot of length %d", len(sites), snap.L)
	}

	bs, forms, err := d.tensors(ctx, id, snap.L)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	ss, err := d.spectra(ctx, id, snap.L)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	psi, err := mps.New(sites, bs, ss, snap.Boundary, forms...)
	if err != nil {
		return nil, errors.Wrap(err, id)
	}
	return psi, nil
}

func (d *DB) snapshot(ctx context.Context, id string) (Snapshot, error) {
	sqlStr := fmt.Sprintf(`SELECT id, boundary, l, created FROM %s WHERE id=?`, tableSnapshots)
	snap, err := scanSnapshot(d.db.QueryRowContext(ctx, sqlStr, id))
	switch {
	case err == sql.ErrNoRows:
		return Snapshot{}, errors.Wrapf(ErrNotFound, "%s", id)
	case err != nil:
		return Snapshot{}, errors.Wrap(err, "")
	}
	return snap, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (Snapshot, error) {
	var snap Snapshot
	var bc string
	var created int64
	if err := row.Scan(&snap.ID, &bc, &snap.L, &created); err != nil {
		return Snapshot{}, err
	}
	var err error
	if snap.Boundary, err = mps.ParseBoundary(bc); err != nil {
		return Snapshot{}, errors.Wrap(err, "")
	}
	snap.Created = time.UnixMicro(created)
	return snap, nil
}

func (d *DB) tensors(ctx context.Context, id string, l int) ([]*array.Array, []mps.Form, error) {
	sqlStr := fmt.Sprintf(`SELECT i, form, nu_l, nu_r, data FROM %s WHERE snapshot=? ORDER BY i`, tableTensors)
	rows, err := d.db.QueryContext(ctx, sqlStr, id)
	if err != nil {
		return nil, nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	bs := make([]*array.Array, 0, l)
	forms := make([]mps.Form, 0, l)
	for rows.Next() {
		var i int
		var name, data string
		var nuL, nuR sql.NullFloat64
		if err := rows.Scan(&i, &name, &nuL, &nuR, &data); err != nil {
			return nil, nil, errors.Wrap(err, "")
		}
		if i != len(bs) {
			return nil, nil, errors.Errorf("missing tensor %d %d", i, len(bs))
		}
		form, err := parseForm(name, nuL, nuR)
		if err != nil {
			return nil, nil, errors.Wrap(err, fmt.Sprintf("%d", i))
		}
		b := &array.Array{}
		if err := json.Unmarshal([]byte(data), b); err != nil {
			return nil, nil, errors.Wrap(err, fmt.Sprintf("%d", i))
		}
		bs = append(bs, b)
		forms = append(forms, form)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "")
	}
	if len(bs) != l {
		return nil, nil, errors.Errorf("%d tensors, expected %d", len(bs), l)
	}
	return bs, forms, nil
}

func parseForm(name string, nuL, nuR sql.NullFloat64) (mps.Form, error) {
	switch {
	case name != "":
		return mps.ParseForm(name)
	case nuL.Valid && nuR.Valid:
		return mps.Custom(nuL.Float64, nuR.Float64), nil
	}
	return mps.Unknown, nil
}

func (d *DB) spectra(ctx context.Context, id string, l int) ([]mps.Spectrum, error) {
	sqlStr := fmt.Sprintf(`SELECT i, dense, data FROM %s WHERE snapshot=? ORDER BY i`, tableSpectra)
	rows, err := d.db.QueryContext(ctx, sqlStr, id)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	ss := make([]mps.Spectrum, 0, l+1)
	for rows.Next() {
		var i int
		var dense bool
		var data string
		if err := rows.Scan(&i, &dense, &data); err != nil {
			return nil, errors.Wrap(err, "")
		}
		if i != len(ss) {
			return nil, errors.Errorf("missing spectrum %d %d", i, len(ss))
		}
		if dense {
			m := &array.Array{}
			if err := json.Unmarshal([]byte(data), m); err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("%d", i))
			}
			ss = append(ss, mps.Dense(m))
			continue
		}
		var values []float64
		if err := json.Unmarshal([]byte(data), &values); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d", i))
		}
		ss = append(ss, mps.Diagonal(values))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if len(ss) != l+1 {
		return nil, errors.Errorf("%d spectra, expected %d", len(ss), l+1)
	}
	return ss, nil
}

// List returns all snapshots, newest first.
func (d *DB) List(ctx context.Context) ([]Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT id, boundary, l, created FROM %s ORDER BY created DESC, id DESC`, tableSnapshots)
	rows, err := d.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	snaps := make([]Snapshot, 0)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return snaps, nil
}

// Delete removes the snapshot id.
func (d *DB) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	sqlStr := fmt.Sprintf(`DELETE FROM %s WHERE id=?`, tableSnapshots)
	res, err := d.db.ExecContext(ctx, sqlStr, id)
	if err != nil {
		return errors.Wrap(err, "")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "")
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "%s", id)
	}
	return nil
}
