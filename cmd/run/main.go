// Command run builds matrix product states and reports their bond dimensions, entropies and magnetizations.
//
// Usage:
//
//	run product --state 0,1,0,1 --conserve Sz
//	run ising --l 6 --h 1.0 --form C --db runs/mps.db
//	run show --db runs/mps.db --id <uuid> --l 6
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fumin/qmps/exactdiag"
	"github.com/fumin/qmps/mps"
	"github.com/fumin/qmps/mpsdb"
	"github.com/fumin/qmps/site"
)

// rootOptions are the flags shared by all commands.
type rootOptions struct {
	config string
	db     string
}

// load returns the run file named by --config, with --db taking precedence over its db.
func (opts *rootOptions) load(cmd *cobra.Command) (Config, error) {
	cfg := defaultConfig()
	if opts.config != "" {
		var err error
		if cfg, err = readConfig(opts.config); err != nil {
			return Config{}, errors.Wrap(err, "")
		}
	}
	if cmd.Flags().Changed("db") || cfg.DB == "" {
		cfg.DB = opts.db
	}
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "run",
		Short:        "Matrix product states in canonical form",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.config, "config", "", "yaml run file")
	cmd.PersistentFlags().StringVar(&opts.db, "db", "", "sqlite database of snapshots")

	cmd.AddCommand(newProductCommand(opts))
	cmd.AddCommand(newIsingCommand(opts))
	cmd.AddCommand(newShowCommand(opts))
	return cmd
}

func newProductCommand(rootOpts *rootOptions) *cobra.Command {
	var state, conserve, bc, form string
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Build a product state of spins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.load(cmd)
			if err != nil {
				return errors.Wrap(err, "")
			}
			override(cmd, "conserve", &cfg.Conserve, conserve)
			override(cmd, "bc", &cfg.Boundary, bc)
			override(cmd, "form", &cfg.Form, form)
			return runProduct(cmd.Context(), cmd.OutOrStdout(), cfg, state)
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "comma separated basis state of every site, 0 is up")
	cmd.Flags().StringVar(&conserve, "conserve", "", `conserved quantity, "" or "Sz"`)
	cmd.Flags().StringVar(&bc, "bc", "finite", "boundary condition, finite, segment or infinite")
	cmd.Flags().StringVar(&form, "form", "B", "canonical form, A, B, C or G")
	cmd.MarkFlagRequired("state")
	return cmd
}

func newIsingCommand(rootOpts *rootOptions) *cobra.Command {
	var l int
	var h, cutoff float64
	var form string
	cmd := &cobra.Command{
		Use:   "ising",
		Short: "Compress the exact ground state of the transverse field Ising chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.load(cmd)
			if err != nil {
				return errors.Wrap(err, "")
			}
			override(cmd, "l", &cfg.Ising.L, l)
			override(cmd, "h", &cfg.Ising.H, h)
			override(cmd, "cutoff", &cfg.Cutoff, cutoff)
			override(cmd, "form", &cfg.Form, form)
			return runIsing(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
	cmd.Flags().IntVar(&l, "l", 6, "number of sites")
	cmd.Flags().Float64Var(&h, "h", 1, "transverse field")
	cmd.Flags().Float64Var(&cutoff, "cutoff", 1e-12, "singular values not above cutoff are discarded")
	cmd.Flags().StringVar(&form, "form", "B", "canonical form, A, B, C or G")
	return cmd
}

func newShowCommand(rootOpts *rootOptions) *cobra.Command {
	var id, conserve string
	var l int
	cmd := &cobra.Command{
		Use:   "show",
		Short: "List snapshots, or print the snapshot --id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.load(cmd)
			if err != nil {
				return errors.Wrap(err, "")
			}
			override(cmd, "conserve", &cfg.Conserve, conserve)
			return runShow(cmd.Context(), cmd.OutOrStdout(), cfg, id, l)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "snapshot id")
	cmd.Flags().IntVar(&l, "l", 0, "number of sites of the snapshot")
	cmd.Flags().StringVar(&conserve, "conserve", "", `conserved quantity of the sites, "" or "Sz"`)
	return cmd
}

// override sets *dst to v if the flag name was given on the command line.
func override[T any](cmd *cobra.Command, name string, dst *T, v T) {
	if cmd.Flags().Changed(name) {
		*dst = v
	}
}

func parseState(s string) ([]mps.State, error) {
	fields := strings.Split(s, ",")
	states := make([]mps.State, 0, len(fields))
	for _, f := range fields {
		i, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%q", s))
		}
		states = append(states, mps.BasisIndex(i))
	}
	return states, nil
}

func runProduct(ctx context.Context, w io.Writer, cfg Config, state string) error {
	states, err := parseState(state)
	if err != nil {
		return errors.Wrap(err, "")
	}
	bc, err := mps.ParseBoundary(cfg.Boundary)
	if err != nil {
		return errors.Wrap(err, "")
	}
	form, err := mps.ParseForm(cfg.Form)
	if err != nil {
		return errors.Wrap(err, "")
	}
	sites, err := site.SpinHalfChain(len(states), cfg.Conserve)
	if err != nil {
		return errors.Wrap(err, "")
	}
	psi, err := mps.FromProductState(sites, states, bc, form, nil)
	if err != nil {
		return errors.Wrap(err, "")
	}

	if err := report(w, psi); err != nil {
		return errors.Wrap(err, "")
	}
	if err := save(ctx, w, cfg.DB, psi); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func runIsing(ctx context.Context, w io.Writer, cfg Config) error {
	form, err := mps.ParseForm(cfg.Form)
	if err != nil {
		return errors.Wrap(err, "")
	}
	l := cfg.Ising.L
	if l < 2 {
		return errors.Errorf("l %d", l)
	}
	n := [2]int{l, 1}
	vvs, err := exactdiag.Eigen(exactdiag.TransverseFieldIsing(n, cfg.Ising.H), 2)
	if err != nil {
		return errors.Wrap(err, "")
	}
	vv := vvs[0]
	stats, err := exactdiag.GetStatistics(n, vvs)
	if err != nil {
		return errors.Wrap(err, "")
	}
	log.Printf("l %d h %f ground energy %f gap %f", l, cfg.Ising.H, vv.Val, vvs[1].Val-vv.Val)

	d, err := exactdiag.Dense(vv.Vec, l)
	if err != nil {
		return errors.Wrap(err, "")
	}
	sites, err := site.SpinHalfChain(l, "")
	if err != nil {
		return errors.Wrap(err, "")
	}
	psi, err := mps.FromDense(sites, d, form, cfg.Cutoff)
	if err != nil {
		return errors.Wrap(err, "")
	}

	if err := report(w, psi); err != nil {
		return errors.Wrap(err, "")
	}
	exact, err := exactdiag.MagnetizationZ(vv.Vec, l)
	if err != nil {
		return errors.Wrap(err, "")
	}
	sigmaz, err := psi.ExpectationValue([]mps.Operator{mps.OpName("Sigmaz")}, nil)
	if err != nil {
		return errors.Wrap(err, "")
	}
	fmt.Fprintf(w, "energy %.6f\n", vv.Val)
	fmt.Fprintf(w, "magnetization %.6f binder %.6f\n", stats.Magnetization, stats.BinderCumulant)
	fmt.Fprintf(w, "<Sigmaz> exact %s\n", formatFloats(exact))
	fmt.Fprintf(w, "<Sigmaz> mps   %s\n", formatFloats(sigmaz))

	if err := save(ctx, w, cfg.DB, psi); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func runShow(ctx context.Context, w io.Writer, cfg Config, id string, l int) error {
	if cfg.DB == "" {
		return errors.Errorf("no database")
	}
	db, err := mpsdb.Open(cfg.DB)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer db.Close()

	if id == "" {
		snaps, err := db.List(ctx)
		if err != nil {
			return errors.Wrap(err, "")
		}
		for _, s := range snaps {
			fmt.Fprintf(w, "%s %s L=%d %s\n", s.ID, s.Boundary, s.L, s.Created.Format("2006-01-02T15:04:05.000000"))
		}
		return nil
	}

	sites, err := site.SpinHalfChain(l, cfg.Conserve)
	if err != nil {
		return errors.Wrap(err, "")
	}
	psi, err := db.Load(ctx, id, sites)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := report(w, psi); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func report(w io.Writer, psi *mps.MPS) error {
	entropy, err := psi.EntanglementEntropy()
	if err != nil {
		return errors.Wrap(err, "")
	}
	sz, err := psi.ExpectationValue([]mps.Operator{mps.OpName("Sz")}, nil)
	if err != nil {
		return errors.Wrap(err, "")
	}
	fmt.Fprintf(w, "L %d %s forms %v\n", psi.L(), psi.Boundary(), psi.Forms())
	fmt.Fprintf(w, "chi %v\n", psi.Chi())
	fmt.Fprintf(w, "entropy %s\n", formatFloats(entropy))
	fmt.Fprintf(w, "<Sz> %s\n", formatFloats(sz))
	return nil
}

func save(ctx context.Context, w io.Writer, dbPath string, psi *mps.MPS) error {
	if dbPath == "" {
		return nil
	}
	db, err := mpsdb.Open(dbPath)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer db.Close()
	id, err := db.Save(ctx, psi)
	if err != nil {
		return errors.Wrap(err, "")
	}
	fmt.Fprintf(w, "saved %s\n", id)
	return nil
}

func formatFloats(v []float64) string {
	s := make([]string, 0, len(v))
	for _, x := range v {
		// Avoid printing -0.000000.
		if x > -5e-7 && x < 5e-7 {
			x = 0
		}
		s = append(s, strconv.FormatFloat(x, 'f', 6, 64))
	}
	return "[" + strings.Join(s, " ") + "]"
}

func main() {
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	if err := mainWithErr(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func mainWithErr() error {
	cmd := newRootCommand()
	cmd.SetArgs(os.Args[1:])
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}
