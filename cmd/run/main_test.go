package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func line(t *testing.T, out, prefix string) string {
	t.Helper()
	for _, l := range strings.Split(out, "\n") {
		if strings.HasPrefix(l, prefix) {
			return l
		}
	}
	require.Failf(t, "missing line", "%q in %s", prefix, out)
	return ""
}

func parseFloats(t *testing.T, s string) []float64 {
	t.Helper()
	fields := strings.Fields(strings.Trim(s, "[]"))
	v := make([]float64, 0, len(fields))
	for _, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		require.NoError(t, err)
		v = append(v, x)
	}
	return v
}

func TestCommandPresence(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"product", "ising", "show"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("db"))
}

func TestProduct(t *testing.T) {
	tests := []struct {
		args    []string
		forms   string
		chi     string
		sz      string
		entropy string
	}{
		{
			args:    []string{"product", "--state", "0,1,0,1", "--conserve", "Sz"},
			forms:   "L 4 finite forms [B B B B]",
			chi:     "chi [1 1 1]",
			sz:      "<Sz> [0.500000 -0.500000 0.500000 -0.500000]",
			entropy: "entropy [0.000000 0.000000 0.000000]",
		},
		{
			args:    []string{"product", "--state", "1,1", "--bc", "infinite", "--form", "C"},
			forms:   "L 2 infinite forms [C C]",
			chi:     "chi [1 1]",
			sz:      "<Sz> [-0.500000 -0.500000]",
			entropy: "entropy [0.000000 0.000000]",
		},
	}
	for _, test := range tests {
		t.Run(strings.Join(test.args, " "), func(t *testing.T) {
			out, err := execute(t, test.args...)
			require.NoError(t, err)
			assert.Equal(t, test.forms, line(t, out, "L "))
			assert.Equal(t, test.chi, line(t, out, "chi "))
			assert.Equal(t, test.sz, line(t, out, "<Sz> "))
			assert.Equal(t, test.entropy, line(t, out, "entropy "))
		})
	}
}

func TestProductErrors(t *testing.T) {
	tests := [][]string{
		{"product"},
		{"product", "--state", "0,a"},
		{"product", "--state", "0,2"},
		{"product", "--state", "0,1", "--form", "X"},
		{"product", "--state", "0,1", "--bc", "periodic"},
		{"product", "--state", "0,1", "--conserve", "Sx"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			_, err := execute(t, args...)
			require.Error(t, err)
		})
	}
}

func TestIsingSaveShow(t *testing.T) {
	db := filepath.Join(t.TempDir(), "mps.db")
	out, err := execute(t, "ising", "--l", "4", "--h", "0.5", "--form", "C", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "L 4 finite forms [C C C C]", line(t, out, "L "))
	exact := parseFloats(t, strings.TrimPrefix(line(t, out, "<Sigmaz> exact "), "<Sigmaz> exact "))
	approx := parseFloats(t, strings.TrimPrefix(line(t, out, "<Sigmaz> mps   "), "<Sigmaz> mps   "))
	require.Len(t, exact, 4)
	assert.InDeltaSlice(t, exact, approx, 1e-5)
	id := strings.TrimPrefix(line(t, out, "saved "), "saved ")

	list, err := execute(t, "show", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, id+" finite L=4", line(t, list, id)[:len(id)+len(" finite L=4")])

	shown, err := execute(t, "show", "--db", db, "--id", id, "--l", "4")
	require.NoError(t, err)
	assert.Equal(t, line(t, out, "chi "), line(t, shown, "chi "))
	assert.Equal(t, line(t, out, "entropy "), line(t, shown, "entropy "))
	assert.Equal(t, line(t, out, "<Sz> "), line(t, shown, "<Sz> "))

	_, err = execute(t, "ising", "--l", "1")
	require.Error(t, err)
	_, err = execute(t, "show", "--db", db, "--id", id, "--l", "3")
	require.Error(t, err)
	_, err = execute(t, "show")
	require.Error(t, err)
}

func TestConfig(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "mps.db")
	cfgPath := filepath.Join(dir, "run.yaml")
	cfg := "form: C\ncutoff: 1e-10\ndb: " + db + "\nising:\n  l: 3\n  h: 2\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0644))

	out, err := execute(t, "ising", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "L 3 finite forms [C C C]", line(t, out, "L "))
	line(t, out, "saved ")

	// Flags take precedence over the run file.
	other := filepath.Join(dir, "other.db")
	out, err = execute(t, "ising", "--config", cfgPath, "--form", "A", "--l", "4", "--db", other)
	require.NoError(t, err)
	assert.Equal(t, "L 4 finite forms [A A A A]", line(t, out, "L "))

	list, err := execute(t, "show", "--db", db)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(list), "\n"), 1)
	list, err = execute(t, "show", "--db", other)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(list), "\n"), 1)
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("conserve: Sz\n"), 0644))
	cfg, err := readConfig(path)
	require.NoError(t, err)
	expected := defaultConfig()
	expected.Conserve = "Sz"
	assert.Equal(t, expected, cfg)

	require.NoError(t, os.WriteFile(path, []byte("ising: [1, 2]\n"), 0644))
	_, err = readConfig(path)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("ising:\n  l: 1\n"), 0644))
	_, err = readConfig(path)
	require.Error(t, err)

	_, err = readConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
