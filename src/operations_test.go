package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"datagen/src/config"
	"datagen/src/logutil"

	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func listDir(t *testing.T, dir string) []string {
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func readFile(t *testing.T, path string) string {
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestCLIScenario(t *testing.T) {
	dir := t.TempDir()
	pathBase := filepath.Join(dir, "t")

	out, err := runCLI(t, "-f", "2", "-c", "2", "-r", "3", "-t", "tbl", "--no-progress", pathBase)
	require.NoError(t, err)
	require.Contains(t, out, "Total Rows: 6")

	require.ElementsMatch(t,
		[]string{"t.0.csv", "t.1.csv", "t.table.sql", "t.pipe.sql"},
		listDir(t, dir))
	require.Equal(t, "row,col0,col1\n3,0,1\n4,0,1\n5,0,1\n", readFile(t, filepath.Join(dir, "t.1.csv")))
	require.Equal(t,
		"CREATE TABLE tbl (row INTEGER, col0 INTEGER, col1 INTEGER, KEY (col0, col1) USING CLUSTERED COLUMNSTORE, SHARD KEY (row));",
		readFile(t, filepath.Join(dir, "t.table.sql")))
	require.Equal(t, "CREATE PIPELINE pipe_tbl\n"+
		"AS LOAD DATA FS '"+pathBase+".*.csv'\n"+
		"INTO TABLE tbl\n"+
		"FIELDS TERMINATED BY ',';\n"+
		"\n"+
		"START PIPELINE pipe_tbl;", readFile(t, filepath.Join(dir, "t.pipe.sql")))
}

func TestCLIDefaults(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, "--no-progress", filepath.Join(dir, "d"))
	require.NoError(t, err)
	require.Equal(t, []string{"d.0.csv"}, listDir(t, dir))
	require.Equal(t, "row,col0\n0,0\n", readFile(t, filepath.Join(dir, "d.0.csv")))
}

func TestCLIFlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "gen.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
[common]
files = 3
rows = 2
cols = 0
gz = true
`), 0o644))

	out := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(out, 0o755))
	_, err := runCLI(t, "--config", cfgPath, "-f", "1", "--no-progress", filepath.Join(out, "c"))
	require.NoError(t, err)
	require.Equal(t, []string{"c.0.csv.gz"}, listDir(t, out))
}

func TestCLIInvalidArguments(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, "-f", "0", "-r", "-1", "--policy", "zigzag", filepath.Join(dir, "t"))
	require.ErrorContains(t, err, "files must be at least 1")
	require.ErrorContains(t, err, "rows must be >= 0")
	require.ErrorContains(t, err, "policy must be sequential or random")
	require.Empty(t, listDir(t, dir))

	_, err = runCLI(t, "--no-progress")
	require.ErrorContains(t, err, "path base is required")
}

func TestCLIMissingEnvFile(t *testing.T) {
	_, err := runCLI(t, "--env-file", filepath.Join(t.TempDir(), "missing.env"), "t")
	require.ErrorContains(t, err, "failed to load env file")
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		kind artifactKind
		ok   bool
	}{
		{"t.0.csv", kindData, true},
		{"t.12.csv.gz", kindData, true},
		{"t.table.sql", kindDDL, true},
		{"t.pipe.sql", kindDDL, true},
		{".t.3.csv.8f0c2a8e-5f4e-4f7c-9f5e-0d6c3e2b1a00.tmp", kindTemp, true},
		{"t.table.sql.tmp.8f0c2a8e-5f4e-4f7c-9f5e-0d6c3e2b1a00", kindTemp, true},
		{"t.pipe.sql.tmp.8f0c2a8e-5f4e-4f7c-9f5e-0d6c3e2b1a00", kindTemp, true},
		{"t.0.csv.tmp.8f0c2a8e", 0, false},
		{"u.table.sql.tmp.8f0c2a8e", 0, false},
		{"t.x.csv", 0, false},
		{"t.0.parquet", 0, false},
		{"tt.0.csv", 0, false},
		{".other.0.csv.abc.tmp", kindTemp, false},
		{"t.csv", 0, false},
	}
	for _, c := range cases {
		kind, ok := classify("t", c.name)
		require.Equal(t, c.ok, ok, c.name)
		if ok {
			require.Equal(t, c.kind, kind, c.name)
		}
	}
}

func TestShowAndCleanFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	pathBase := filepath.Join(dir, "t")

	_, err := runCLI(t, "-f", "2", "-t", "tbl", "--no-progress", pathBase)
	require.NoError(t, err)
	stray := ".t.2.csv.0b7e2a4c-1111-4222-8333-944455556666.tmp"
	require.NoError(t, os.WriteFile(filepath.Join(dir, stray), []byte("row\n"), 0o644))
	staged := "t.table.sql.tmp.5d1c9a70-2222-4333-8444-955566667777"
	require.NoError(t, os.WriteFile(filepath.Join(dir, staged), []byte("CREATE"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.csv"), []byte("x"), 0o644))

	cfg := config.Default()
	cfg.Common.PathBase = pathBase

	var out bytes.Buffer
	require.NoError(t, ShowFiles(ctx, cfg, &out))
	require.Contains(t, out.String(), "Name: t.0.csv, Kind: data")
	require.Contains(t, out.String(), "Name: t.pipe.sql, Kind: ddl")
	require.Contains(t, out.String(), "Kind: temp")
	require.Contains(t, out.String(), "Name: "+staged+", Kind: temp")
	require.Contains(t, out.String(), "6 files")
	require.NotContains(t, out.String(), "keep.csv")

	n, err := CleanFiles(ctx, cfg, logutil.Discard())
	require.NoError(t, err)
	require.Equal(t, 6, n)
	require.Equal(t, []string{"keep.csv"}, listDir(t, dir))
}

func TestCleanCommand(t *testing.T) {
	dir := t.TempDir()
	pathBase := filepath.Join(dir, "t")
	_, err := runCLI(t, "-f", "3", "--no-progress", pathBase)
	require.NoError(t, err)

	_, err = runCLI(t, "clean", pathBase)
	require.NoError(t, err)
	require.Empty(t, listDir(t, dir))
}
