package ddl

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/br/pkg/storage"
	"github.com/stretchr/testify/require"
)

func renderTable(t *testing.T, table string, cols int) string {
	var buf bytes.Buffer
	require.NoError(t, RenderTable(&buf, table, cols))
	return buf.String()
}

func TestRenderTable(t *testing.T) {
	require.Equal(t,
		"CREATE TABLE tbl (row INTEGER, col0 INTEGER, col1 INTEGER, KEY (col0, col1) USING CLUSTERED COLUMNSTORE, SHARD KEY (row));",
		renderTable(t, "tbl", 2))
	require.Equal(t,
		"CREATE TABLE t (row INTEGER, col0 INTEGER, KEY (col0) USING CLUSTERED COLUMNSTORE, SHARD KEY (row));",
		renderTable(t, "t", 1))
	require.Equal(t,
		"CREATE TABLE t (row INTEGER, SHARD KEY (row));",
		renderTable(t, "t", 0))
}

func TestRenderPipeline(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderPipeline(&buf, "tbl", FileGlob("data/t", true)))
	require.Equal(t, "CREATE PIPELINE pipe_tbl\n"+
		"AS LOAD DATA FS 'data/t.*.csv.gz'\n"+
		"INTO TABLE tbl\n"+
		"FIELDS TERMINATED BY ',';\n"+
		"\n"+
		"START PIPELINE pipe_tbl;", buf.String())
}

func TestFileGlob(t *testing.T) {
	require.Equal(t, "t.*.csv", FileGlob("t", false))
	require.Equal(t, "/x/t.*.csv.gz", FileGlob("/x/t", true))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("no space left on device")
}

func TestRenderPropagatesWriteErrors(t *testing.T) {
	require.ErrorContains(t, RenderTable(failingWriter{}, "t", 3), "no space left")
	require.ErrorContains(t, RenderPipeline(failingWriter{}, "t", "t.*.csv"), "no space left")
}

func TestCheckTableName(t *testing.T) {
	for _, name := range []string{"tbl", "db.tbl", "`odd name`", "t_1"} {
		require.NoError(t, CheckTableName(name), name)
	}
	for _, name := range []string{
		"",
		"t; DROP TABLE users",
		"t (a INT) -- ",
		"two words",
		"t (x INT, y INT)",
	} {
		require.Error(t, CheckTableName(name), name)
	}
}

func TestEmitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)

	pathBase := filepath.Join(dir, "t")
	read := func() (string, string) {
		table, err := os.ReadFile(filepath.Join(dir, "t.table.sql"))
		require.NoError(t, err)
		pipe, err := os.ReadFile(filepath.Join(dir, "t.pipe.sql"))
		require.NoError(t, err)
		return string(table), string(pipe)
	}

	names, err := Emit(ctx, store, "t", pathBase, "tbl", 2, false)
	require.NoError(t, err)
	require.Equal(t, []string{"t.table.sql", "t.pipe.sql"}, names)
	table1, pipe1 := read()

	_, err = Emit(ctx, store, "t", pathBase, "tbl", 2, false)
	require.NoError(t, err)
	table2, pipe2 := read()

	require.Equal(t, table1, table2)
	require.Equal(t, pipe1, pipe2)
	require.Contains(t, pipe1, "'"+pathBase+".*.csv'")
	require.Equal(t, renderTable(t, "tbl", 2), table1)
}

func TestEmitCompressedGlob(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)

	_, err = Emit(context.Background(), store, "z", "z", "tbl", 1, true)
	require.NoError(t, err)
	pipe, err := os.ReadFile(filepath.Join(dir, "z.pipe.sql"))
	require.NoError(t, err)
	require.Contains(t, string(pipe), "LOAD DATA FS 'z.*.csv.gz'")
}
