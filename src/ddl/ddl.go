// Package ddl renders the CREATE TABLE and CREATE PIPELINE statements that load generated files.
//
// Table names are copied into the SQL text as given. CheckTableName can reject
// names that are not a single identifier, but nothing here quotes or escapes them.
package ddl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/br/pkg/storage"
	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
)

const (
	TableFileSuffix = "table.sql"
	PipeFileSuffix  = "pipe.sql"
)

// sqlWriter keeps the first write error so rendering can stay linear.
type sqlWriter struct {
	w   io.Writer
	err error
}

func (s *sqlWriter) str(v string) {
	if s.err != nil {
		return
	}
	_, s.err = io.WriteString(s.w, v)
}

func (s *sqlWriter) column(i int) {
	s.str("col")
	s.str(strconv.Itoa(i))
}

// FileGlob is the pattern a pipeline uses to pick up the data files of pathBase.
func FileGlob(pathBase string, compress bool) string {
	if compress {
		return pathBase + ".*.csv.gz"
	}
	return pathBase + ".*.csv"
}

// RenderTable writes a CREATE TABLE statement with one INTEGER column per
// generated column, a clustered columnstore key over them and a shard key on row.
func RenderTable(w io.Writer, table string, cols int) error {
	s := &sqlWriter{w: w}
	s.str("CREATE TABLE ")
	s.str(table)
	s.str(" (row INTEGER")
	for i := range cols {
		s.str(", ")
		s.column(i)
		s.str(" INTEGER")
	}
	if cols > 0 {
		s.str(", KEY (")
		for i := range cols {
			if i > 0 {
				s.str(", ")
			}
			s.column(i)
		}
		s.str(") USING CLUSTERED COLUMNSTORE")
	}
	s.str(", SHARD KEY (row));")
	return errors.Trace(s.err)
}

// RenderPipeline writes the CREATE PIPELINE and START PIPELINE statements loading glob into table.
func RenderPipeline(w io.Writer, table, glob string) error {
	pipe := "pipe_" + table
	_, err := fmt.Fprintf(w, "CREATE PIPELINE %s\nAS LOAD DATA FS '%s'\nINTO TABLE %s\nFIELDS TERMINATED BY ',';\n\nSTART PIPELINE %s;",
		pipe, glob, table, pipe)
	return errors.Trace(err)
}

// CheckTableName reports an error unless table parses as exactly one
// (optionally schema-qualified) table identifier.
func CheckTableName(table string) error {
	p := parser.New()
	// Two probes with different column names catch names that comment out or
	// otherwise swallow the text that follows them.
	for _, probe := range []string{"probe_a", "probe_b"} {
		sql := "CREATE TABLE " + table + " (" + probe + " INT)"
		stmt, err := p.ParseOneStmt(sql, "", "")
		if err != nil {
			return errors.Annotatef(err, "table name %q is not a valid identifier", table)
		}
		ct, ok := stmt.(*ast.CreateTableStmt)
		if !ok || ct.Table == nil || len(ct.Cols) != 1 || ct.Cols[0].Name.Name.O != probe {
			return errors.Errorf("table name %q is not a single identifier", table)
		}
	}
	return nil
}

// Emit renders both statements and writes them to {prefix}.table.sql and
// {prefix}.pipe.sql in store. Each file is written with a single WriteFile
// call, which the local backend stages in a temporary file and renames. It
// returns the names written.
func Emit(
	ctx context.Context,
	store storage.ExternalStorage,
	prefix, pathBase, table string,
	cols int,
	compress bool,
) ([]string, error) {
	var buf bytes.Buffer

	tableName := prefix + "." + TableFileSuffix
	if err := RenderTable(&buf, table, cols); err != nil {
		return nil, err
	}
	if err := store.WriteFile(ctx, tableName, buf.Bytes()); err != nil {
		return nil, errors.Annotatef(err, "failed to write %s", tableName)
	}

	buf.Reset()
	pipeName := prefix + "." + PipeFileSuffix
	if err := RenderPipeline(&buf, table, FileGlob(pathBase, compress)); err != nil {
		return nil, err
	}
	if err := store.WriteFile(ctx, pipeName, buf.Bytes()); err != nil {
		return []string{tableName}, errors.Annotatef(err, "failed to write %s", pipeName)
	}
	return []string{tableName, pipeName}, nil
}
