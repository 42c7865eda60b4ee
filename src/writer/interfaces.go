package writer

import (
	"iter"

	"datagen/src/rowgen"
)

// Source supplies the header and rows of one output file.
type Source interface {
	Header() []string
	Blocks() iter.Seq[*rowgen.Block]
}

// Result describes a committed output file.
type Result struct {
	Name  string
	Rows  int64
	Bytes int64
}
