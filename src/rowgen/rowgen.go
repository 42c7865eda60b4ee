// Package rowgen synthesizes the integer rows of one generated file.
package rowgen

import (
	"encoding/binary"
	"iter"
	"math/rand/v2"
	"strconv"
	"time"
)

// Policy selects how column values are produced.
type Policy int

const (
	// Sequential writes each column's own index as its value, so every row of
	// every file carries identical values and only the row index varies.
	Sequential Policy = iota
	// Random writes independent uniform values in [0, RandomBound).
	Random
)

// RandomBound is the exclusive upper bound of values produced by Random.
const RandomBound = 10

// rejectAbove keeps the byte-to-digit mapping uniform: 250 is the largest multiple of 10 below 256.
const rejectAbove = 250

const defaultBlockRows = 4096

// ParsePolicy maps a policy name onto a Policy.
func ParsePolicy(name string) (Policy, bool) {
	switch name {
	case "sequential":
		return Sequential, true
	case "random":
		return Random, true
	}
	return Sequential, false
}

func (p Policy) String() string {
	if p == Random {
		return "random"
	}
	return "sequential"
}

// Row is the global row index followed by the column values.
type Row []int64

// Block is a run of consecutive rows stored row-major.
type Block struct {
	// Start is the global row index of the first row.
	Start int64
	Rows  int
	Cols  int
	// Values holds Rows*Cols column values. When Uniform is set only the first
	// Cols entries are meaningful and apply to every row.
	Values  []int64
	Uniform bool
}

// RowValues returns the column values of row i within the block.
func (b *Block) RowValues(i int) []int64 {
	if b.Uniform {
		return b.Values[:b.Cols]
	}
	return b.Values[i*b.Cols : (i+1)*b.Cols]
}

// Synthesizer produces the rows of a single file.
type Synthesizer struct {
	policy    Policy
	fileIndex int
	rows      int
	cols      int
	blockRows int
	seed      uint64
}

// Option customizes a Synthesizer.
type Option func(*Synthesizer)

// WithBlockRows sets how many rows are produced per block.
func WithBlockRows(n int) Option {
	return func(s *Synthesizer) {
		if n > 0 {
			s.blockRows = n
		}
	}
}

// WithSeed fixes the random seed of the Random policy. The file index is mixed
// in so that files of one run differ from each other.
func WithSeed(seed uint64) Option {
	return func(s *Synthesizer) {
		s.seed = seed
	}
}

// NewSynthesizer returns a synthesizer for file fileIndex holding rows rows of cols columns.
func NewSynthesizer(policy Policy, fileIndex, rows, cols int, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		policy:    policy,
		fileIndex: fileIndex,
		rows:      rows,
		cols:      cols,
		blockRows: defaultBlockRows,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Header returns the column names: "row" followed by col0..col{cols-1}.
func (s *Synthesizer) Header() []string {
	header := make([]string, 0, s.cols+1)
	header = append(header, "row")
	for i := range s.cols {
		header = append(header, "col"+strconv.Itoa(i))
	}
	return header
}

// StartRow is the global index of the file's first row.
func (s *Synthesizer) StartRow() int64 {
	return int64(s.fileIndex) * int64(s.rows)
}

// Blocks yields the file's rows in blocks. The yielded block is reused, so
// callers must not keep it past the next iteration.
func (s *Synthesizer) Blocks() iter.Seq[*Block] {
	return func(yield func(*Block) bool) {
		if s.rows == 0 {
			return
		}
		blockRows := min(s.blockRows, s.rows)
		block := &Block{Cols: s.cols}

		var fill func(*Block)
		switch s.policy {
		case Random:
			fill = s.randomFiller(blockRows)
			block.Values = make([]int64, blockRows*s.cols)
		default:
			block.Uniform = true
			block.Values = make([]int64, s.cols)
			for i := range block.Values {
				block.Values[i] = int64(i)
			}
		}

		start := s.StartRow()
		for offset := 0; offset < s.rows; offset += blockRows {
			block.Start = start + int64(offset)
			block.Rows = min(blockRows, s.rows-offset)
			if fill != nil {
				fill(block)
			}
			if !yield(block) {
				return
			}
		}
	}
}

// Rows yields the file's rows one at a time. Each Row is freshly allocated.
func (s *Synthesizer) Rows() iter.Seq[Row] {
	return func(yield func(Row) bool) {
		for block := range s.Blocks() {
			for i := range block.Rows {
				row := make(Row, 0, s.cols+1)
				row = append(row, block.Start+int64(i))
				row = append(row, block.RowValues(i)...)
				if !yield(row) {
					return
				}
			}
		}
	}
}

// randomFiller returns a function filling a whole block from one bulk read of random bytes.
func (s *Synthesizer) randomFiller(blockRows int) func(*Block) {
	rng := rand.NewChaCha8(s.chachaSeed())
	raw := make([]byte, blockRows*s.cols)

	return func(b *Block) {
		n := b.Rows * b.Cols
		values := b.Values[:n]
		buf := raw[:n]
		_, _ = rng.Read(buf)
		for i, v := range buf {
			for v >= rejectAbove {
				v = byte(rng.Uint64())
			}
			values[i] = int64(v % RandomBound)
		}
	}
}

func (s *Synthesizer) chachaSeed() [32]byte {
	seed := s.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	var out [32]byte
	binary.LittleEndian.PutUint64(out[0:], seed)
	binary.LittleEndian.PutUint64(out[8:], uint64(s.fileIndex))
	binary.LittleEndian.PutUint64(out[16:], uint64(s.rows))
	binary.LittleEndian.PutUint64(out[24:], uint64(s.cols))
	return out
}
