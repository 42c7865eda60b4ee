package rowgen

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func collect(s *Synthesizer) []Row {
	var rows []Row
	for row := range s.Rows() {
		rows = append(rows, row)
	}
	return rows
}

func TestHeader(t *testing.T) {
	require.Equal(t, []string{"row"}, NewSynthesizer(Sequential, 0, 3, 0).Header())
	require.Equal(t, []string{"row", "col0", "col1", "col2"}, NewSynthesizer(Random, 0, 3, 3).Header())
}

func TestSequentialRows(t *testing.T) {
	rows := collect(NewSynthesizer(Sequential, 1, 3, 2))
	require.Equal(t, []Row{{3, 0, 1}, {4, 0, 1}, {5, 0, 1}}, rows)
}

func TestSequentialValuesEqualColumnIndex(t *testing.T) {
	const cols = 7
	for fi := range 3 {
		s := NewSynthesizer(Sequential, fi, 50, cols, WithBlockRows(8))
		j := 0
		for row := range s.Rows() {
			require.Len(t, row, cols+1)
			require.Equal(t, int64(fi*50+j), row[0])
			for k := range cols {
				require.Equal(t, int64(k), row[k+1])
			}
			j++
		}
		require.Equal(t, 50, j)
	}
}

func TestRandomValuesInRange(t *testing.T) {
	s := NewSynthesizer(Random, 2, 1000, 5, WithBlockRows(64), WithSeed(7))
	seen := make(map[int64]bool)
	j := 0
	for row := range s.Rows() {
		require.Equal(t, int64(2*1000+j), row[0])
		for _, v := range row[1:] {
			require.GreaterOrEqual(t, v, int64(0))
			require.Less(t, v, int64(RandomBound))
			seen[v] = true
		}
		j++
	}
	require.Equal(t, 1000, j)
	// 5000 draws over ten digits leave no digit unseen.
	require.Len(t, seen, RandomBound)
}

func TestRandomSeedIsReproducible(t *testing.T) {
	a := collect(NewSynthesizer(Random, 0, 200, 3, WithSeed(99), WithBlockRows(17)))
	b := collect(NewSynthesizer(Random, 0, 200, 3, WithSeed(99), WithBlockRows(17)))
	require.Equal(t, a, b)

	other := collect(NewSynthesizer(Random, 1, 200, 3, WithSeed(99), WithBlockRows(17)))
	values := func(rows []Row) [][]int64 {
		var out [][]int64
		for _, r := range rows {
			out = append(out, slices.Clone(r[1:]))
		}
		return out
	}
	require.NotEqual(t, values(a), values(other))
}

func TestRowIndexCoverage(t *testing.T) {
	const files, rows = 4, 37
	seen := make(map[int64]int)
	for fi := range files {
		for _, policy := range []Policy{Sequential, Random} {
			for row := range NewSynthesizer(policy, fi, rows, 1, WithBlockRows(5)).Rows() {
				seen[row[0]]++
			}
		}
	}
	require.Len(t, seen, files*rows)
	for idx := range int64(files * rows) {
		require.Equal(t, 2, seen[idx], "row %d", idx)
	}
}

func TestBlocks(t *testing.T) {
	s := NewSynthesizer(Sequential, 0, 10, 2, WithBlockRows(4))
	var starts []int64
	var sizes []int
	for b := range s.Blocks() {
		require.True(t, b.Uniform)
		require.Equal(t, []int64{0, 1}, b.RowValues(0))
		starts = append(starts, b.Start)
		sizes = append(sizes, b.Rows)
	}
	require.Equal(t, []int64{0, 4, 8}, starts)
	require.Equal(t, []int{4, 4, 2}, sizes)

	r := NewSynthesizer(Random, 0, 10, 2, WithBlockRows(4), WithSeed(1))
	for b := range r.Blocks() {
		require.False(t, b.Uniform)
		require.Len(t, b.RowValues(b.Rows-1), 2)
	}
}

func TestEdgeCases(t *testing.T) {
	require.Empty(t, collect(NewSynthesizer(Sequential, 3, 0, 4)))
	require.Empty(t, collect(NewSynthesizer(Random, 3, 0, 4)))

	rows := collect(NewSynthesizer(Random, 1, 2, 0))
	require.Equal(t, []Row{{2}, {3}}, rows)
}

func TestEarlyStop(t *testing.T) {
	n := 0
	for range NewSynthesizer(Random, 0, 100, 2, WithBlockRows(10)).Rows() {
		n++
		if n == 15 {
			break
		}
	}
	require.Equal(t, 15, n)
}

func TestParsePolicy(t *testing.T) {
	p, ok := ParsePolicy("random")
	require.True(t, ok)
	require.Equal(t, Random, p)
	require.Equal(t, "random", p.String())

	p, ok = ParsePolicy("sequential")
	require.True(t, ok)
	require.Equal(t, Sequential, p)
	require.Equal(t, "sequential", p.String())

	_, ok = ParsePolicy("zipf")
	require.False(t, ok)
}
