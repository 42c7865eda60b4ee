package util

import (
	"strconv"

	"github.com/docker/go-units"
)

const (
	defaultChunkSize = 32 * units.KiB
	// maxBlockRows bounds the per-file block buffer regardless of the target chunk size.
	maxBlockRows = 1 << 20
)

// ChunkCalculator determines how many rows are synthesized and encoded per block.
type ChunkCalculator interface {
	CalculateChunkRows(cols int, maxRowIndex int64, maxValue int64) int
	EstimateRowSize(cols int, maxRowIndex int64, maxValue int64) int
}

type chunkCalculator struct {
	targetSizeBytes int
}

// NewChunkSizeCalculator creates a calculator aiming at targetSizeBytes of encoded text per block.
func NewChunkSizeCalculator(targetSizeBytes int) ChunkCalculator {
	if targetSizeBytes <= 0 {
		targetSizeBytes = defaultChunkSize
	}
	return &chunkCalculator{targetSizeBytes: targetSizeBytes}
}

// EstimateRowSize is an upper bound of one encoded CSV record in bytes.
func (c *chunkCalculator) EstimateRowSize(cols int, maxRowIndex int64, maxValue int64) int {
	size := decimalWidth(maxRowIndex)
	// One separator in front of every value, plus the newline.
	size += cols * (decimalWidth(maxValue) + 1)
	return size + 1
}

// CalculateChunkRows returns the number of rows whose encoding fills roughly one chunk.
func (c *chunkCalculator) CalculateChunkRows(cols int, maxRowIndex int64, maxValue int64) int {
	rowSize := c.EstimateRowSize(cols, maxRowIndex, maxValue)
	if rowSize <= 0 {
		rowSize = 100 // Fallback
	}
	return min(max(c.targetSizeBytes/rowSize, 1), maxBlockRows)
}

func decimalWidth(v int64) int {
	if v < 0 {
		v = 0
	}
	return len(strconv.FormatInt(v, 10))
}
