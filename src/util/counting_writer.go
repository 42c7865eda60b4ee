package util

import (
	"context"
	"sync/atomic"

	"github.com/pingcap/tidb/br/pkg/storage"
)

// writerWithStats wraps a writer and updates progress for bytes written.
type writerWithStats struct {
	writer   storage.ExternalFileWriter
	progress *ProgressLogger
	written  atomic.Int64
}

// WrapWriter counts the bytes written through w and reports them to progress, which may be nil.
func WrapWriter(w storage.ExternalFileWriter, progress *ProgressLogger) *writerWithStats {
	return &writerWithStats{writer: w, progress: progress}
}

func (cw *writerWithStats) Write(ctx context.Context, p []byte) (int, error) {
	n, err := cw.writer.Write(ctx, p)
	cw.written.Add(int64(n))
	if cw.progress != nil {
		cw.progress.UpdateBytes(int64(n))
	}
	return n, err
}

func (cw *writerWithStats) Close(ctx context.Context) error {
	return cw.writer.Close(ctx)
}

// Written is the number of bytes accepted by the underlying writer so far.
func (cw *writerWithStats) Written() int64 {
	return cw.written.Load()
}
