package writer

import (
	"context"
	"io"
	"strconv"

	"datagen/src/rowgen"

	"github.com/docker/go-units"
	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/br/pkg/storage"
)

const (
	csvSeparator = ','
	csvEndLine   = '\n'

	defaultBufferSize = 64 * units.KiB
)

// writeWrapper adapts an ExternalFileWriter to io.Writer so it can sit under a compressor.
type writeWrapper struct {
	ctx    context.Context
	writer storage.ExternalFileWriter
}

func (w *writeWrapper) Write(p []byte) (int, error) {
	return w.writer.Write(w.ctx, p)
}

// csvEncoder appends records to a byte buffer and hands it to out once it
// grows past limit. Integers are written in plain decimal.
type csvEncoder struct {
	out   io.Writer
	buf   []byte
	limit int
	tail  []byte
}

func newCSVEncoder(out io.Writer, limit int) *csvEncoder {
	if limit <= 0 {
		limit = defaultBufferSize
	}
	return &csvEncoder{
		out:   out,
		buf:   make([]byte, 0, limit+limit/4),
		limit: limit,
	}
}

func (e *csvEncoder) WriteHeader(fields []string) error {
	for i, f := range fields {
		if i > 0 {
			e.buf = append(e.buf, csvSeparator)
		}
		e.buf = append(e.buf, f...)
	}
	e.buf = append(e.buf, csvEndLine)
	return e.maybeFlush()
}

// WriteBlock encodes every row of b. Uniform blocks encode the shared values once.
func (e *csvEncoder) WriteBlock(b *rowgen.Block) error {
	if b.Uniform {
		e.tail = appendValues(e.tail[:0], b.RowValues(0))
		e.tail = append(e.tail, csvEndLine)
		for i := range b.Rows {
			e.buf = strconv.AppendInt(e.buf, b.Start+int64(i), 10)
			e.buf = append(e.buf, e.tail...)
			if err := e.maybeFlush(); err != nil {
				return err
			}
		}
		return nil
	}

	for i := range b.Rows {
		e.buf = strconv.AppendInt(e.buf, b.Start+int64(i), 10)
		e.buf = appendValues(e.buf, b.RowValues(i))
		e.buf = append(e.buf, csvEndLine)
		if err := e.maybeFlush(); err != nil {
			return err
		}
	}
	return nil
}

func appendValues(buf []byte, values []int64) []byte {
	for _, v := range values {
		buf = append(buf, csvSeparator)
		buf = strconv.AppendInt(buf, v, 10)
	}
	return buf
}

func (e *csvEncoder) maybeFlush() error {
	if len(e.buf) < e.limit {
		return nil
	}
	return e.Flush()
}

// Flush hands all buffered text to the underlying writer.
func (e *csvEncoder) Flush() error {
	if len(e.buf) == 0 {
		return nil
	}
	_, err := e.out.Write(e.buf)
	e.buf = e.buf[:0]
	return errors.Trace(err)
}
