package writer

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"datagen/src/util"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/br/pkg/storage"
)

const tempSuffix = ".tmp"

// Options configures a DurableWriter.
type Options struct {
	Compress   bool
	GzipLevel  int
	BufferSize int
	Progress   *util.ProgressLogger
	Logger     *slog.Logger
}

// DurableWriter writes each file to a private temporary object next to its
// destination and renames it into place once complete. On a local store the
// rename is atomic, so a destination is either absent or complete. Object
// stores implement rename as copy and delete, which only keeps readers from
// seeing an unfinished upload.
type DurableWriter struct {
	store storage.ExternalStorage
	opts  Options
}

func NewDurableWriter(store storage.ExternalStorage, opts Options) *DurableWriter {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	return &DurableWriter{store: store, opts: opts}
}

// TempName returns a fresh temporary object name in the same directory as name.
func TempName(name string) string {
	dir, base := path.Split(name)
	return dir + "." + base + "." + uuid.NewString() + tempSuffix
}

// IsTempName reports whether name was produced by TempName.
func IsTempName(name string) bool {
	base := path.Base(name)
	return strings.HasPrefix(base, ".") && strings.HasSuffix(base, tempSuffix)
}

// WriteFile serializes src and commits it at name. On any error, including
// cancellation of ctx, the temporary object is removed and name is untouched.
func (w *DurableWriter) WriteFile(ctx context.Context, name string, src Source) (Result, error) {
	res := Result{Name: name}
	tmpName := TempName(name)

	fw, err := w.store.Create(ctx, tmpName, &storage.WriterOption{
		Concurrency: 8,
	})
	if err != nil {
		return res, errors.Annotatef(err, "failed to create %s", tmpName)
	}

	committed := false
	defer func() {
		if !committed {
			w.removeTemp(ctx, tmpName)
		}
	}()

	counted := util.WrapWriter(fw, w.opts.Progress)
	rows, err := w.encode(ctx, counted, src)
	if err != nil {
		_ = counted.Close(ctx)
		return res, errors.Annotatef(err, "failed to write %s", name)
	}
	if err := counted.Close(ctx); err != nil {
		return res, errors.Annotatef(err, "failed to close %s", tmpName)
	}
	if err := ctx.Err(); err != nil {
		return res, errors.Trace(err)
	}
	if err := w.store.Rename(ctx, tmpName, name); err != nil {
		return res, errors.Annotatef(err, "failed to commit %s", name)
	}
	committed = true

	res.Rows = rows
	res.Bytes = counted.Written()
	w.opts.Logger.Debug("committed file", "name", name, "rows", rows, "bytes", res.Bytes)
	return res, nil
}

// encode writes the header and every row of src. The text buffer is flushed
// before the compressor is closed so the gzip trailer covers all records.
func (w *DurableWriter) encode(ctx context.Context, out storage.ExternalFileWriter, src Source) (int64, error) {
	var (
		sink io.Writer = &writeWrapper{ctx: ctx, writer: out}
		gz   *gzip.Writer
		err  error
	)
	if w.opts.Compress {
		gz, err = gzip.NewWriterLevel(sink, w.opts.GzipLevel)
		if err != nil {
			return 0, errors.Trace(err)
		}
		sink = gz
	}

	enc := newCSVEncoder(sink, w.opts.BufferSize)
	if err := enc.WriteHeader(src.Header()); err != nil {
		return 0, err
	}

	var rows int64
	for block := range src.Blocks() {
		if err := ctx.Err(); err != nil {
			return rows, errors.Trace(err)
		}
		if err := enc.WriteBlock(block); err != nil {
			return rows, err
		}
		rows += int64(block.Rows)
	}

	if err := enc.Flush(); err != nil {
		return rows, err
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return rows, errors.Trace(err)
		}
	}
	return rows, nil
}

func (w *DurableWriter) removeTemp(ctx context.Context, tmpName string) {
	// The caller's context may already be cancelled; cleanup must still run.
	err := w.store.DeleteFile(context.WithoutCancel(ctx), tmpName)
	if err == nil || os.IsNotExist(errors.Cause(err)) {
		return
	}
	w.opts.Logger.Warn("failed to remove temporary file", "name", tmpName, "error", err)
}
