package generator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"datagen/src/config"
	"datagen/src/ddl"
	"datagen/src/rowgen"
	"datagen/src/util"
	"datagen/src/writer"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/jonboulle/clockwork"
	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/br/pkg/storage"
	"golang.org/x/sync/errgroup"
)

// FileTask is the unit of work producing one output file.
type FileTask struct {
	FileIndex int
	Rows      int
	Cols      int
}

// Summary describes a finished run. Files, Rows and Bytes count committed
// files only.
type Summary struct {
	Start   time.Time
	End     time.Time
	Elapsed time.Duration
	Files   int64
	Rows    int64
	Bytes   int64
	DDL     []string
}

// Options carries the collaborators of an Orchestrator. Zero values pick
// defaults: the real clock, the default logger, no progress bar and no summary.
type Options struct {
	// Store overrides the storage opened from the config. The orchestrator
	// does not close a store it did not open.
	Store       storage.ExternalStorage
	Clock       clockwork.Clock
	Logger      *slog.Logger
	ProgressOut io.Writer
	SummaryOut  io.Writer
}

// Orchestrator generates every file of a run.
type Orchestrator struct {
	cfg         *config.Config
	store       storage.ExternalStorage
	ownStore    bool
	prefix      string
	policy      rowgen.Policy
	blockRows   int
	clock       clockwork.Clock
	logger      *slog.Logger
	progressOut io.Writer
	summaryOut  io.Writer
}

// NewOrchestrator validates the config and opens its storage.
func NewOrchestrator(ctx context.Context, cfg *config.Config, opts Options) (*Orchestrator, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	policy, ok := rowgen.ParsePolicy(cfg.Common.Policy)
	if !ok {
		return nil, errors.Errorf("unsupported policy: %s", cfg.Common.Policy)
	}

	o := &Orchestrator{
		cfg:         cfg,
		store:       opts.Store,
		policy:      policy,
		clock:       opts.Clock,
		logger:      opts.Logger,
		progressOut: opts.ProgressOut,
		summaryOut:  opts.SummaryOut,
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	_, o.prefix = config.SplitPathBase(cfg.Common.PathBase)

	if o.store == nil {
		store, err := config.GetStore(ctx, cfg)
		if err != nil {
			return nil, errors.Trace(err)
		}
		o.store = store
		o.ownStore = true
	}

	maxValue := int64(rowgen.RandomBound - 1)
	if policy == rowgen.Sequential {
		maxValue = int64(max(cfg.Common.Cols-1, 0))
	}
	maxRowIndex := int64(cfg.Common.Files)*int64(cfg.Common.Rows) - 1
	o.blockRows = util.NewChunkSizeCalculator(cfg.Common.ChunkSizeBytes).
		CalculateChunkRows(cfg.Common.Cols, maxRowIndex, maxValue)
	return o, nil
}

// Close releases the storage if the orchestrator opened it.
func (o *Orchestrator) Close() {
	if o.ownStore {
		o.store.Close()
	}
}

// Tasks lists one FileTask per output file, in file index order.
func (o *Orchestrator) Tasks() []FileTask {
	tasks := make([]FileTask, 0, o.cfg.Common.Files)
	for i := range o.cfg.Common.Files {
		tasks = append(tasks, FileTask{
			FileIndex: i,
			Rows:      o.cfg.Common.Rows,
			Cols:      o.cfg.Common.Cols,
		})
	}
	return tasks
}

// FileName is the storage name of a data file, relative to the storage root.
func (o *Orchestrator) FileName(fileIndex int) string {
	return fmt.Sprintf("%s.%d.%s", o.prefix, fileIndex, o.cfg.Common.FileSuffix())
}

func (o *Orchestrator) synthesizer(task FileTask) *rowgen.Synthesizer {
	return rowgen.NewSynthesizer(o.policy, task.FileIndex, task.Rows, task.Cols,
		rowgen.WithBlockRows(o.blockRows),
		rowgen.WithSeed(o.cfg.Common.Seed),
	)
}

// EmitDDL writes the table and pipeline statements when a table name is configured.
func (o *Orchestrator) EmitDDL(ctx context.Context) ([]string, error) {
	table := o.cfg.Common.Table
	if table == "" {
		return nil, nil
	}
	if o.cfg.Common.CheckTable {
		if err := ddl.CheckTableName(table); err != nil {
			return nil, err
		}
	}
	names, err := ddl.Emit(ctx, o.store, o.prefix, o.cfg.Common.PathBase, table,
		o.cfg.Common.Cols, o.cfg.Common.Compress)
	if err != nil {
		return names, errors.Trace(err)
	}
	o.logger.Info("wrote ddl", "files", names)
	return names, nil
}

func (o *Orchestrator) generateOne(
	ctx context.Context,
	w *writer.DurableWriter,
	progress *util.ProgressLogger,
	committedBytes *atomic.Int64,
	task FileTask,
) error {
	if err := ctx.Err(); err != nil {
		return errors.Trace(err)
	}
	res, err := w.WriteFile(ctx, o.FileName(task.FileIndex), o.synthesizer(task))
	if err != nil {
		return errors.Annotatef(err, "file %d", task.FileIndex)
	}
	committedBytes.Add(res.Bytes)
	progress.UpdateRows(res.Rows)
	progress.UpdateFiles(1)
	return nil
}

// Run emits the DDL, then generates every file through a pool of
// Common.Threads workers. The first failure cancels the remaining tasks;
// files committed before it stay in place.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{Start: o.clock.Now()}
	o.logger.Info("generation started",
		"path", o.cfg.Common.PathBase,
		"files", o.cfg.Common.Files,
		"rows", o.cfg.Common.Rows,
		"cols", o.cfg.Common.Cols,
		"policy", o.policy.String(),
		"gz", o.cfg.Common.Compress,
		"threads", o.cfg.Common.Threads,
		"start", summary.Start.Format(time.RFC3339))

	names, err := o.EmitDDL(ctx)
	summary.DDL = names
	if err != nil {
		return summary, err
	}

	progress := util.NewProgressLogger(o.cfg.Common.Files, "writing", time.Second, o.progressOut)
	defer progress.Close()

	w := writer.NewDurableWriter(o.store, writer.Options{
		Compress:  o.cfg.Common.Compress,
		GzipLevel: o.cfg.Common.GzipLevel,
		Progress:  progress,
		Logger:    o.logger,
	})

	// Bytes of aborted files reach the progress counter but not the summary.
	var committedBytes atomic.Int64
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(o.cfg.Common.Threads)
	for _, task := range o.Tasks() {
		eg.Go(func() error {
			return o.generateOne(egCtx, w, progress, &committedBytes, task)
		})
	}
	err = eg.Wait()

	summary.End = o.clock.Now()
	summary.Elapsed = summary.End.Sub(summary.Start)
	summary.Files, summary.Rows, _ = progress.Snapshot()
	summary.Bytes = committedBytes.Load()

	if err != nil {
		o.logger.Error("generation failed",
			"committed", summary.Files,
			"elapsed_s", summary.Elapsed.Seconds(),
			"error", err)
		o.printFailure(summary, err)
		return summary, errors.Trace(err)
	}

	o.logger.Info("generation finished",
		"end", summary.End.Format(time.RFC3339),
		"elapsed_s", summary.Elapsed.Seconds())
	o.printSummary(summary)
	return summary, nil
}

func (o *Orchestrator) printFailure(s *Summary, err error) {
	if o.summaryOut == nil {
		return
	}
	color.New(color.FgRed, color.Bold).Fprintf(o.summaryOut,
		"Generation failed after %s: %v\n", s.Elapsed, err)
	fmt.Fprintf(o.summaryOut, "  Committed files: %d of %d\n", s.Files, o.cfg.Common.Files)
}

func (o *Orchestrator) printSummary(s *Summary) {
	if o.summaryOut == nil {
		return
	}
	throughput := 0.0
	if s.Elapsed.Seconds() > 0 {
		throughput = float64(s.Bytes) / s.Elapsed.Seconds()
	}

	out := o.summaryOut
	color.New(color.FgGreen, color.Bold).Fprintln(out, "Summary:")
	fmt.Fprintf(out, "  Policy: %s\n", o.policy)
	fmt.Fprintf(out, "  Files: %d\n", s.Files)
	fmt.Fprintf(out, "  Rows/File: %d\n", o.cfg.Common.Rows)
	fmt.Fprintf(out, "  Total Rows: %d\n", s.Rows)
	fmt.Fprintf(out, "  Bytes: %s\n", units.BytesSize(float64(s.Bytes)))
	fmt.Fprintf(out, "  Throughput: %s/s\n", units.BytesSize(throughput))
	fmt.Fprintf(out, "  Start: %s\n", s.Start.Format(time.RFC3339))
	fmt.Fprintf(out, "  End: %s\n", s.End.Format(time.RFC3339))
	fmt.Fprintf(out, "  Elapsed: %.3fs\n", s.Elapsed.Seconds())
	fmt.Fprintf(out, "  Path: %s.*.%s\n", o.cfg.Common.PathBase, o.cfg.Common.FileSuffix())
	for _, name := range s.DDL {
		fmt.Fprintf(out, "  DDL: %s\n", name)
	}
}
