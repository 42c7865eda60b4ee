package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"datagen/src/config"
	"datagen/src/ddl"
	"datagen/src/generator"
	"datagen/src/writer"

	"github.com/docker/go-units"
	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/br/pkg/storage"
	"golang.org/x/sync/errgroup"
)

type artifactKind int

const (
	kindData artifactKind = iota
	kindDDL
	kindTemp
)

func (k artifactKind) String() string {
	switch k {
	case kindData:
		return "data"
	case kindDDL:
		return "ddl"
	default:
		return "temp"
	}
}

type artifact struct {
	name string
	size int64
	kind artifactKind
}

// classify reports whether name is an output of a run with the given file
// prefix: a data file, one of the DDL files or a leftover temporary object.
func classify(prefix, name string) (artifactKind, bool) {
	base := path.Base(name)
	if writer.IsTempName(base) {
		return kindTemp, strings.HasPrefix(base, "."+prefix+".")
	}
	rest, ok := strings.CutPrefix(base, prefix+".")
	if !ok {
		return 0, false
	}
	if isDDLSuffix(rest) {
		return kindDDL, true
	}
	// Local WriteFile stages DDL files as {name}.tmp.{uuid}.
	if stem, _, ok := strings.Cut(rest, ".tmp."); ok && isDDLSuffix(stem) {
		return kindTemp, true
	}
	index, ext, ok := strings.Cut(rest, ".")
	if !ok || (ext != "csv" && ext != "csv.gz") {
		return 0, false
	}
	if _, err := strconv.ParseUint(index, 10, 64); err != nil {
		return 0, false
	}
	return kindData, true
}

func isDDLSuffix(s string) bool {
	return s == ddl.TableFileSuffix || s == ddl.PipeFileSuffix
}

func listArtifacts(ctx context.Context, store storage.ExternalStorage, prefix string) ([]artifact, error) {
	var found []artifact
	err := store.WalkDir(ctx, &storage.WalkOption{SkipSubDir: true}, func(name string, size int64) error {
		if kind, ok := classify(prefix, name); ok {
			found = append(found, artifact{name: name, size: size, kind: kind})
		}
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].name < found[j].name })
	return found, nil
}

// GenerateFiles writes the DDL and data files described by cfg.
func GenerateFiles(ctx context.Context, cfg *config.Config, opts generator.Options) (*generator.Summary, error) {
	gen, err := generator.NewOrchestrator(ctx, cfg, opts)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer gen.Close()

	return gen.Run(ctx)
}

// ShowFiles prints every artifact of the path base with its size.
func ShowFiles(ctx context.Context, cfg *config.Config, out io.Writer) error {
	store, err := config.GetStore(ctx, cfg)
	if err != nil {
		return errors.Trace(err)
	}
	//nolint: errcheck
	defer store.Close()

	_, prefix := config.SplitPathBase(cfg.Common.PathBase)
	found, err := listArtifacts(ctx, store, prefix)
	if err != nil {
		return err
	}

	var total int64
	for _, a := range found {
		fmt.Fprintf(out, "Name: %s, Kind: %s, Size: %d, Size (MiB): %f\n",
			a.name, a.kind, a.size, float64(a.size)/units.MiB)
		total += a.size
	}
	fmt.Fprintf(out, "%d files, %s\n", len(found), units.BytesSize(float64(total)))
	return nil
}

// CleanFiles deletes every artifact of the path base, including temporary
// objects left behind by an interrupted run, and returns how many it removed.
func CleanFiles(ctx context.Context, cfg *config.Config, logger *slog.Logger) (int, error) {
	store, err := config.GetStore(ctx, cfg)
	if err != nil {
		return 0, errors.Trace(err)
	}
	//nolint: errcheck
	defer store.Close()

	_, prefix := config.SplitPathBase(cfg.Common.PathBase)
	found, err := listArtifacts(ctx, store, prefix)
	if err != nil {
		return 0, err
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.NumCPU())
	for _, a := range found {
		eg.Go(func() error {
			if err := store.DeleteFile(egCtx, a.name); err != nil {
				return errors.Annotatef(err, "failed to delete %s", a.name)
			}
			logger.Debug("deleted file", "name", a.name, "kind", a.kind.String())
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}
	logger.Info("cleaned files", "path", cfg.Common.PathBase, "count", len(found))
	return len(found), nil
}
