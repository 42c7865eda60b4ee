package main

import (
	"io"

	"datagen/src/config"
	"datagen/src/generator"
	"datagen/src/logutil"

	"github.com/joho/godotenv"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type rootOptions struct {
	configPath string
	envFile    string
	verbose    bool
	noProgress bool

	// flags holds generation flag values; only the ones set on the command
	// line override the config file.
	flags config.CommonConfig
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}
	defaults := config.Default().Common

	rootCmd := &cobra.Command{
		Use:   "datagen <pathBase>",
		Short: "Generate integer CSV files and the SQL to load them",
		Long: `Generate synthetic integer CSV files named {pathBase}.{index}.csv[.gz].

Every file starts with a "row,col0,col1,..." header. The row column holds a
global row index unique across all files; the other columns follow the chosen
policy. With --table, {pathBase}.table.sql and {pathBase}.pipe.sql are written
with the statements that create the table and load the files.

pathBase may be a local path or a storage URI such as s3://bucket/dir/test.`,
		Example: `  datagen -f 4 -c 8 -r 100000 data/test
  datagen -f 2 -r 1000 -z -t events --policy random --seed 42 s3://bucket/load/events`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnv(opts.envFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd.Flags(), args)
			if err != nil {
				return err
			}
			var progressOut io.Writer = stderr
			if opts.noProgress {
				progressOut = nil
			}
			_, err = GenerateFiles(cmd.Context(), cfg, generator.Options{
				Logger:      logutil.New(stderr, opts.verbose),
				ProgressOut: progressOut,
				SummaryOut:  stdout,
			})
			if err != nil {
				return errors.Annotate(err, "failed to generate files")
			}
			return nil
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "TOML config file; flags override its values")
	pf.StringVar(&opts.envFile, "env-file", "", "load environment variables from this file (default .env if present)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	f := rootCmd.Flags()
	f.IntVarP(&opts.flags.Files, "files", "f", defaults.Files, "number of files")
	f.IntVarP(&opts.flags.Cols, "cols", "c", defaults.Cols, "number of value columns per row")
	f.IntVarP(&opts.flags.Rows, "rows", "r", defaults.Rows, "number of rows per file")
	f.BoolVarP(&opts.flags.Compress, "gz", "z", false, "gzip the files")
	f.StringVarP(&opts.flags.Table, "table", "t", "", "write table and pipeline DDL for this table")
	f.StringVar(&opts.flags.Policy, "policy", defaults.Policy, "column values: sequential or random")
	f.Uint64Var(&opts.flags.Seed, "seed", 0, "random policy seed; 0 picks one from the clock")
	f.IntVar(&opts.flags.Threads, "threads", defaults.Threads, "files generated concurrently")
	f.StringVar(&opts.flags.ChunkSize, "chunk-size", "32KiB", "target encoded size of a row block")
	f.IntVar(&opts.flags.GzipLevel, "gzip-level", defaults.GzipLevel, "gzip level, -2 to 9")
	f.BoolVar(&opts.flags.CheckTable, "check-table", false, "reject table names that are not a single SQL identifier")
	f.BoolVar(&opts.noProgress, "no-progress", false, "do not render the progress bar")

	rootCmd.AddCommand(newShowCmd(opts, stdout), newCleanCmd(opts, stderr))
	return rootCmd
}

func newShowCmd(opts *rootOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "show <pathBase>",
		Short: "List the files of a path base with their sizes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(nil, args)
			if err != nil {
				return err
			}
			return errors.Annotate(ShowFiles(cmd.Context(), cfg, stdout), "failed to show files")
		},
	}
}

func newCleanCmd(opts *rootOptions, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "clean <pathBase>",
		Short: "Delete the files of a path base and temporary files left by interrupted runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(nil, args)
			if err != nil {
				return err
			}
			_, err = CleanFiles(cmd.Context(), cfg, logutil.New(stderr, opts.verbose))
			return errors.Annotate(err, "failed to clean files")
		},
	}
}

func loadEnv(envFile string) error {
	if envFile == "" {
		// A missing default .env is fine.
		_ = godotenv.Load()
		return nil
	}
	return errors.Annotatef(godotenv.Load(envFile), "failed to load env file %s", envFile)
}

// load reads the config file, applies the flags set on the command line and
// the positional path base, then normalizes and validates the result.
func (o *rootOptions) load(fs *pflag.FlagSet, args []string) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if fs != nil {
		applyFlags(fs, &cfg.Common, &o.flags)
	}
	if len(args) > 0 {
		cfg.Common.PathBase = args[0]
	}
	if err := config.Normalize(cfg); err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(fs *pflag.FlagSet, dst, src *config.CommonConfig) {
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("files", func() { dst.Files = src.Files })
	set("cols", func() { dst.Cols = src.Cols })
	set("rows", func() { dst.Rows = src.Rows })
	set("gz", func() { dst.Compress = src.Compress })
	set("table", func() { dst.Table = src.Table })
	set("policy", func() { dst.Policy = src.Policy })
	set("seed", func() { dst.Seed = src.Seed })
	set("threads", func() { dst.Threads = src.Threads })
	set("chunk-size", func() { dst.ChunkSize = src.ChunkSize })
	set("gzip-level", func() { dst.GzipLevel = src.GzipLevel })
	set("check-table", func() { dst.CheckTable = src.CheckTable })
}
