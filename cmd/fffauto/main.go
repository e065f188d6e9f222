package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/jward/fffauto"
	"github.com/jward/fffauto/internal/compiledb"
	"github.com/jward/fffauto/internal/config"
	"github.com/jward/fffauto/internal/merge"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// options holds the parsed command line.
type options struct {
	configPath      string
	dryRun          bool
	exclude         []string
	excludePatterns []string
	noCache         bool
	buildPath       string
	verbose         bool
	force           bool
	merge           bool
	singleFile      bool
	regex           string
	fullMatch       bool
	output          string
	hook            string

	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:   "fffauto [FILE] [-- CFLAGS...]",
		Short: "Generate FFF fakes for the C/C++ functions a code base uses",
		Long: `fffauto parses C and C++ sources, collects the functions they call or
declare, and writes FFF fake declarations and definitions for them.

Sources come either from a single FILE compiled with CFLAGS, or from the
compile_commands.json in the build path given with -p. With -p, FILE
restricts generation to the first database entry whose path contains it.

Merging (-m) splices new fakes into the files of an earlier run; the first
run must be made without -m.`,
		Args:          maxOneFile,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := o.applyConfig(cmd); err != nil {
				return err
			}
			o.logger = newLogger(cmd, o.verbose)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if o.logger != nil {
				_ = o.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", "", "config file (default: "+config.DefaultFileName+" when present)")
	f.BoolVar(&o.dryRun, "dry-run", false, "report the fakes without writing files or updating the cache")
	f.StringArrayVar(&o.exclude, "exclude", nil, "skip database entries below this path (repeatable)")
	f.StringArrayVar(&o.excludePatterns, "exclude-pattern", nil, "skip database entries matching this gitignore-style pattern (repeatable)")
	f.BoolVar(&o.noCache, "no-cache", false, "neither use nor update the fake cache")
	f.StringVarP(&o.buildPath, "build-path", "p", "", "build directory containing compile_commands.json")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "debug logging and per-file progress")
	f.BoolVarP(&o.force, "force", "f", false, "overwrite existing output files")
	f.BoolVarP(&o.merge, "merge", "m", false, "merge into existing output files (create them with a run without -m)")
	f.BoolVar(&o.singleFile, "single-file", false, "write a single source file with inline fakes")
	f.StringVarP(&o.regex, "regex", "r", "", "only fake functions whose name matches this regular expression")
	f.BoolVar(&o.fullMatch, "full-match", false, "the regular expression must match the whole name")
	f.StringVarP(&o.output, "output", "o", config.DefaultOutput, "output file name without extension")
	f.StringVar(&o.hook, "hook", "", "Risor script run over every fake, or builtin:<name> for an embedded one")
	cmd.MarkFlagsMutuallyExclusive("force", "merge")

	return cmd
}

// applyConfig fills every flag the user did not set from the config file.
func (o *options) applyConfig(cmd *cobra.Command) error {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.Read(o.configPath)
	} else {
		cfg, err = config.Load(config.DefaultFileName)
	}
	if err != nil {
		return err
	}

	f := cmd.Flags()
	set := func(name string, apply func()) {
		if !f.Changed(name) {
			apply()
		}
	}
	set("output", func() { o.output = cfg.Output })
	set("build-path", func() { o.buildPath = cfg.BuildPath })
	set("exclude", func() { o.exclude = cfg.Exclude })
	set("exclude-pattern", func() { o.excludePatterns = cfg.ExcludePatterns })
	set("regex", func() { o.regex = cfg.Pattern })
	set("full-match", func() { o.fullMatch = cfg.FullMatch })
	set("single-file", func() { o.singleFile = cfg.SingleFile })
	set("no-cache", func() { o.noCache = cfg.NoCache })
	set("hook", func() { o.hook = cfg.Hook })
	set("verbose", func() { o.verbose = cfg.Verbose })
	return nil
}

// newLogger builds a console logger writing to the command's stderr.
// Levels are coloured when stderr is a terminal.
func newLogger(cmd *cobra.Command, verbose bool) *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.CallerKey = ""
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if isTerminal(cmd.ErrOrStderr()) {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(cmd.ErrOrStderr()), level)
	return zap.New(core)
}

func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (o *options) run(cmd *cobra.Command, args []string) error {
	file, cflags := splitArgs(cmd, args)
	if file == "" && o.buildPath == "" {
		return errors.New("not enough arguments: need FILE or --build-path")
	}

	units, err := o.units(file, cflags)
	if err != nil {
		return err
	}

	layout := fffauto.Paired
	if o.singleFile {
		layout = fffauto.SingleFile
	}
	engineOpts := []fffauto.Option{
		fffauto.WithPattern(o.regex),
		fffauto.WithFullMatch(o.fullMatch),
		fffauto.WithLayout(layout),
		fffauto.WithLogger(o.logger),
	}
	if o.hook != "" {
		engineOpts = append(engineOpts, fffauto.WithHook(o.hook))
	}
	if o.verbose {
		out := cmd.ErrOrStderr()
		engineOpts = append(engineOpts, fffauto.WithProgress(func(unit string, matches int) {
			fmt.Fprintf(out, "%s...%d\n", unit, matches)
		}))
	}
	engine, err := fffauto.New(engineOpts...)
	if err != nil {
		return err
	}

	out := fffauto.Output{
		Base:    o.output,
		Force:   o.force,
		Merge:   o.merge,
		DryRun:  o.dryRun,
		NoCache: o.noCache,
	}
	if out.DryRun {
		o.logger.Info("dry run, nothing will be written")
	} else {
		o.logger.Info("output files", zap.Strings("paths", outputPaths(out, layout)))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := engine.Generate(ctx, units, out)
	if errors.Is(err, merge.ErrMergeTargetMissing) {
		return fmt.Errorf("%w; run without --merge to create the output files first", err)
	}
	if err != nil {
		return err
	}
	if out.DryRun {
		for _, r := range res.Fakes.Records() {
			fmt.Fprintln(cmd.OutOrStdout(), r.Name)
		}
	}
	for _, path := range res.Written {
		o.logger.Debug("written", zap.String("path", path))
	}
	return nil
}

// units builds the compile units to parse, from the build database when a
// build path is set and from FILE otherwise.
func (o *options) units(file string, cflags []string) ([]fffauto.CompileUnit, error) {
	if o.buildPath != "" {
		if len(cflags) > 0 {
			o.logger.Warn("compiler flags are ignored with --build-path, the database flags are used")
		}
		o.logger.Debug("loading compilation database", zap.String("path", compiledb.DatabasePath(o.buildPath)))
		return fffauto.LoadCompileDatabase(o.buildPath, fffauto.CompileFilter{
			File:            file,
			Exclude:         o.exclude,
			ExcludePatterns: o.excludePatterns,
		})
	}

	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", file, err)
	}
	return []fffauto.CompileUnit{{File: abs, Arguments: cflags, Directory: filepath.Dir(abs)}}, nil
}

// maxOneFile accepts at most one positional argument before "--".
func maxOneFile(cmd *cobra.Command, args []string) error {
	n := cmd.ArgsLenAtDash()
	if n < 0 {
		n = len(args)
	}
	if n > 1 {
		return fmt.Errorf("accepts at most one FILE, received %d", n)
	}
	return nil
}

// splitArgs separates the optional FILE from the compiler flags given
// after "--".
func splitArgs(cmd *cobra.Command, args []string) (file string, cflags []string) {
	dash := cmd.ArgsLenAtDash()
	if dash < 0 {
		dash = len(args)
	}
	if dash > 0 {
		file = args[0]
	}
	return file, args[dash:]
}

func outputPaths(out fffauto.Output, layout fffauto.Layout) []string {
	if layout == fffauto.SingleFile {
		return []string{out.SourcePath()}
	}
	return []string{out.SourcePath(), out.HeaderPath()}
}
