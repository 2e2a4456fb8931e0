// Package starfix implements the starfix command.
package starfix

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/albertocavalcante/starfix/internal/cache"
	"github.com/albertocavalcante/starfix/internal/cli"
	"github.com/albertocavalcante/starfix/internal/config"
	"github.com/albertocavalcante/starfix/internal/fixture"
	"github.com/albertocavalcante/starfix/internal/runner"
	"github.com/albertocavalcante/starfix/internal/starlark/loader"
	"github.com/albertocavalcante/starfix/internal/version"
)

const name = "starfix"

// Run executes starfix with the given arguments and returns the exit code.
func Run(args []string) int {
	return RunWithIO(context.Background(), args, os.Stdin, os.Stdout, os.Stderr)
}

// flags holds the parsed command line.
type flags struct {
	json, junit   bool
	verbose       bool
	keyword       string
	markers       string
	failFast      bool
	parallel      string
	lastFailed    bool
	watch         bool
	configPath    string
	noColor       bool
	version       bool
	paths         []string
	markersPassed bool
}

// RunWithIO allows custom IO for embedding and testing.
func RunWithIO(ctx context.Context, args []string, _ io.Reader, stdout, stderr io.Writer) int {
	f, code, ok := parseFlags(args, stderr)
	if !ok {
		return code
	}
	if f.version {
		cli.Writef(stdout, "%s %s\n", name, version.String())
		return cli.ExitOK
	}

	cfg, cfgPath, err := loadConfig(f.configPath)
	if err != nil {
		cli.Errorf(stderr, name, "%v", err)
		return cli.ExitError
	}

	verbose := f.verbose || cfg.Run.Verbose
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	if cfgPath != "" {
		logger.Debug("using config", "path", cfgPath)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	// Output printed outside of a test case, such as module teardown,
	// goes to the run log.
	ctx = fixture.WithOutput(ctx, stderr)

	files, names, err := runner.ExpandPaths(f.paths, runner.DiscoverOptions{
		Patterns: cfg.Run.Patterns,
		Exclude:  cfg.Run.Exclude,
	})
	if err != nil {
		cli.Errorf(stderr, name, "%v", err)
		return cli.ExitError
	}
	if len(files) == 0 {
		cli.Writeln(stderr, "starfix: no test files found")
		return cli.ExitOK
	}

	markers := cfg.Run.Markers
	if f.markersPassed {
		markers = f.markers
	}
	parallel := cfg.Run.Parallel
	if f.parallel != "" {
		parallel = parseParallelism(f.parallel)
	}

	s := &session{
		opts: runner.Options{
			Filter:       f.keyword,
			MarkerFilter: markers,
			TestNames:    names,
			FailFast:     f.failFast || cfg.Run.FailFast,
			Parallel:     parallel,
			Logger:       logger,
		},
		lastFailed: f.lastFailed,
		store:      cache.New(cfg.Run.CacheDir),
		reporter:   newReporter(f, verbose),
		logger:     logger,
		stdout:     stdout,
		stderr:     stderr,
	}

	if f.watch {
		return s.watch(ctx, files, cfg.Run.Debounce.Duration)
	}
	return s.run(ctx, files)
}

func parseFlags(args []string, stderr io.Writer) (f flags, code int, ok bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&f.json, "json", false, "output results as JSON")
	fs.BoolVar(&f.junit, "junit", false, "output results as JUnit XML")
	fs.BoolVar(&f.verbose, "v", false, "verbose output: durations, captured output and debug logs")
	fs.StringVar(&f.keyword, "k", "", "run tests whose name contains the pattern (supports 'not' prefix)")
	fs.StringVar(&f.markers, "m", "", "run tests carrying the marker (supports 'not' prefix)")
	fs.BoolVar(&f.failFast, "bail", false, "stop on first test failure")
	fs.BoolVar(&f.failFast, "x", false, "stop on first test failure (short for -bail)")
	fs.StringVar(&f.parallel, "j", "", "number of files loaded in parallel (auto, 1-N)")
	fs.BoolVar(&f.lastFailed, "lf", false, "run only the tests that failed last time")
	fs.BoolVar(&f.watch, "watch", false, "watch for file changes and re-run tests")
	fs.BoolVar(&f.watch, "w", false, "watch mode (short for -watch)")
	fs.StringVar(&f.configPath, "config", "", "config file path (default: discover starfix.toml)")
	fs.BoolVar(&f.noColor, "no-color", false, "disable colored output")
	fs.BoolVar(&f.version, "version", false, "print version and exit")
	fs.Usage = func() { usage(fs, stderr) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return f, cli.ExitOK, false
		}
		return f, cli.ExitError, false
	}
	if f.json && f.junit {
		cli.Errorf(stderr, name, "-json and -junit are mutually exclusive")
		return f, cli.ExitError, false
	}
	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == "m" {
			f.markersPassed = true
		}
	})

	f.paths = fs.Args()
	if len(f.paths) == 0 {
		f.paths = []string{"."}
	}
	return f, cli.ExitOK, true
}

func usage(fs *flag.FlagSet, w io.Writer) {
	cli.Writeln(w, "Usage: starfix [flags] [dir|file|file::test ...]")
	cli.Writeln(w)
	cli.Writeln(w, "Fixture-based test runner for Starlark.")
	cli.Writeln(w)
	cli.Writeln(w, "Test files match: *.test.star, test.*.star, test*.star")
	cli.Writeln(w)
	cli.Writeln(w, "Flags:")
	fs.PrintDefaults()
	cli.Writeln(w)
	cli.Writeln(w, "Examples:")
	cli.Writeln(w, "  starfix                          # Run every test file below .")
	cli.Writeln(w, "  starfix calc.test.star::adds     # Run one test")
	cli.Writeln(w, "  starfix -k 'not slow' tests/     # Exclude tests containing 'slow'")
	cli.Writeln(w, "  starfix -m integration           # Run tests marked integration")
	cli.Writeln(w, "  starfix -lf                      # Re-run last failures")
	cli.Writeln(w, "  starfix -junit tests/ > out.xml  # JUnit output for CI")
	cli.Writeln(w)
	cli.Writeln(w, "Exit status is 0 when all tests pass, 1 when a test fails and 2 when")
	cli.Writeln(w, "a file cannot be loaded or its fixtures are inconsistent.")
}

func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		return config.Discover("")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func newReporter(f flags, verbose bool) runner.Reporter {
	switch {
	case f.json:
		return &runner.JSONReporter{}
	case f.junit:
		return &runner.JUnitReporter{}
	default:
		return runner.NewTextReporter(verbose, f.noColor)
	}
}

// parseParallelism parses the -j flag value. Empty, invalid and
// non-positive values mean one file at a time; "auto" uses every CPU.
func parseParallelism(v string) int {
	if strings.EqualFold(v, "auto") {
		return runtime.NumCPU()
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// session runs test files with fixed options.
type session struct {
	opts       runner.Options
	lastFailed bool
	store      *cache.Store
	reporter   runner.Reporter
	logger     *slog.Logger
	stdout     io.Writer
	stderr     io.Writer
}

// run collects and executes files once, returning the exit code.
func (s *session) run(ctx context.Context, files []string) int {
	opts := s.opts
	if s.lastFailed {
		only, err := s.store.LastFailed()
		switch {
		case err != nil:
			s.logger.Warn("ignoring last-failed cache", "err", err)
		case len(only) == 0:
			s.logger.Info("no previously failed tests; running all")
		default:
			opts.Only = only
		}
	}
	opts.OnFile = func(fr *runner.FileResult) {
		s.reporter.ReportFile(s.stdout, fr)
	}

	r := runner.New(loader.New(loader.Options{}), opts)
	regs, err := r.Collect(ctx, files)
	if err != nil {
		cli.Errorf(s.stderr, name, "%v", err)
		return cli.ExitError
	}
	result := r.Execute(ctx, regs)
	s.reporter.ReportSummary(s.stdout, result)
	s.record(result)

	if result.HasFailures() {
		return cli.ExitFailed
	}
	return cli.ExitOK
}

// record updates the last-failed cache. Failures to write it are logged.
func (s *session) record(result *runner.RunResult) {
	var failed, passed []string
	for _, fr := range result.Files {
		for _, t := range fr.Tests {
			if t.Passed {
				passed = append(passed, t.ID())
			} else {
				failed = append(failed, t.ID())
			}
		}
	}
	// An ID with one failing case stays failed even if other cases passed.
	if err := s.store.Update(failed, withoutAny(passed, failed)); err != nil {
		s.logger.Warn("could not update last-failed cache", "err", err)
	}
}

func withoutAny(ids, drop []string) []string {
	skip := make(map[string]bool, len(drop))
	for _, id := range drop {
		skip[id] = true
	}
	var out []string
	for _, id := range ids {
		if !skip[id] {
			out = append(out, id)
		}
	}
	return out
}

// watch runs files, then re-runs the affected ones on every change until
// ctx is done.
func (s *session) watch(ctx context.Context, files []string, debounce time.Duration) int {
	w, err := runner.NewWatcher(files)
	if err != nil {
		cli.Errorf(s.stderr, name, "%v", err)
		return cli.ExitError
	}
	defer func() { _ = w.Close() }()
	if debounce > 0 {
		w.Debounce = debounce
	}

	byAbs := make(map[string]string, len(files))
	for _, f := range files {
		abs, _ := filepath.Abs(f)
		byAbs[abs] = f
	}

	cli.Writef(s.stdout, "Watching %d test file(s). Press Ctrl+C to stop.\n\n", len(files))
	s.run(ctx, files)

	err = w.Run(ctx, func(c runner.Change) {
		cli.Writef(s.stdout, "\nFile changed: %s\n\n", filepath.Base(c.File))
		var affected []string
		for _, abs := range c.Affected {
			if f, ok := byAbs[abs]; ok {
				affected = append(affected, f)
			}
		}
		s.run(ctx, affected)
	})
	if err != nil {
		cli.Errorf(s.stderr, name, "%v", err)
		return cli.ExitError
	}
	cli.Writeln(s.stdout, "\nStopping watch mode.")
	return cli.ExitOK
}
