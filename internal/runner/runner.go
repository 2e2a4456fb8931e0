// Package runner collects test files into linked fixture registries and
// executes their tests.
//
// Loading may happen in parallel; execution is strictly sequential so
// fixture values are cached without locking. Each file's module-scoped
// fixtures are torn down when the file completes, and session-scoped
// fixtures when the whole run completes.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/albertocavalcante/starfix/internal/fixture"
)

// ErrFileLoad wraps any failure to load a test file.
var ErrFileLoad = errors.New("loading test file")

// Loader turns a test file into a fixture registry.
type Loader interface {
	LoadPath(ctx context.Context, path string) (*fixture.Registry, error)
}

// Options configures a run.
type Options struct {
	// Filter selects tests whose name contains it. "not x" inverts.
	Filter string

	// MarkerFilter selects tests carrying the marker. "not x" inverts.
	MarkerFilter string

	// TestNames restricts a file to the named tests.
	TestNames map[string][]string

	// Only restricts the run to the given file::name IDs when non-nil.
	Only map[string]bool

	// FailFast stops the run after the first failed case.
	FailFast bool

	// Parallel bounds concurrent file loading. Zero or less loads one
	// file at a time.
	Parallel int

	// Logger receives lifecycle advisories. Nil discards them.
	Logger *slog.Logger

	// OnFile, if set, is called as soon as a file completes.
	OnFile func(*FileResult)
}

// Runner loads and executes test files.
type Runner struct {
	loader    Loader
	opts      Options
	logger    *slog.Logger
	lifecycle *fixture.Lifecycle
}

// New creates a runner.
func New(loader Loader, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		loader:    loader,
		opts:      opts,
		logger:    logger,
		lifecycle: fixture.NewLifecycle(logger),
	}
}

// Collect loads every path and builds its dependency graph.
// Registries are returned in path order. Any load or graph error is
// returned before anything executes.
func (r *Runner) Collect(ctx context.Context, paths []string) ([]*fixture.Registry, error) {
	regs := make([]*fixture.Registry, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.opts.Parallel, 1))
	for i, path := range paths {
		g.Go(func() error {
			reg, err := r.loader.LoadPath(gctx, path)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrFileLoad, err)
			}
			regs[i] = reg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, reg := range regs {
		if err := reg.Link(); err != nil {
			return nil, err
		}
	}
	for _, reg := range regs {
		if err := reg.ResolveTests(); err != nil {
			return nil, err
		}
	}

	r.logger.Debug("collected test files", "files", len(regs))
	return regs, nil
}

// Execute runs the selected tests of every registry in order.
func (r *Runner) Execute(ctx context.Context, regs []*fixture.Registry) *RunResult {
	start := time.Now()
	result := &RunResult{}

	var all []*fixture.Fixture
	for _, reg := range regs {
		all = append(all, reg.Fixtures()...)
		if !r.executeFile(ctx, reg, result) {
			break
		}
	}
	r.lifecycle.TeardownScope(context.WithoutCancel(ctx), fixture.ScopeSession, all)

	result.Duration = time.Since(start)
	return result
}

// Run collects and executes paths.
func (r *Runner) Run(ctx context.Context, paths []string) (*RunResult, error) {
	regs, err := r.Collect(ctx, paths)
	if err != nil {
		return nil, err
	}
	return r.Execute(ctx, regs), nil
}

// executeFile runs one file and reports whether the run should continue.
func (r *Runner) executeFile(ctx context.Context, reg *fixture.Registry, result *RunResult) (cont bool) {
	start := time.Now()
	fr := FileResult{File: reg.File}
	fixtures := reg.Fixtures()

	defer func() {
		r.lifecycle.TeardownScope(context.WithoutCancel(ctx), fixture.ScopeModule, fixtures)
		fr.Duration = time.Since(start)
		result.Files = append(result.Files, fr)
		if r.opts.OnFile != nil {
			r.opts.OnFile(&result.Files[len(result.Files)-1])
		}
	}()

	cont = true
	for _, t := range reg.Tests() {
		if !cont || ctx.Err() != nil {
			return false
		}
		if !r.selected(reg.File, t) {
			continue
		}
		r.runTest(ctx, reg.File, t, func(res TestResult) bool {
			result.record(&fr, res)
			if !res.Passed && r.opts.FailFast {
				cont = false
			}
			return cont
		})
	}
	return cont && ctx.Err() == nil
}
