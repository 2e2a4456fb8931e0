// Package loader evaluates Starlark test files into fixture registries.
//
// A test file declares fixtures and tests through predeclared builtins:
//
//	def network():
//	    conn = open_network()
//	    return conn, conn.close
//
//	fixture(network, scope = "module", teardown = True)
//
//	def sut(fx):
//	    return Protocol(fx.network)
//
//	fixture(sut, deps = ["network"])
//
//	def test_hello(fx):
//	    assert.eq(fx.sut.hello(), "hello")
//
//	test(test_hello, deps = ["sut"])
//
// Dependencies are always named explicitly with deps. A fixture or test
// taking a parameter receives a struct of its dependencies' values as the
// first argument; parameterized tests receive the case values after it.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"

	"github.com/albertocavalcante/starfix/internal/fixture"
)

// ErrLoadCycle is returned when load() statements form a cycle.
var ErrLoadCycle = errors.New("cycle in load graph")

// fileOptions enables the dialect extensions test files commonly need.
var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Options configures the loader.
type Options struct {
	// Predeclared contains additional predeclared values.
	Predeclared starlark.StringDict

	// DisableAssert removes the built-in assert module.
	DisableAssert bool
}

// Loader evaluates test files. It keeps no state between files.
type Loader struct {
	opts Options
}

// New creates a loader.
func New(opts Options) *Loader {
	return &Loader{opts: opts}
}

// LoadFile evaluates src and returns the registry it declared.
// Output printed while loading goes to fixture.Output(ctx).
func (l *Loader) LoadFile(ctx context.Context, filename string, src []byte) (*fixture.Registry, error) {
	f := &file{
		reg:     fixture.NewRegistry(filename),
		dir:     filepath.Dir(filename),
		bodies:  make(map[starlark.Callable]string),
		pending: make(map[starlark.Callable][]fixture.Case),
		modules: make(map[string]*module),
	}
	f.predeclared = l.predeclared(f)

	thread := f.newThread(ctx, filename)
	thread.Load = f.load
	stop := cancelOnDone(ctx, thread)
	defer stop()

	if _, err := starlark.ExecFileOptions(fileOptions, thread, filename, src, f.predeclared); err != nil {
		return nil, fmt.Errorf("executing %s: %w", filename, err)
	}
	f.loaded = true
	return f.reg, nil
}

// LoadPath reads and evaluates a test file.
func (l *Loader) LoadPath(ctx context.Context, path string) (*fixture.Registry, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return l.LoadFile(ctx, path, src)
}

func (l *Loader) predeclared(f *file) starlark.StringDict {
	predeclared := make(starlark.StringDict)
	for k, v := range l.opts.Predeclared {
		predeclared[k] = v
	}
	predeclared["fixture"] = starlark.NewBuiltin("fixture", f.fixtureBuiltin)
	predeclared["test"] = starlark.NewBuiltin("test", f.testBuiltin)
	predeclared["mark"] = starlark.NewBuiltin("mark", f.markBuiltin)
	predeclared["parameterize"] = starlark.NewBuiltin("parameterize", f.parameterizeBuiltin)
	predeclared["struct"] = starlark.NewBuiltin("struct", starlarkstruct.Make)
	if !l.opts.DisableAssert {
		predeclared["assert"] = NewAssertModule()
	}
	return predeclared
}

// file is the loading state of one test file.
type file struct {
	reg         *fixture.Registry
	dir         string
	predeclared starlark.StringDict

	// bodies maps a registered test body to its test name.
	bodies map[starlark.Callable]string
	// pending holds cases applied to bodies not yet registered.
	pending map[starlark.Callable][]fixture.Case
	// modules caches load()ed files; a nil entry marks a load in progress.
	modules map[string]*module
	loaded  bool
}

type module struct {
	globals starlark.StringDict
	err     error
}

func (f *file) load(thread *starlark.Thread, name string) (starlark.StringDict, error) {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(f.dir, name)
	}

	if m, ok := f.modules[path]; ok {
		if m == nil {
			return nil, fmt.Errorf("%w: %s", ErrLoadCycle, name)
		}
		return m.globals, m.err
	}
	f.modules[path] = nil

	src, err := os.ReadFile(path)
	if err != nil {
		f.modules[path] = &module{err: err}
		return nil, err
	}

	child := &starlark.Thread{Name: path, Load: f.load, Print: thread.Print}
	globals, err := starlark.ExecFileOptions(fileOptions, child, path, src, f.predeclared)
	f.modules[path] = &module{globals: globals, err: err}
	return globals, err
}

func (f *file) newThread(ctx context.Context, name string) *starlark.Thread {
	out := fixture.Output(ctx)
	return &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			_, _ = io.WriteString(out, msg+"\n")
		},
	}
}

// call invokes fn on a fresh thread that is cancelled together with ctx.
func (f *file) call(ctx context.Context, name string, fn starlark.Callable, args starlark.Tuple) (starlark.Value, error) {
	thread := f.newThread(ctx, name)
	stop := cancelOnDone(ctx, thread)
	defer stop()
	return starlark.Call(thread, fn, args, nil)
}

func cancelOnDone(ctx context.Context, thread *starlark.Thread) (stop func()) {
	if ctx.Done() == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(context.Cause(ctx).Error())
		case <-done:
		}
	}()
	return func() { close(done) }
}
