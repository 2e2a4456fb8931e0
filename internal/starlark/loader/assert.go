package loader

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// NewAssertModule creates the built-in assert module.
//
// Available functions:
//   - assert.eq(a, b, msg=None)
//   - assert.ne(a, b, msg=None)
//   - assert.true(cond, msg=None)
//   - assert.false(cond, msg=None)
//   - assert.contains(container, item, msg=None)
//   - assert.fails(fn, pattern=None)
//   - assert.lt/le/gt/ge(a, b, msg=None)
//   - assert.len(container, n, msg=None)
func NewAssertModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "assert",
		Members: starlark.StringDict{
			"eq":       starlark.NewBuiltin("assert.eq", assertEq),
			"ne":       starlark.NewBuiltin("assert.ne", assertNe),
			"true":     starlark.NewBuiltin("assert.true", assertTruth(true)),
			"false":    starlark.NewBuiltin("assert.false", assertTruth(false)),
			"contains": starlark.NewBuiltin("assert.contains", assertContains),
			"fails":    starlark.NewBuiltin("assert.fails", assertFails),
			"lt":       starlark.NewBuiltin("assert.lt", assertCompare(syntax.LT)),
			"le":       starlark.NewBuiltin("assert.le", assertCompare(syntax.LE)),
			"gt":       starlark.NewBuiltin("assert.gt", assertCompare(syntax.GT)),
			"ge":       starlark.NewBuiltin("assert.ge", assertCompare(syntax.GE)),
			"len":      starlark.NewBuiltin("assert.len", assertLen),
		},
	}
}

// AssertionError is returned by a failed assertion.
type AssertionError struct {
	Message string
}

func (e *AssertionError) Error() string {
	return "assertion failed: " + e.Message
}

func failf(msg starlark.Value, format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if s, ok := starlark.AsString(msg); ok && s != "" {
		text = s + ": " + text
	}
	return &AssertionError{Message: text}
}

func assertEq(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var got, want starlark.Value
	var msg starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "a", &got, "b", &want, "msg?", &msg); err != nil {
		return nil, err
	}

	eq, err := starlark.Equal(got, want)
	if err != nil {
		return nil, err
	}
	if eq {
		return starlark.None, nil
	}

	gs, gok := got.(starlark.String)
	ws, wok := want.(starlark.String)
	if gok && wok && (strings.Contains(string(gs), "\n") || strings.Contains(string(ws), "\n")) {
		return nil, failf(msg, "strings differ:\n%s", lineDiff(string(ws), string(gs)))
	}
	return nil, failf(msg, "expected %s == %s", got, want)
}

// lineDiff renders a unified diff from want to got.
func lineDiff(want, got string) string {
	text, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(want),
		B:        difflib.SplitLines(got),
		FromFile: "want",
		ToFile:   "got",
		Context:  3,
	})
	return text
}

func assertNe(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var got, other starlark.Value
	var msg starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "a", &got, "b", &other, "msg?", &msg); err != nil {
		return nil, err
	}

	eq, err := starlark.Equal(got, other)
	if err != nil {
		return nil, err
	}
	if eq {
		return nil, failf(msg, "expected %s != %s", got, other)
	}
	return starlark.None, nil
}

func assertTruth(want bool) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var cond starlark.Value
		var msg starlark.Value = starlark.None
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "cond", &cond, "msg?", &msg); err != nil {
			return nil, err
		}
		if bool(cond.Truth()) != want {
			return nil, failf(msg, "expected %s to be %t", cond, want)
		}
		return starlark.None, nil
	}
}

func assertContains(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var container, item starlark.Value
	var msg starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "container", &container, "item", &item, "msg?", &msg); err != nil {
		return nil, err
	}

	found, err := starlark.Binary(syntax.IN, item, container)
	if err != nil {
		return nil, err
	}
	if !found.Truth() {
		return nil, failf(msg, "expected %s to contain %s", container, item)
	}
	return starlark.None, nil
}

func assertFails(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fn starlark.Callable
	var pattern string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "fn", &fn, "pattern?", &pattern); err != nil {
		return nil, err
	}

	_, err := starlark.Call(thread, fn, nil, nil)
	if err == nil {
		return nil, failf(starlark.None, "expected %s to fail", fn.Name())
	}
	if pattern == "" {
		return starlark.None, nil
	}

	re, rerr := regexp.Compile(pattern)
	if rerr != nil {
		return nil, fmt.Errorf("%s: invalid pattern: %w", b.Name(), rerr)
	}
	if !re.MatchString(err.Error()) {
		return nil, failf(starlark.None, "error %q does not match %q", err.Error(), pattern)
	}
	return starlark.None, nil
}

func assertCompare(op syntax.Token) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var x, y starlark.Value
		var msg starlark.Value = starlark.None
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "a", &x, "b", &y, "msg?", &msg); err != nil {
			return nil, err
		}
		ok, err := starlark.Compare(op, x, y)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, failf(msg, "expected %s %s %s", x, op, y)
		}
		return starlark.None, nil
	}
}

func assertLen(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var container starlark.Value
	var n int
	var msg starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "container", &container, "n", &n, "msg?", &msg); err != nil {
		return nil, err
	}

	got := starlark.Len(container)
	if got < 0 {
		return nil, fmt.Errorf("%s: %s has no length", b.Name(), container.Type())
	}
	if got != n {
		return nil, failf(msg, "expected length %d, got %d", n, got)
	}
	return starlark.None, nil
}
