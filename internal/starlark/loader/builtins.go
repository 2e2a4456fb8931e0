package loader

import (
	"context"
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/albertocavalcante/starfix/internal/fixture"
)

// fixtureBuiltin implements
// fixture(fn, scope="function", autouse=False, deps=[], name=None, teardown=False) -> fn.
func (f *file) fixtureBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := f.checkLoading(b); err != nil {
		return nil, err
	}

	var (
		fn       starlark.Callable
		scope    string
		autouse  bool
		deps     starlark.Value = starlark.None
		name     string
		teardown bool
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"fn", &fn,
		"scope?", &scope,
		"autouse?", &autouse,
		"deps?", &deps,
		"name?", &name,
		"teardown?", &teardown,
	); err != nil {
		return nil, err
	}

	sc, err := fixture.ParseScope(scope)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	params, err := stringList(b.Name(), "deps", deps)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = fn.Name()
	}

	f.reg.AddFixture(&fixture.Fixture{
		Name:        name,
		Setup:       f.setup(name, fn, teardown),
		HasTeardown: teardown,
		Scope:       sc,
		Autouse:     autouse,
		Params:      params,
	})
	return fn, nil
}

// setup adapts a Starlark fixture function to the fixture.Setup contract.
// With teardown set, fn returns (value, cleanup) and cleanup may be None.
func (f *file) setup(name string, fn starlark.Callable, teardown bool) fixture.Setup {
	return func(ctx context.Context, deps fixture.Values) (any, fixture.Teardown, error) {
		result, err := f.call(ctx, "fixture "+name, fn, callArgs(fn, deps, nil))
		if err != nil {
			return nil, nil, err
		}
		if !teardown {
			return result, nil, nil
		}

		pair, ok := result.(starlark.Tuple)
		if !ok || len(pair) != 2 {
			// Nothing to clean up; the result itself is the value.
			return result, nil, nil
		}
		value, cleanup := pair[0], pair[1]
		if cleanup == starlark.None {
			return value, nil, nil
		}
		cb, ok := cleanup.(starlark.Callable)
		if !ok {
			return nil, nil, fmt.Errorf("fixture %s: teardown must be callable or None, got %s", name, cleanup.Type())
		}
		return value, func(ctx context.Context) error {
			_, err := f.call(ctx, "teardown "+name, cb, nil)
			return err
		}, nil
	}
}

// testBuiltin implements test(name_or_fn, fn=None, deps=[]) -> fn.
func (f *file) testBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := f.checkLoading(b); err != nil {
		return nil, err
	}

	var (
		first starlark.Value
		body  starlark.Value = starlark.None
		deps  starlark.Value = starlark.None
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &first, "fn?", &body, "deps?", &deps); err != nil {
		return nil, err
	}

	var name string
	var fn starlark.Callable
	switch v := first.(type) {
	case starlark.String:
		name = string(v)
		cb, ok := body.(starlark.Callable)
		if !ok {
			return nil, fmt.Errorf("%s: test %q needs a function, got %s", b.Name(), name, body.Type())
		}
		fn = cb
	case starlark.Callable:
		if body != starlark.None {
			return nil, fmt.Errorf("%s: fn given twice", b.Name())
		}
		name, fn = v.Name(), v
	default:
		return nil, fmt.Errorf("%s: want a name or function, got %s", b.Name(), first.Type())
	}

	params, err := stringList(b.Name(), "deps", deps)
	if err != nil {
		return nil, err
	}

	t := &fixture.Test{
		Name:   name,
		Body:   f.body(name, fn),
		Params: params,
	}
	if cases, ok := f.pending[fn]; ok {
		t.Cases = cases
		delete(f.pending, fn)
	}
	f.reg.AddTest(t)
	f.bodies[fn] = name
	return fn, nil
}

// body adapts a Starlark test function to the fixture.Body contract.
func (f *file) body(name string, fn starlark.Callable) fixture.Body {
	return func(ctx context.Context, fixtures fixture.Values, args ...any) error {
		tuple := make(starlark.Tuple, len(args))
		for i, a := range args {
			tuple[i] = toValue(a)
		}
		_, err := f.call(ctx, name, fn, callArgs(fn, fixtures, tuple))
		return err
	}
}

// markBuiltin implements mark(name, value=True) -> apply(fn) -> fn.
func (f *file) markBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var value starlark.Value = starlark.True
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "value?", &value); err != nil {
		return nil, err
	}

	apply := func(_ *starlark.Thread, ab *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := f.checkLoading(ab); err != nil {
			return nil, err
		}
		var fn starlark.Callable
		if err := starlark.UnpackPositionalArgs(ab.Name(), args, kwargs, 1, &fn); err != nil {
			return nil, err
		}
		f.reg.Mark(f.testName(fn), fixture.Marker{Name: name, Value: value})
		return fn, nil
	}
	return starlark.NewBuiltin("mark."+name, apply), nil
}

// parameterizeBuiltin implements parameterize(*cases) -> apply(fn) -> fn.
// A case is a tuple or list of positional arguments; any other value is a
// single argument.
func (f *file) parameterizeBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
	}

	cases := make([]fixture.Case, 0, len(args))
	for _, arg := range args {
		var tuple starlark.Tuple
		switch v := arg.(type) {
		case starlark.Tuple:
			tuple = v
		case *starlark.List:
			tuple = make(starlark.Tuple, v.Len())
			for i := range tuple {
				tuple[i] = v.Index(i)
			}
		default:
			tuple = starlark.Tuple{v}
		}
		values := make([]any, len(tuple))
		for i, v := range tuple {
			values[i] = v
		}
		cases = append(cases, fixture.Case{Args: values, Label: tuple.String()})
	}

	apply := func(_ *starlark.Thread, ab *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := f.checkLoading(ab); err != nil {
			return nil, err
		}
		var fn starlark.Callable
		if err := starlark.UnpackPositionalArgs(ab.Name(), args, kwargs, 1, &fn); err != nil {
			return nil, err
		}
		if name, ok := f.bodies[fn]; ok {
			f.reg.Parameterize(name, cases...)
		} else {
			f.pending[fn] = cases
		}
		return fn, nil
	}
	return starlark.NewBuiltin("parameterize", apply), nil
}

func (f *file) testName(fn starlark.Callable) string {
	if name, ok := f.bodies[fn]; ok {
		return name
	}
	return fn.Name()
}

func (f *file) checkLoading(b *starlark.Builtin) error {
	if f.loaded {
		return fmt.Errorf("%s: can only be called while the test file is loading", b.Name())
	}
	return nil
}

// callArgs prepends the fixture struct when fn needs more required
// positional parameters than there are case arguments, or when deps were
// declared and fn has a positional parameter left over for it.
func callArgs(fn starlark.Callable, values fixture.Values, args starlark.Tuple) starlark.Tuple {
	if sf, ok := fn.(*starlark.Function); ok && !sf.HasVarargs() {
		positional := sf.NumParams() - sf.NumKwonlyParams()
		if sf.HasKwargs() {
			positional--
		}
		required := 0
		for i := 0; i < positional; i++ {
			if sf.ParamDefault(i) == nil {
				required++
			}
		}
		if required <= len(args) && (len(values) == 0 || positional <= len(args)) {
			return args
		}
	}
	return append(starlark.Tuple{valuesStruct(values)}, args...)
}

func valuesStruct(values fixture.Values) *starlarkstruct.Struct {
	dict := make(starlark.StringDict, len(values))
	for k, v := range values {
		dict[k] = toValue(v)
	}
	return starlarkstruct.FromStringDict(starlarkstruct.Default, dict)
}

// toValue converts a fixture value to Starlark. Values produced by Starlark
// fixtures pass through unchanged.
func toValue(v any) starlark.Value {
	switch v := v.(type) {
	case nil:
		return starlark.None
	case starlark.Value:
		return v
	case bool:
		return starlark.Bool(v)
	case int:
		return starlark.MakeInt(v)
	case int64:
		return starlark.MakeInt64(v)
	case float64:
		return starlark.Float(v)
	case string:
		return starlark.String(v)
	case []string:
		list := make([]starlark.Value, len(v))
		for i, s := range v {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list)
	default:
		return starlark.String(fmt.Sprint(v))
	}
}

// stringList converts a list or tuple of names. None yields nil.
func stringList(fn, param string, v starlark.Value) ([]string, error) {
	if v == starlark.None {
		return nil, nil
	}
	list, ok := v.(starlark.Indexable)
	if !ok {
		return nil, fmt.Errorf("%s: %s must be a list of strings, got %s", fn, param, v.Type())
	}
	out := make([]string, list.Len())
	for i := range out {
		s, ok := starlark.AsString(list.Index(i))
		if !ok {
			return nil, fmt.Errorf("%s: %s[%d] must be a string, got %s", fn, param, i, list.Index(i).Type())
		}
		out[i] = s
	}
	return out, nil
}
