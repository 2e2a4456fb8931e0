package runner

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/albertocavalcante/starfix/internal/fixture"
)

// RunTest executes every case of t and returns one result per case, in
// case order. A test without cases runs once with no arguments.
func (r *Runner) RunTest(ctx context.Context, file string, t *fixture.Test) []TestResult {
	var results []TestResult
	r.runTest(ctx, file, t, func(res TestResult) bool {
		results = append(results, res)
		return true
	})
	return results
}

// runTest runs the cases of t, handing each result to yield until it
// returns false or ctx is done.
func (r *Runner) runTest(ctx context.Context, file string, t *fixture.Test, yield func(TestResult) bool) {
	if !t.Parameterized() {
		yield(r.runCase(ctx, file, t, nil))
		return
	}
	for i := range t.Cases {
		if ctx.Err() != nil {
			return
		}
		if !yield(r.runCase(ctx, file, t, &t.Cases[i])) {
			return
		}
	}
}

// runCase sets up the fixtures of t scope by scope, calls the body and
// tears down function-scoped fixtures whatever the outcome.
func (r *Runner) runCase(ctx context.Context, file string, t *fixture.Test, c *fixture.Case) (res TestResult) {
	start := time.Now()
	var out bytes.Buffer
	ctx = fixture.WithOutput(ctx, &out)

	res = TestResult{
		Name:    t.Name,
		File:    file,
		Case:    c,
		Markers: t.Markers,
	}

	used := fixture.Closure(t.Fixtures)
	defer func() {
		// Teardown must finish even after the run is interrupted.
		r.lifecycle.TeardownScope(context.WithoutCancel(ctx), fixture.ScopeFunction, used)
		res.Duration = time.Since(start)
		res.Output = out.String()
		res.Passed = res.Error == nil
	}()

	for _, scope := range fixture.Scopes {
		if err := r.lifecycle.SetupScope(ctx, scope, t.Fixtures); err != nil {
			res.Error = err
			return res
		}
	}

	values := make(fixture.Values, len(t.Fixtures))
	for _, f := range t.Fixtures {
		values[f.Name] = f.Value()
	}
	var args []any
	if c != nil {
		args = c.Args
	}
	res.Error = callBody(ctx, t.Body, values, args)
	return res
}

func callBody(ctx context.Context, body fixture.Body, values fixture.Values, args []any) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	if body == nil {
		return nil
	}
	return body(ctx, values, args...)
}
