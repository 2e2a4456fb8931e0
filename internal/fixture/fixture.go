// Package fixture implements the fixture graph and lifecycle engine.
//
// A Registry collects the tests and fixtures declared by one test file.
// Link resolves each fixture's declared dependencies into references and
// validates the graph: no unknown names, no self or mutual references, and
// no fixture depending on a narrower-scoped one. A Lifecycle then activates
// fixtures lazily, once per scope activation, and tears them down in
// reverse activation order.
package fixture

import (
	"context"
	"fmt"
	"strings"
)

// Values maps fixture names to their instantiated values.
type Values map[string]any

// Teardown releases whatever a Setup acquired.
type Teardown func(ctx context.Context) error

// Setup produces a fixture value from the values of its dependencies.
// It may return a Teardown to run when the fixture is deactivated.
type Setup func(ctx context.Context, deps Values) (any, Teardown, error)

// Body is a test function. It receives the values of the test's fixtures
// followed by the positional arguments of the current case.
type Body func(ctx context.Context, fixtures Values, args ...any) error

// Fixture is a named unit of setup and teardown logic.
type Fixture struct {
	// Name is the fixture name, unique within a registry.
	Name string

	// Setup produces the fixture value.
	Setup Setup

	// HasTeardown declares that Setup is expected to return a Teardown.
	// A nil Teardown from such a fixture is reported as an advisory.
	HasTeardown bool

	// Scope determines how long the value is kept.
	Scope Scope

	// Autouse is recorded but not consulted by the lifecycle.
	Autouse bool

	// Params lists the names of the fixtures this one depends on.
	Params []string

	// Refs holds the resolved Params, in declaration order. Populated by Link.
	Refs []*Fixture

	active   bool
	value    any
	teardown Teardown
}

// Active reports whether the fixture currently holds a value.
func (f *Fixture) Active() bool {
	return f.active
}

// Value returns the instantiated value, or nil when inactive.
func (f *Fixture) Value() any {
	return f.value
}

// Marker is a name/value annotation on a test.
type Marker struct {
	Name  string
	Value any
}

// Case is one parameter tuple of a parameterized test.
type Case struct {
	// Args are the positional arguments passed to the body.
	Args []any

	// Label is a display form of Args. When empty, String formats Args.
	Label string
}

// String returns the case label.
func (c Case) String() string {
	if c.Label != "" {
		return c.Label
	}
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = fmt.Sprint(a)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Test is a declared test.
type Test struct {
	// Name is the test name, unique within a registry.
	Name string

	// Body is the test function.
	Body Body

	// Markers are the annotations applied to the test, in application order.
	Markers []Marker

	// Params lists the fixture names the test depends on.
	Params []string

	// Fixtures holds the resolved Params. Populated by ResolveTest.
	Fixtures []*Fixture

	// Cases are the parameter tuples. Nil means the test runs once with no arguments.
	Cases []Case
}

// HasMarker reports whether a marker with the given name was applied.
func (t *Test) HasMarker(name string) bool {
	for _, m := range t.Markers {
		if m.Name == name {
			return true
		}
	}
	return false
}

// Parameterized reports whether the test has explicit cases.
func (t *Test) Parameterized() bool {
	return t.Cases != nil
}
