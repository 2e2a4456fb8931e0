package fixture

import (
	"errors"
	"fmt"
	"strings"
)

// Structural errors. They are raised by Link and ResolveTests before any
// test runs and always abort the run.
var (
	ErrUnresolvedReference = errors.New("unresolved reference")
	ErrSelfReference       = errors.New("self reference")
	ErrMutualReference     = errors.New("mutual reference")
	ErrScopeViolation      = errors.New("scope violation")
)

// Runtime errors. A setup failure fails the current test case; a teardown
// failure is only ever logged.
var (
	ErrFixtureSetup    = errors.New("fixture setup failed")
	ErrFixtureTeardown = errors.New("fixture teardown failed")
)

// GraphError describes an invalid edge in a file's fixture graph.
type GraphError struct {
	// Kind is one of the structural sentinel errors.
	Kind error

	// File is the registry's source file.
	File string

	// Owner is the fixture (or test, when Test is set) declaring the reference.
	Owner string

	// Ref is the referenced name.
	Ref string

	// Test is true when Owner is a test rather than a fixture.
	Test bool

	// OwnerScope and RefScope are set for scope violations.
	OwnerScope Scope
	RefScope   Scope

	// Cycle lists the fixtures along a transitive self reference.
	Cycle []string
}

func (e *GraphError) Error() string {
	kind := "fixture"
	if e.Test {
		kind = "test"
	}

	var msg string
	switch e.Kind {
	case ErrUnresolvedReference:
		msg = fmt.Sprintf("%s %q references unknown fixture %q", kind, e.Owner, e.Ref)
	case ErrSelfReference:
		if len(e.Cycle) > 2 {
			msg = fmt.Sprintf("fixture %q depends on itself through %s", e.Owner, strings.Join(e.Cycle, " -> "))
		} else {
			msg = fmt.Sprintf("fixture %q references itself", e.Owner)
		}
	case ErrMutualReference:
		msg = fmt.Sprintf("fixtures %q and %q reference each other", e.Owner, e.Ref)
	case ErrScopeViolation:
		msg = fmt.Sprintf("fixture %q with scope %s cannot reference fixture %q with narrower scope %s",
			e.Owner, e.OwnerScope, e.Ref, e.RefScope)
	default:
		msg = fmt.Sprintf("%s %q: invalid reference %q", kind, e.Owner, e.Ref)
	}

	if e.File != "" {
		return fmt.Sprintf("%s: %v: %s", e.File, e.Kind, msg)
	}
	return fmt.Sprintf("%v: %s", e.Kind, msg)
}

func (e *GraphError) Unwrap() error {
	return e.Kind
}
