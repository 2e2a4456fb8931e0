package fixture

// Link resolves the declared params of every fixture into Refs.
//
// Unknown names, self references and scope violations are checked over the
// whole registry first; direct mutual references are checked pairwise
// afterwards, and longer cycles last. Refs are only populated when the
// whole graph is valid and are never rebuilt: calling Link again on a
// linked registry is a no-op.
func (r *Registry) Link() error {
	if r.linked {
		return nil
	}

	resolved := make([][]*Fixture, len(r.fixtures))
	for i, f := range r.fixtures {
		refs := make([]*Fixture, 0, len(f.Params))
		for _, param := range f.Params {
			ref, ok := r.Fixture(param)
			if !ok {
				return &GraphError{Kind: ErrUnresolvedReference, File: r.File, Owner: f.Name, Ref: param}
			}
			if ref == f {
				return &GraphError{Kind: ErrSelfReference, File: r.File, Owner: f.Name, Ref: param}
			}
			if f.Scope.Wider(ref.Scope) {
				return &GraphError{
					Kind:       ErrScopeViolation,
					File:       r.File,
					Owner:      f.Name,
					Ref:        ref.Name,
					OwnerScope: f.Scope,
					RefScope:   ref.Scope,
				}
			}
			refs = append(refs, ref)
		}
		resolved[i] = refs
	}

	for i, f := range r.fixtures {
		for _, ref := range resolved[i] {
			if declares(ref, f.Name) {
				return &GraphError{Kind: ErrMutualReference, File: r.File, Owner: f.Name, Ref: ref.Name}
			}
		}
	}

	if cycle := findCycle(r.fixtures, resolved); cycle != nil {
		return &GraphError{Kind: ErrSelfReference, File: r.File, Owner: cycle[0], Ref: cycle[0], Cycle: cycle}
	}

	for i, f := range r.fixtures {
		f.Refs = append(f.Refs, resolved[i]...)
	}
	r.linked = true
	return nil
}

// Linked reports whether Link has succeeded on this registry.
func (r *Registry) Linked() bool {
	return r.linked
}

// ResolveTest maps the test's declared params to fixtures, replacing t.Fixtures.
// Tests are not scope checked.
func (r *Registry) ResolveTest(t *Test) error {
	fixtures := make([]*Fixture, 0, len(t.Params))
	for _, param := range t.Params {
		f, ok := r.Fixture(param)
		if !ok {
			return &GraphError{Kind: ErrUnresolvedReference, File: r.File, Owner: t.Name, Ref: param, Test: true}
		}
		fixtures = append(fixtures, f)
	}
	t.Fixtures = fixtures
	return nil
}

// ResolveTests resolves every registered test, stopping at the first error.
func (r *Registry) ResolveTests() error {
	for _, t := range r.tests {
		if err := r.ResolveTest(t); err != nil {
			return err
		}
	}
	return nil
}

// Closure returns fixtures together with all their transitive references,
// each once, dependencies before dependents.
func Closure(fixtures []*Fixture) []*Fixture {
	seen := make(map[*Fixture]bool)
	var out []*Fixture
	var visit func(f *Fixture)
	visit = func(f *Fixture) {
		if seen[f] {
			return
		}
		seen[f] = true
		for _, ref := range f.Refs {
			visit(ref)
		}
		out = append(out, f)
	}
	for _, f := range fixtures {
		visit(f)
	}
	return out
}

func declares(f *Fixture, name string) bool {
	for _, p := range f.Params {
		if p == name {
			return true
		}
	}
	return false
}

// findCycle returns the fixture names along the first dependency cycle found,
// starting and ending with the same name, or nil.
func findCycle(fixtures []*Fixture, resolved [][]*Fixture) []string {
	edges := make(map[*Fixture][]*Fixture, len(fixtures))
	for i, f := range fixtures {
		edges[f] = resolved[i]
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[*Fixture]int, len(fixtures))
	var stack []*Fixture

	var visit func(f *Fixture) []string
	visit = func(f *Fixture) []string {
		state[f] = visiting
		stack = append(stack, f)
		for _, ref := range edges[f] {
			switch state[ref] {
			case visiting:
				var names []string
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == ref {
						for _, s := range stack[i:] {
							names = append(names, s.Name)
						}
						break
					}
				}
				return append(names, ref.Name)
			case unvisited:
				if cycle := visit(ref); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[f] = done
		return nil
	}

	for _, f := range fixtures {
		if state[f] == unvisited {
			if cycle := visit(f); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
