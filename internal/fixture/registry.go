package fixture

// Registry holds the tests and fixtures declared by one file.
// Both collections keep insertion order; re-registering a name replaces
// the earlier definition in place.
type Registry struct {
	// File is the source file the registry was loaded from.
	File string

	tests        []*Test
	testIndex    map[string]int
	fixtures     []*Fixture
	fixtureIndex map[string]int
	linked       bool
}

// NewRegistry creates an empty registry for file.
func NewRegistry(file string) *Registry {
	return &Registry{
		File:         file,
		testIndex:    make(map[string]int),
		fixtureIndex: make(map[string]int),
	}
}

// AddTest registers a test and returns it.
func (r *Registry) AddTest(t *Test) *Test {
	if i, ok := r.testIndex[t.Name]; ok {
		r.tests[i] = t
		return t
	}
	r.testIndex[t.Name] = len(r.tests)
	r.tests = append(r.tests, t)
	return t
}

// AddFixture registers a fixture and returns it.
func (r *Registry) AddFixture(f *Fixture) *Fixture {
	if i, ok := r.fixtureIndex[f.Name]; ok {
		r.fixtures[i] = f
		return f
	}
	r.fixtureIndex[f.Name] = len(r.fixtures)
	r.fixtures = append(r.fixtures, f)
	return f
}

// Mark appends a marker to the named test.
// It returns false, changing nothing, when no such test is registered.
func (r *Registry) Mark(testName string, m Marker) bool {
	t, ok := r.Test(testName)
	if !ok {
		return false
	}
	t.Markers = append(t.Markers, m)
	return true
}

// Parameterize replaces the cases of the named test.
// It returns false when no such test is registered.
func (r *Registry) Parameterize(testName string, cases ...Case) bool {
	t, ok := r.Test(testName)
	if !ok {
		return false
	}
	if cases == nil {
		cases = []Case{}
	}
	t.Cases = cases
	return true
}

// Test returns a test by name.
func (r *Registry) Test(name string) (*Test, bool) {
	i, ok := r.testIndex[name]
	if !ok {
		return nil, false
	}
	return r.tests[i], true
}

// Fixture returns a fixture by name.
func (r *Registry) Fixture(name string) (*Fixture, bool) {
	i, ok := r.fixtureIndex[name]
	if !ok {
		return nil, false
	}
	return r.fixtures[i], true
}

// Tests returns the registered tests in insertion order.
func (r *Registry) Tests() []*Test {
	return append([]*Test(nil), r.tests...)
}

// Fixtures returns the registered fixtures in insertion order.
func (r *Registry) Fixtures() []*Fixture {
	return append([]*Fixture(nil), r.fixtures...)
}

// Len returns the number of registered tests.
func (r *Registry) Len() int {
	return len(r.tests)
}
