package fixture

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestRegistryInsertionOrder(t *testing.T) {
	reg := NewRegistry("x.test.star")
	reg.AddTest(&Test{Name: "b"})
	reg.AddTest(&Test{Name: "a"})
	reg.AddTest(&Test{Name: "c"})

	var got []string
	for _, tc := range reg.Tests() {
		got = append(got, tc.Name)
	}
	if diff := cmp.Diff([]string{"b", "a", "c"}, got); diff != "" {
		t.Errorf("Tests() order mismatch (-want +got):\n%s", diff)
	}
	if reg.Len() != 3 {
		t.Errorf("Len() = %d, want 3", reg.Len())
	}
}

func TestRegistryReplaceKeepsPosition(t *testing.T) {
	reg := NewRegistry("x.test.star")
	reg.AddFixture(&Fixture{Name: "a"})
	reg.AddFixture(&Fixture{Name: "b"})
	replacement := reg.AddFixture(&Fixture{Name: "a", Scope: ScopeModule})

	fixtures := reg.Fixtures()
	if len(fixtures) != 2 {
		t.Fatalf("len(Fixtures()) = %d, want 2", len(fixtures))
	}
	if fixtures[0] != replacement {
		t.Error("replaced fixture did not keep its original position")
	}
}

func TestRegistryMark(t *testing.T) {
	reg := NewRegistry("x.test.star")
	reg.AddTest(&Test{Name: "slow_one"})

	if !reg.Mark("slow_one", Marker{Name: "slow", Value: true}) {
		t.Error("Mark() on a registered test returned false")
	}
	if !reg.Mark("slow_one", Marker{Name: "slow", Value: true}) {
		t.Error("Mark() duplicate returned false")
	}
	if !reg.Mark("slow_one", Marker{Name: "integration", Value: "db"}) {
		t.Error("Mark() returned false")
	}
	if reg.Mark("missing", Marker{Name: "slow"}) {
		t.Error("Mark() on an unknown test returned true")
	}

	tc, _ := reg.Test("slow_one")
	want := []Marker{
		{Name: "slow", Value: true},
		{Name: "slow", Value: true},
		{Name: "integration", Value: "db"},
	}
	if diff := cmp.Diff(want, tc.Markers); diff != "" {
		t.Errorf("markers mismatch (-want +got):\n%s", diff)
	}
	if !tc.HasMarker("integration") || tc.HasMarker("fast") {
		t.Error("HasMarker() returned the wrong answer")
	}
}

func TestRegistryParameterize(t *testing.T) {
	reg := NewRegistry("x.test.star")
	reg.AddTest(&Test{Name: "mul"})

	if reg.Parameterize("nope", Case{Args: []any{1}}) {
		t.Error("Parameterize() on an unknown test returned true")
	}

	cases := []Case{{Args: []any{2, 3, 6}}, {Args: []any{4, 4, 16}}}
	if !reg.Parameterize("mul", cases...) {
		t.Fatal("Parameterize() returned false")
	}
	tc, _ := reg.Test("mul")
	if !tc.Parameterized() {
		t.Error("Parameterized() = false")
	}
	if diff := cmp.Diff(cases, tc.Cases, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("cases mismatch (-want +got):\n%s", diff)
	}
}

func TestCaseString(t *testing.T) {
	tests := []struct {
		c    Case
		want string
	}{
		{Case{Args: []any{2, 3, 6}}, "(2, 3, 6)"},
		{Case{Args: nil}, "()"},
		{Case{Args: []any{"a"}, Label: `("a",)`}, `("a",)`},
	}
	for _, tc := range tests {
		if got := tc.c.String(); got != tc.want {
			t.Errorf("Case%v.String() = %q, want %q", tc.c.Args, got, tc.want)
		}
	}
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		in      string
		want    Scope
		wantErr bool
	}{
		{"", ScopeFunction, false},
		{"function", ScopeFunction, false},
		{"Module", ScopeModule, false},
		{"session", ScopeSession, false},
		{"file", ScopeFunction, true},
	}
	for _, tc := range tests {
		got, err := ParseScope(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseScope(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseScope(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	if !ScopeSession.Wider(ScopeModule) || !ScopeModule.Wider(ScopeFunction) || ScopeFunction.Wider(ScopeFunction) {
		t.Error("scope ordering is wrong")
	}
}
