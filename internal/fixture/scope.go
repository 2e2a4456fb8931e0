package fixture

import (
	"fmt"
	"strings"
)

// Scope defines how long an instantiated fixture value lives.
// Scopes are totally ordered from narrowest to widest.
type Scope int

const (
	// ScopeFunction creates a fresh fixture instance for each test case (default).
	ScopeFunction Scope = iota
	// ScopeModule shares a fixture instance within a file.
	ScopeModule
	// ScopeSession shares a fixture instance for the whole run.
	ScopeSession
)

// Scopes lists every scope from widest to narrowest, which is setup order.
var Scopes = []Scope{ScopeSession, ScopeModule, ScopeFunction}

// String returns the scope's name as written in test files.
func (s Scope) String() string {
	switch s {
	case ScopeFunction:
		return "function"
	case ScopeModule:
		return "module"
	case ScopeSession:
		return "session"
	default:
		return fmt.Sprintf("Scope(%d)", int(s))
	}
}

// Wider reports whether s outlives other.
func (s Scope) Wider(other Scope) bool {
	return s > other
}

// ParseScope parses a scope name. The empty string means ScopeFunction.
func ParseScope(name string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "function":
		return ScopeFunction, nil
	case "module":
		return ScopeModule, nil
	case "session":
		return ScopeSession, nil
	default:
		return ScopeFunction, fmt.Errorf("unknown fixture scope %q (expected function, module or session)", name)
	}
}
