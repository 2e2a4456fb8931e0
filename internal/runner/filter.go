package runner

import (
	"strings"

	"github.com/albertocavalcante/starfix/internal/fixture"
)

// selected reports whether a test passes the runner's selection options.
func (r *Runner) selected(file string, t *fixture.Test) bool {
	if names, ok := r.opts.TestNames[file]; ok && len(names) > 0 {
		found := false
		for _, n := range names {
			if n == t.Name {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if r.opts.Only != nil && !r.opts.Only[file+"::"+t.Name] {
		return false
	}

	if !matchExpr(r.opts.Filter, func(pattern string) bool {
		return strings.Contains(strings.ToLower(t.Name), strings.ToLower(pattern))
	}) {
		return false
	}

	return matchExpr(r.opts.MarkerFilter, t.HasMarker)
}

// matchExpr evaluates a filter of the form "pattern" or "not pattern".
// An empty filter matches everything.
func matchExpr(filter string, match func(string) bool) bool {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return true
	}

	negate := false
	if len(filter) > 4 && strings.EqualFold(filter[:4], "not ") {
		negate = true
		filter = strings.TrimSpace(filter[4:])
	}

	if negate {
		return !match(filter)
	}
	return match(filter)
}
