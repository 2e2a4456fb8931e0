package fixture

import (
	"context"
	"fmt"
	"log/slog"
)

// Lifecycle activates and tears down fixtures.
//
// It remembers the order in which fixtures were activated so that batch
// teardown releases dependents strictly before their dependencies.
// A Lifecycle is not safe for concurrent use; tests run one at a time.
type Lifecycle struct {
	logger *slog.Logger
	order  []*Fixture
}

// NewLifecycle creates a lifecycle that reports advisories to logger.
// A nil logger discards them.
func NewLifecycle(logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Lifecycle{logger: logger}
}

// Activate instantiates f, activating its references first.
// It does nothing when f already holds a value.
func (l *Lifecycle) Activate(ctx context.Context, f *Fixture) error {
	if f.active {
		return nil
	}

	deps := make(Values, len(f.Refs))
	for _, ref := range f.Refs {
		if err := l.Activate(ctx, ref); err != nil {
			return err
		}
		deps[ref.Name] = ref.value
	}

	value, teardown, err := l.setup(ctx, f, deps)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFixtureSetup, f.Name, err)
	}
	if f.HasTeardown && teardown == nil {
		l.logger.Warn("fixture produced no teardown; is it done intentionally?",
			"fixture", f.Name, "scope", f.Scope.String())
	}

	f.value = value
	f.teardown = teardown
	f.active = true
	l.order = append(l.order, f)
	return nil
}

func (l *Lifecycle) setup(ctx context.Context, f *Fixture, deps Values) (value any, teardown Teardown, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	if f.Setup == nil {
		return nil, nil, nil
	}
	return f.Setup(ctx, deps)
}

// Deactivate tears f down and clears its value. Its references are left
// alone. Teardown failures are logged, never returned.
func (l *Lifecycle) Deactivate(ctx context.Context, f *Fixture) {
	if !f.active {
		return
	}

	if f.teardown != nil {
		if err := runTeardown(ctx, f.teardown); err != nil {
			l.logger.Warn(ErrFixtureTeardown.Error(),
				"fixture", f.Name, "scope", f.Scope.String(), "err", err)
		}
	}

	f.value = nil
	f.teardown = nil
	f.active = false
	for i := len(l.order) - 1; i >= 0; i-- {
		if l.order[i] == f {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

func runTeardown(ctx context.Context, td Teardown) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return td(ctx)
}

// SetupScope activates every fixture in fixtures whose scope is scope.
func (l *Lifecycle) SetupScope(ctx context.Context, scope Scope, fixtures []*Fixture) error {
	for _, f := range fixtures {
		if f.Scope != scope {
			continue
		}
		if err := l.Activate(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

// TeardownScope deactivates every active fixture in fixtures whose scope is
// scope, most recently activated first.
func (l *Lifecycle) TeardownScope(ctx context.Context, scope Scope, fixtures []*Fixture) {
	members := make(map[*Fixture]bool, len(fixtures))
	for _, f := range fixtures {
		if f.Scope == scope && f.active {
			members[f] = true
		}
	}
	if len(members) == 0 {
		return
	}

	var batch []*Fixture
	for i := len(l.order) - 1; i >= 0; i-- {
		if members[l.order[i]] {
			batch = append(batch, l.order[i])
		}
	}
	for _, f := range batch {
		l.Deactivate(ctx, f)
	}
}

// Active returns the currently active fixtures in activation order.
func (l *Lifecycle) Active() []*Fixture {
	return append([]*Fixture(nil), l.order...)
}
