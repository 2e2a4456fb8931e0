// Package cmdtest provides a testscript-based test harness for the starfix
// command.
//
// Scripts are txtar files holding the test files and the expected output.
// Every script runs in its own $WORK directory with STARFIX_CONFIG pointing
// at $WORK/starfix.toml, so the last-failed cache never leaves $WORK.
//
// Example test file (testdata/starfix/pass.txtar):
//
//	exec starfix calc.test.star
//	stdout '1 passed, 0 failed'
//
//	-- starfix.toml --
//	[run]
//	-- calc.test.star --
//	def adds(fx):
//	    assert.eq(1 + 1, 2)
//
//	test("adds", adds)
package cmdtest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"

	"github.com/albertocavalcante/starfix/internal/cmd/starfix"
	"github.com/albertocavalcante/starfix/internal/config"
)

// Run executes the testscript tests in the given directory.
func Run(t *testing.T, dir string) {
	testscript.Run(t, testscript.Params{
		Dir: dir,
		Setup: func(env *testscript.Env) error {
			env.Setenv(config.EnvConfig, filepath.Join(env.WorkDir, config.FileName))
			return nil
		},
	})
}

// Main is the TestMain function that should be called from test files.
// It sets up starfix as a testscript command.
func Main(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"starfix": wrapRun(starfix.Run),
	}))
}

// wrapRun wraps a Run(args []string) int function to func() int for testscript.
// The args are taken from os.Args[1:].
func wrapRun(run func(args []string) int) func() int {
	return func() int {
		return run(os.Args[1:])
	}
}
