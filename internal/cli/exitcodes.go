// Package cli provides output helpers and exit codes for the starfix command.
package cli

// Exit codes for starfix.
const (
	// ExitOK means every selected test passed, or none were found.
	ExitOK = 0

	// ExitFailed means at least one test case failed.
	ExitFailed = 1

	// ExitError means the run could not start: a usage, config, load or
	// fixture graph error.
	ExitError = 2
)
