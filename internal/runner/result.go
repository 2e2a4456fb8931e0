package runner

import (
	"time"

	"github.com/albertocavalcante/starfix/internal/fixture"
)

// TestResult is the outcome of one test case.
type TestResult struct {
	// Name is the test name.
	Name string

	// File is the source file containing the test.
	File string

	// Case is the parameter tuple, nil for unparameterized tests.
	Case *fixture.Case

	// Markers are the test's markers.
	Markers []fixture.Marker

	// Passed indicates whether the case passed.
	Passed bool

	// Duration is how long setup, body and function teardown took.
	Duration time.Duration

	// Error is set when the case failed.
	Error error

	// Output contains anything printed during the case.
	Output string
}

// ID returns the name used for selection and caching: file::name.
func (r TestResult) ID() string {
	return r.File + "::" + r.Name
}

// DisplayName returns the test name followed by its case label, if any.
func (r TestResult) DisplayName() string {
	if r.Case == nil {
		return r.Name
	}
	return r.Name + r.Case.String()
}

// FileResult holds the results of every test case in one file.
type FileResult struct {
	// File is the path to the test file.
	File string

	// Tests contains one result per executed case, in completion order.
	Tests []TestResult

	// Duration is the total time spent in this file.
	Duration time.Duration
}

// Summary returns counts of passed and failed cases.
func (fr *FileResult) Summary() (passed, failed int) {
	for _, t := range fr.Tests {
		if t.Passed {
			passed++
		} else {
			failed++
		}
	}
	return
}

// HasFailures reports whether any case in the file failed.
func (fr *FileResult) HasFailures() bool {
	_, failed := fr.Summary()
	return failed > 0
}

// Failure identifies one failed case.
type Failure struct {
	File  string
	Test  string
	Case  *fixture.Case
	Error error
}

// RunResult aggregates a whole run.
type RunResult struct {
	// Files contains the results of each file, in execution order.
	Files []FileResult

	// Passed and Failed count cases over all files.
	Passed int
	Failed int

	// Failures lists failed cases in the order they completed.
	Failures []Failure

	// Duration is the total time for the run.
	Duration time.Duration
}

// Total returns the number of executed cases.
func (rr *RunResult) Total() int {
	return rr.Passed + rr.Failed
}

// HasFailures reports whether any case failed.
func (rr *RunResult) HasFailures() bool {
	return rr.Failed > 0
}

func (rr *RunResult) record(file *FileResult, res TestResult) {
	file.Tests = append(file.Tests, res)
	if res.Passed {
		rr.Passed++
		return
	}
	rr.Failed++
	rr.Failures = append(rr.Failures, Failure{
		File:  res.File,
		Test:  res.Name,
		Case:  res.Case,
		Error: res.Error,
	})
}
