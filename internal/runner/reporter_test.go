package runner

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/albertocavalcante/starfix/internal/fixture"
)

func sampleRun() *RunResult {
	rr := &RunResult{Duration: 1500 * time.Millisecond}
	fr := FileResult{File: "calc.test.star", Duration: time.Second}
	rr.record(&fr, TestResult{Name: "adds", File: "calc.test.star", Passed: true, Output: "2\n"})
	rr.record(&fr, TestResult{
		Name:    "mul",
		File:    "calc.test.star",
		Case:    &fixture.Case{Args: []any{4, 4, 15}},
		Markers: []fixture.Marker{{Name: "slow"}},
		Error:   errors.New("assertion failed: expected 16 == 15\nsecond line"),
	})
	rr.Files = append(rr.Files, fr)
	return rr
}

func TestTextReporter(t *testing.T) {
	rr := sampleRun()
	r := NewTextReporter(false, true)

	var buf bytes.Buffer
	for i := range rr.Files {
		r.ReportFile(&buf, &rr.Files[i])
	}
	r.ReportSummary(&buf, rr)

	want := `PASS  adds
FAIL  mul(4, 4, 15)
      assertion failed: expected 16 == 15
      second line

Failures:
  x calc.test.star::mul(4, 4, 15)
      assertion failed: expected 16 == 15
      second line

Results: 1 passed, 1 failed, 2 total in 1 file(s)
`
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("text output mismatch (-want +got):\n%s", diff)
	}
}

func TestTextReporterVerbose(t *testing.T) {
	rr := sampleRun()
	r := NewTextReporter(true, true)

	var buf bytes.Buffer
	r.ReportFile(&buf, &rr.Files[0])
	r.ReportSummary(&buf, rr)

	out := buf.String()
	for _, want := range []string{"PASS  adds  (0s)", "      Output:\n        2\n", "Duration: 1.5s"} {
		if !strings.Contains(out, want) {
			t.Errorf("verbose output missing %q:\n%s", want, out)
		}
	}
}

func TestJSONReporter(t *testing.T) {
	var buf bytes.Buffer
	(&JSONReporter{}).ReportSummary(&buf, sampleRun())

	var got jsonReport
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	want := jsonReport{
		Passed:   1,
		Failed:   1,
		Total:    2,
		Files:    1,
		Duration: 1500,
		Results: []jsonFileReport{{
			File:     "calc.test.star",
			Duration: 1000,
			Cases: []jsonCase{
				{Name: "adds", Passed: true, Output: "2\n"},
				{
					Name:    "mul",
					Case:    "(4, 4, 15)",
					Markers: []string{"slow"},
					Error:   "assertion failed: expected 16 == 15\nsecond line",
				},
			},
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("JSON mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONReporterEmptyRun(t *testing.T) {
	var buf bytes.Buffer
	(&JSONReporter{}).ReportSummary(&buf, &RunResult{})
	if !strings.Contains(buf.String(), `"results": []`) {
		t.Errorf("empty run should encode an empty results array:\n%s", buf.String())
	}
}

func TestJUnitReporter(t *testing.T) {
	var buf bytes.Buffer
	(&JUnitReporter{}).ReportSummary(&buf, sampleRun())

	if !strings.HasPrefix(buf.String(), xml.Header) {
		t.Error("missing XML header")
	}
	var got junitReport
	if err := xml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid XML: %v\n%s", err, buf.String())
	}
	if got.Tests != 2 || got.Failures != 1 || len(got.Suites) != 1 {
		t.Fatalf("suites = %+v", got)
	}
	cases := got.Suites[0].Cases
	if cases[1].Name != "mul(4, 4, 15)" || cases[1].Failure == nil {
		t.Fatalf("failing case = %+v", cases[1])
	}
	if cases[1].Failure.Message != "assertion failed: expected 16 == 15" {
		t.Errorf("failure message = %q", cases[1].Failure.Message)
	}
	if cases[0].SystemOut != "2\n" {
		t.Errorf("system-out = %q", cases[0].SystemOut)
	}
	if diff := cmp.Diff([]junitProperty{{Name: "marker", Value: "slow"}}, cases[1].Properties); diff != "" {
		t.Errorf("properties mismatch (-want +got):\n%s", diff)
	}
	if cases[0].Properties != nil {
		t.Errorf("unmarked case has properties: %+v", cases[0].Properties)
	}
}
