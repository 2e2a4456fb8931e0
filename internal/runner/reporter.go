package runner

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/albertocavalcante/starfix/internal/fixture"
)

// Reporter writes test results as a run progresses.
type Reporter interface {
	// ReportFile is called once per file, right after it completes.
	ReportFile(w io.Writer, result *FileResult)

	// ReportSummary is called once, after session teardown.
	ReportSummary(w io.Writer, result *RunResult)
}

// TextReporter prints one line per case and a failure list at the end.
type TextReporter struct {
	// Verbose adds durations and captured output.
	Verbose bool

	pass, fail, bold, dim *color.Color
}

// NewTextReporter creates a text reporter. noColor disables ANSI colors.
func NewTextReporter(verbose, noColor bool) *TextReporter {
	r := &TextReporter{
		Verbose: verbose,
		pass:    color.New(color.FgGreen),
		fail:    color.New(color.FgRed),
		bold:    color.New(color.Bold),
		dim:     color.New(color.Faint),
	}
	if noColor {
		for _, c := range []*color.Color{r.pass, r.fail, r.bold, r.dim} {
			c.DisableColor()
		}
	}
	return r
}

func (r *TextReporter) ReportFile(w io.Writer, result *FileResult) {
	for _, res := range result.Tests {
		line := r.status(res.Passed) + "  " + res.DisplayName()
		if r.Verbose {
			line += "  " + r.dim.Sprintf("(%s)", res.Duration.Round(time.Millisecond))
		}
		_, _ = fmt.Fprintln(w, line)

		if res.Error != nil {
			writeIndented(w, "      ", res.Error.Error())
		}
		if r.Verbose && res.Output != "" {
			writeIndented(w, "      ", "Output:")
			writeIndented(w, "        ", strings.TrimRight(res.Output, "\n"))
		}
	}
}

func (r *TextReporter) ReportSummary(w io.Writer, result *RunResult) {
	_, _ = fmt.Fprintln(w)
	if len(result.Failures) > 0 {
		_, _ = fmt.Fprintln(w, r.bold.Sprint("Failures:"))
		for _, f := range result.Failures {
			_, _ = fmt.Fprintf(w, "  %s %s::%s\n", r.fail.Sprint("x"), f.File, caseName(f.Test, f.Case))
			if f.Error != nil {
				writeIndented(w, "      ", f.Error.Error())
			}
		}
		_, _ = fmt.Fprintln(w)
	}

	failed := fmt.Sprintf("%d failed", result.Failed)
	if result.Failed > 0 {
		failed = r.fail.Sprint(failed)
	}
	_, _ = fmt.Fprintf(w, "Results: %s, %s, %d total in %d file(s)\n",
		r.pass.Sprintf("%d passed", result.Passed), failed, result.Total(), len(result.Files))
	if r.Verbose {
		_, _ = fmt.Fprintf(w, "Duration: %s\n", result.Duration.Round(time.Millisecond))
	}
}

func (r *TextReporter) status(passed bool) string {
	if passed {
		return r.pass.Sprint("PASS")
	}
	return r.fail.Sprint("FAIL")
}

// writeIndented writes every line of text prefixed by indent.
func writeIndented(w io.Writer, indent, text string) {
	for _, line := range strings.Split(text, "\n") {
		_, _ = io.WriteString(w, indent+line+"\n")
	}
}

func caseName(test string, c *fixture.Case) string {
	if c == nil {
		return test
	}
	return test + c.String()
}

// JUnitReporter writes one JUnit XML document: a suite per file and a
// testcase per case. Markers become testcase properties.
type JUnitReporter struct{}

type junitReport struct {
	XMLName  xml.Name     `xml:"testsuites"`
	Tests    int          `xml:"tests,attr"`
	Failures int          `xml:"failures,attr"`
	Time     float64      `xml:"time,attr"`
	Suites   []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	Name     string      `xml:"name,attr"`
	Tests    int         `xml:"tests,attr"`
	Failures int         `xml:"failures,attr"`
	Time     float64     `xml:"time,attr"`
	Cases    []junitCase `xml:"testcase"`
}

type junitCase struct {
	Name       string          `xml:"name,attr"`
	ClassName  string          `xml:"classname,attr"`
	Time       float64         `xml:"time,attr"`
	Properties []junitProperty `xml:"properties>property,omitempty"`
	Failure    *junitFailure   `xml:"failure,omitempty"`
	SystemOut  string          `xml:"system-out,omitempty"`
}

type junitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Detail  string `xml:",chardata"`
}

func (r *JUnitReporter) ReportFile(io.Writer, *FileResult) {}

func (r *JUnitReporter) ReportSummary(w io.Writer, result *RunResult) {
	report := junitReport{
		Tests:    result.Total(),
		Failures: result.Failed,
		Time:     result.Duration.Seconds(),
	}
	for i := range result.Files {
		report.Suites = append(report.Suites, newJUnitSuite(&result.Files[i]))
	}

	_, _ = io.WriteString(w, xml.Header)
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	_ = enc.Encode(report)
	_, _ = fmt.Fprintln(w)
}

func newJUnitSuite(fr *FileResult) junitSuite {
	_, failed := fr.Summary()
	suite := junitSuite{
		Name:     fr.File,
		Tests:    len(fr.Tests),
		Failures: failed,
		Time:     fr.Duration.Seconds(),
	}
	for _, res := range fr.Tests {
		jc := junitCase{
			Name:      res.DisplayName(),
			ClassName: fr.File,
			Time:      res.Duration.Seconds(),
			SystemOut: res.Output,
		}
		for _, m := range res.Markers {
			jc.Properties = append(jc.Properties, junitProperty{Name: "marker", Value: m.Name})
		}
		if !res.Passed {
			msg := "test failed"
			if res.Error != nil {
				msg = res.Error.Error()
			}
			head, _, _ := strings.Cut(msg, "\n")
			jc.Failure = &junitFailure{Message: head, Type: "TestFailure", Detail: msg}
		}
		suite.Cases = append(suite.Cases, jc)
	}
	return suite
}

// JSONReporter writes one JSON document after the run. Durations are in
// milliseconds.
type JSONReporter struct{}

type jsonReport struct {
	Passed   int              `json:"passed"`
	Failed   int              `json:"failed"`
	Total    int              `json:"total"`
	Files    int              `json:"files"`
	Duration int64            `json:"duration_ms"`
	Results  []jsonFileReport `json:"results"`
}

type jsonFileReport struct {
	File     string     `json:"file"`
	Duration int64      `json:"duration_ms"`
	Cases    []jsonCase `json:"tests"`
}

type jsonCase struct {
	Name     string   `json:"name"`
	Case     string   `json:"case,omitempty"`
	Markers  []string `json:"markers,omitempty"`
	Passed   bool     `json:"passed"`
	Duration int64    `json:"duration_ms"`
	Error    string   `json:"error,omitempty"`
	Output   string   `json:"output,omitempty"`
}

func (r *JSONReporter) ReportFile(io.Writer, *FileResult) {}

func (r *JSONReporter) ReportSummary(w io.Writer, result *RunResult) {
	report := jsonReport{
		Passed:   result.Passed,
		Failed:   result.Failed,
		Total:    result.Total(),
		Files:    len(result.Files),
		Duration: result.Duration.Milliseconds(),
		Results:  make([]jsonFileReport, 0, len(result.Files)),
	}
	for _, fr := range result.Files {
		report.Results = append(report.Results, newJSONFileReport(fr))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
}

func newJSONFileReport(fr FileResult) jsonFileReport {
	out := jsonFileReport{
		File:     fr.File,
		Duration: fr.Duration.Milliseconds(),
		Cases:    make([]jsonCase, 0, len(fr.Tests)),
	}
	for _, res := range fr.Tests {
		jc := jsonCase{
			Name:     res.Name,
			Passed:   res.Passed,
			Duration: res.Duration.Milliseconds(),
			Output:   res.Output,
		}
		if res.Case != nil {
			jc.Case = res.Case.String()
		}
		for _, m := range res.Markers {
			jc.Markers = append(jc.Markers, m.Name)
		}
		if res.Error != nil {
			jc.Error = res.Error.Error()
		}
		out.Cases = append(out.Cases, jc)
	}
	return out
}
