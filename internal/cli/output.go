package cli

import (
	"fmt"
	"io"
)

// Writef writes formatted output to the writer, ignoring write errors.
//
// Example:
//
//	cli.Writef(stdout, "Watching %d test file(s)\n", count)
func Writef(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

// Writeln writes a line to the writer, ignoring write errors.
func Writeln(w io.Writer, args ...any) {
	_, _ = fmt.Fprintln(w, args...)
}

// Errorf reports an error prefixed with the command name.
//
//	cli.Errorf(stderr, "starfix", "loading config: %v", err)
func Errorf(w io.Writer, name, format string, args ...any) {
	Writef(w, "%s: %s\n", name, fmt.Sprintf(format, args...))
}
