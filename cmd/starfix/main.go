// Command starfix runs fixture-based Starlark tests.
package main

import (
	"os"

	"github.com/albertocavalcante/starfix/internal/cmd/starfix"
)

func main() {
	os.Exit(starfix.Run(os.Args[1:]))
}
