package cmdtest

import (
	"testing"
)

func TestMain(m *testing.M) {
	Main(m)
}

func TestStarfix(t *testing.T) {
	Run(t, "testdata/starfix")
}
