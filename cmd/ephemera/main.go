package main

import (
	"os"

	"github.com/majorcontext/ephemera/cmd/ephemera/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
