package main

import (
	"os"

	"github.com/cayyus/engineerverse/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
