package main

import (
	"fmt"
	"os"

	"github.com/harun/sidebar/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", cli.ErrorMessage(err))
		os.Exit(1)
	}
}
