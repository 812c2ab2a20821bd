package main

import (
	"fmt"
	"os"

	"github.com/Zanooda/sunshine-homeassistant/pkg/cli"
)

func main() {
	cliApp := cli.NewCLI()
	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
