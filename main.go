package main

import (
	"fmt"
	"os"

	"github.com/greenhouse-qa/greenhouse/command"
)

func main() {
	if err := command.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
