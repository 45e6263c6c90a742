package main

import (
	"fmt"
	"os"

	"github.com/taoyao-code/lifx-lan/cmd/lifxd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
