package main

import (
	"os"

	"github.com/copyleftdev/goldmine/cmd/goldmine/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
