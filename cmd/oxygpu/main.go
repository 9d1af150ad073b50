package main

import (
	"os"

	"github.com/Carmen-Shannon/oxy-gpu/cmd/oxygpu/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
