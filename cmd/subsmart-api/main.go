package main

import (
	"os"

	"github.com/gigurra/subsmart/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
