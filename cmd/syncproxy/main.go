package main

import (
	"os"

	"github.com/plannerhq/syncproxy/cmd/syncproxy/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
