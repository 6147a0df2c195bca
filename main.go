package main

import (
	"os"

	"github.com/beeper-automations/installer/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
