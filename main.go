package main

import (
	"os"

	"github.com/talentops/cdd-analyzer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
