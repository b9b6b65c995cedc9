package main

import (
	"os"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
