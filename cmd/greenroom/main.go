// Package main provides the entry point for the greenroom CLI.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/greenroomhq/greenroom/internal/cli"
)

func main() {
	// Populate GREENROOM_* and GITHUB_TOKEN from a local .env if present.
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
