package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	cli "github.com/quillhq/quill/cmd/quill"
	"github.com/quillhq/quill/internal/config"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	// Defaults overlaid with <data-dir>/config.yaml when it exists
	c, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Pass config to CLI and execute
	if err := cli.SetupRootCmd(c).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
