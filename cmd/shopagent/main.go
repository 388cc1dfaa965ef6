package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/harun/shopagent/internal/cli"
)

func main() {
	// a missing .env is fine; real environment variables win
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
