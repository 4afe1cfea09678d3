package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// TODO: Inject version at build time.
const version = "0.1.0"

func main() {
	// Optional .env for local development; flags and real environment
	// variables still take precedence.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err.Error())
		os.Exit(1)
	}
}
