// Command incomectl talks to an income server the way a worker does: it
// sends income reports and prints price sync messages.
package main

import (
	"os"

	"github.com/joho/godotenv"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
