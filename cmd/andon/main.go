// Package main provides the entry point for the andon CLI.
package main

import (
	"os"

	"github.com/chrisallenlane/andon/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
