// Package main provides the entry point for the vectordbd daemon and CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/amanmcp/cmd/vectordbd/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
