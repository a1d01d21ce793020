// Package main implements the go-call-graph CLI (gcg).
// It builds classified call graphs of Java projects and checks them for
// calls between incompatible execution contexts.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/l3aro/go-call-graph/cmd/gcg/commands"
)

var version = "dev"

func main() {
	commands.Version = version
	commands.RootCmd.Version = version
	commands.RootCmd.SetVersionTemplate(`gcg version {{.Version}}
`)

	if err := commands.Execute(); err != nil {
		if errors.Is(err, commands.ErrViolations) {
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
}
