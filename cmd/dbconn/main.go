// Package main is the dbconn command-line client.
package main

import (
	"os"

	"github.com/leapstack-labs/dbconn/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
