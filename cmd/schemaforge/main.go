package main

import (
	"os"

	_ "github.com/schemaforge-labs/schemaforge/internal/adapter/postgres"
	"github.com/schemaforge-labs/schemaforge/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
