package main

import (
	"fmt"
	"os"

	"github.com/outflow-crm/outflow/internal/cli"
)

var version = "dev"

func main() {
	cli.Version = version
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "outflow:", err)
		os.Exit(1)
	}
}
