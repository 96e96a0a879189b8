// sittr configures this machine to route traffic through the AgentSitter
// inspection proxy.
package main

import (
	"context"
	"os"

	"github.com/agentsitter/sittr/pkg/cli"
)

var version = "0.1.0"

func main() {
	app := cli.NewApp(version)
	if err := app.Execute(context.Background(), os.Args[1:]); err != nil {
		cli.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}
