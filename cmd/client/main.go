package main

import (
	"fmt"
	"os"

	"github.com/iudanet/gophstorage/internal/client/cli"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	root := cli.NewRootCommand(cli.Options{
		Build: cli.BuildInfo{Version: Version, BuildDate: BuildDate, GitCommit: GitCommit},
	})
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
