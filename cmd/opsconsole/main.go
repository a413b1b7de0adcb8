// Package main provides the entrypoint for the opsconsole binary.
package main

import (
	"os"

	"github.com/openrag/opsconsole/internal/cli"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(cli.Execute(cli.BuildInfo{Version: Version, BuildTime: BuildTime}))
}
