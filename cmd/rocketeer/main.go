// Package main is the single-binary entrypoint for rocketeer.
// rocketeer deploys applications by running named tasks and their hooks.
package main

import "github.com/guoyu07/rocketeer/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
