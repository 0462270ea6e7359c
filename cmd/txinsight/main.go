package main

import "github.com/mbd888/txinsight/internal/cli"

// Version is set by ldflags.
var Version = "dev"

func main() {
	cli.Version = Version
	cli.Execute()
}
