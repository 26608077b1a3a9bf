package main

import (
	"os"

	"github.com/dfryer1193/webpress/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
