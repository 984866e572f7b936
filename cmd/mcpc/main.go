package main

import (
	"os"

	"github.com/viant/mcpc/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
