package main

import (
	"context"
	"os"

	"github.com/nvr-ai/go-darknet/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
