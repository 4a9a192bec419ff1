package main

import (
	"fmt"
	"os"

	"github.com/ppiankov/goldrun/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "goldrun:", err)
		os.Exit(1)
	}
}
