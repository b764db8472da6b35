package main

import (
	"fmt"
	"os"

	"github.com/leafpkg/leaf/internal/cli"
	lerr "github.com/leafpkg/leaf/pkg/errors"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(lerr.ExitCode(err))
	}
}
