package main

import (
	"os"
)

const versionString = "bfc 1.0.0"

func main() {
	os.Exit(RunCLI(os.Args[1:], os.Stdout, os.Stderr))
}
