package main

import (
	"os"

	"pairloop/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
