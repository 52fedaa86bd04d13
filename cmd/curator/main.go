package main

import (
	"os"

	"github.com/ppiankov/curator/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
