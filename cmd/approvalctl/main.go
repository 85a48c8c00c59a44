package main

import (
	"os"

	"github.com/garyjia/approval-engine/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
