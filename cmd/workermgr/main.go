package main

import (
	"os"

	"workermgr/internal/cli"
)

func main() { os.Exit(cli.Main()) }
