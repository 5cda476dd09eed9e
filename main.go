package main

import (
	"os"

	"github.com/webshell-project/bootstrapper/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
