package main

import (
	"os"

	"github.com/manicule/manicule/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
