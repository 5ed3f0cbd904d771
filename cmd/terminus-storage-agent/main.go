package main

import (
	"os"

	"github.com/terminus-io/storage-agent/cmd/terminus-storage-agent/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
