package main

import (
	"os"

	"Go_Drop/cmd/pushfile/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
