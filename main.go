package main

import (
	"os"

	"github.com/ThatCatDev/tanrenai/launcher/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
