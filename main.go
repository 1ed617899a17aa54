package main

import (
	"os"

	"github.com/michaelpento.lv/omniarb/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
