package main

import (
	"os"

	"github.com/upb/permission-engine/cmd/permctl/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
