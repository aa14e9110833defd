package main

import (
	"os"

	"github.com/amanasmuei/lunomcp/cmd/lunomcp/cmd"
)

func main() {
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
