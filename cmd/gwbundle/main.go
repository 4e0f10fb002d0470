package main

import (
	"os"

	"github.com/gatewaykit/gwbundle/cmd/gwbundle/internal/command"
)

func main() {
	os.Exit(command.Execute())
}
