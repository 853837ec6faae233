package main

import (
	"context"
	"os"

	"github.com/elan-lab/ultravox-elan/cmd"
)

func main() {
	if err := cmd.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
