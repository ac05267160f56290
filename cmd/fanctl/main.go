package main

import (
	"fmt"
	"os"

	"codeberg.org/mutker/fand/internal/api"
	"codeberg.org/mutker/fand/internal/errors"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.HasCode(err, api.ErrUnreachable) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}
