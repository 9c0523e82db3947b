// Command overlayctl drives the overlay and stream APIs from a terminal.
package main

import (
	"fmt"
	"os"

	"overlay-studio/internal/envelope"
	"overlay-studio/internal/platform/config"
)

func main() {
	_ = config.Load()

	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, envelope.StatusMessage(err))
		os.Exit(1)
	}
}
