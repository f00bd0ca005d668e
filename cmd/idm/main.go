package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// newRootCmd builds the command tree. Each invocation gets fresh flag state.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "idm",
		Short: "Drive iDotMatrix-style LED panels over Bluetooth Low Energy",
		Long: `Drive LED-matrix displays that speak the iDotMatrix BLE protocol:

- Upload scrolling text, GIF animations and still images
- Watch decoded display notifications
- Control power, brightness, clock, countdown and scoreboard modes
- Inspect the negotiated GATT endpoints

Use --fixture to run against a YAML-described emulated display.`,
		Version: fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),
	}

	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	opts.bindFlags(rootCmd)

	rootCmd.AddCommand(
		newTextCmd(opts),
		newGifCmd(opts),
		newImageCmd(opts),
		newListenCmd(opts),
		newEndpointsCmd(opts),
	)
	rootCmd.AddCommand(newControlCmds(opts)...)

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
