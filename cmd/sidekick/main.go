// Command sidekick records a meeting, transcribes it live and keeps a running
// summary, insights and action items.
//
// Usage:
//
//	sidekick [flags] <command>
//
// Commands:
//
//	run      - Record from the input device and serve the control API
//	devices  - List input-capable audio devices
//	version  - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/rajpdus/meeting-sidekick/cmd/sidekick/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
