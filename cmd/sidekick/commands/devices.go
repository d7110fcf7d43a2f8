package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rajpdus/meeting-sidekick/internal/audio"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List input-capable audio devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := audio.InputDevices()
		if err != nil {
			return err
		}
		printDevices(cmd.OutOrStdout(), devices)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func printDevices(w io.Writer, devices []audio.DeviceInfo) {
	if len(devices) == 0 {
		fmt.Fprintln(w, "No input devices found.")
		return
	}
	for i, d := range devices {
		marker := " "
		if d.Default {
			marker = "*"
		}
		kind := d.Kind
		if kind == "" {
			kind = "-"
		}
		fmt.Fprintf(w, "%s %2d  %-40s %-10s %d ch  %.0f Hz  %s\n",
			marker, i, d.Name, kind, d.MaxInputChannels, d.DefaultSampleRate, d.HostAPI)
	}
}
