package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonhe/fieldscan/internal/device"
)

var validateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Validate a device file",
	Long: `Parse a TOML or JSON device file, apply defaults and check every
device and frame without connecting to anything.

Exit codes:
  0 - file is valid
  1 - file is invalid (problems printed to stderr)`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	devs, err := device.LoadFile(args[0])
	if err != nil {
		return err
	}
	if err := device.Validate(devs); err != nil {
		return err
	}

	frames := 0
	fmt.Printf("%-24s  %-26s  %-8s  %-10s  %s\n", "Name", "Device", "Protocol", "Mode", "Frames")
	fmt.Printf("%-24s  %-26s  %-8s  %-10s  %s\n", "----", "------", "--------", "----", "------")
	for _, d := range devs {
		mode := "sequential"
		if d.AllowConcurrentFrameReads {
			mode = "concurrent"
		}
		fmt.Printf("%-24s  %-26s  %-8s  %-10s  %d\n",
			truncate(d.Name, 24), d.Key(), d.Protocol, mode, len(d.Frames))
		frames += len(d.Frames)
	}
	fmt.Printf("\n%s is valid: %d devices, %d frames.\n", args[0], len(devs), frames)
	return nil
}

// truncate shortens a string to the given max length, adding "..." if needed.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
