package commands

import (
	"fmt"
	"sort"

	"github.com/Carmen-Shannon/oxy-gpu/engine"
	"github.com/spf13/cobra"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Show the selected device",
	Long: `Create the configured device and print its name, backend and the entry
points of its shader library.`,
	Args: cobra.NoArgs,
	RunE: runDevice,
}

func init() {
	rootCmd.AddCommand(deviceCmd)
}

func runDevice(cmd *cobra.Command, _ []string) error {
	g, err := engine.NewGPUFromConfig(cfg)
	if err != nil {
		return err
	}
	defer g.Release()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Device:  %s\n", g.Name())
	fmt.Fprintf(out, "Backend: %s\n", g.Device().Backend())

	lib := g.Library()
	if lib == nil {
		fmt.Fprintln(out, "Library: none")
		return nil
	}
	names := lib.FunctionNames()
	sort.Strings(names)
	fmt.Fprintf(out, "Library: %s (%d functions)\n", lib.Label(), len(names))
	for _, name := range names {
		fmt.Fprintf(out, "  %s\n", name)
	}
	return nil
}
