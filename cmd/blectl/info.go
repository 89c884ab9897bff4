package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <device-address>",
	Short: "Inspect GATT services and characteristics",
	Long: `Connects to a device, discovers its GATT profile and prints every
service and characteristic with its capabilities.

Example:
  blectl info AA:BB:CC:DD:EE:FF`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

var infoTimeout time.Duration

func init() {
	infoCmd.Flags().DurationVar(&infoTimeout, "timeout", 30*time.Second, "Connection timeout")
	infoCmd.Flags().Int("mtu", 0, "Request this ATT MTU after connecting")
}

func runInfo(cmd *cobra.Command, args []string) error {
	address := args[0]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	session := newSession(cmd, logger, cfg)
	defer session.Close()

	progress := NewProgressPrinter(fmt.Sprintf("Inspecting %s", address), "Connecting")
	progress.Start()

	ctx, cancel := context.WithTimeout(context.Background(), infoTimeout)
	defer cancel()

	err = connectAndWait(ctx, session, address)
	progress.Stop()
	if err != nil {
		return err
	}

	services := session.Services(address)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tCHARACTERISTIC\tCAPABILITIES")
	for _, svc := range services {
		chars := svc.Characteristics()
		if len(chars) == 0 {
			fmt.Fprintf(w, "%s\t\t\n", svc.UUID())
			continue
		}
		for _, char := range chars {
			fmt.Fprintf(w, "%s\t%s\t%s\n", svc.UUID(), char.UUID(), char.Capabilities())
		}
	}
	return w.Flush()
}
