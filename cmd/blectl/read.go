package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <device-address> <uuid>",
	Short: "Read a characteristic value",
	Long: `Connects to a device and reads the value of a characteristic.

Examples:
  # Read battery level as raw bytes
  blectl read AA:BB:CC:DD:EE:FF 2a19

  # Read and print as hex
  blectl read AA:BB:CC:DD:EE:FF 2a19 --hex`,
	Args: cobra.ExactArgs(2),
	RunE: runRead,
}

var (
	readHex     bool
	readTimeout time.Duration
)

func init() {
	readCmd.Flags().BoolVar(&readHex, "hex", false, "Output as hex string; raw bytes by default")
	readCmd.Flags().DurationVar(&readTimeout, "timeout", 30*time.Second, "Connection timeout")
	readCmd.Flags().Int("mtu", 0, "Request this ATT MTU after connecting")
}

func runRead(cmd *cobra.Command, args []string) error {
	address, charUUID := args[0], args[1]

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

	progress := NewProgressPrinter(fmt.Sprintf("Reading %s from %s", charUUID, address), "Connecting")
	progress.Start()

	ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
	defer cancel()

	if err := connectAndWait(ctx, session, address); err != nil {
		progress.Stop()
		return err
	}

	progress.SetPhase("Reading")
	op, err := session.ReadCharacteristic(address, charUUID)
	if err != nil {
		progress.Stop()
		return err
	}

	select {
	case res := <-op.Done():
		progress.Stop()
		if res.Err != nil {
			return res.Err
		}
		if readHex {
			fmt.Println(hex.EncodeToString(res.Value))
		} else {
			_, _ = os.Stdout.Write(res.Value)
			fmt.Println()
		}
		return nil
	case <-ctx.Done():
		progress.Stop()
		return ctx.Err()
	}
}
