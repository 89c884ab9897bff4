package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write <device-address> <uuid> <data>",
	Short: "Write to a characteristic",
	Long: `Writes data to a BLE characteristic.

Examples:
  # Write string data
  blectl write AA:BB:CC:DD:EE:FF 2a06 "high"

  # Write hex data
  blectl write AA:BB:CC:DD:EE:FF 2a06 01 --hex

  # Write without response (faster, no ACK)
  blectl write AA:BB:CC:DD:EE:FF 2a06 "data" --without-response`,
	Args: cobra.ExactArgs(3),
	RunE: runWrite,
}

var (
	writeHex        bool
	writeNoResponse bool
	writeTimeout    time.Duration
)

func init() {
	writeCmd.Flags().BoolVar(&writeHex, "hex", false, "Parse input as hex string (e.g., 'FF01'); raw bytes by default")
	writeCmd.Flags().BoolVar(&writeNoResponse, "without-response", false, "Write without response (faster, no ACK)")
	writeCmd.Flags().DurationVar(&writeTimeout, "timeout", 30*time.Second, "Connection timeout")
	writeCmd.Flags().Int("mtu", 0, "Request this ATT MTU after connecting")
}

func runWrite(cmd *cobra.Command, args []string) error {
	address, charUUID := args[0], args[1]

	data, err := parseWriteData(args[2], writeHex)
	if err != nil {
		return fmt.Errorf("failed to parse data: %w", err)
	}

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

	progress := NewProgressPrinter(
		fmt.Sprintf("Writing %d bytes to %s on %s", len(data), charUUID, address), "Connecting")
	progress.Start()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := connectAndWait(ctx, session, address); err != nil {
		progress.Stop()
		return err
	}

	progress.SetPhase("Writing")
	op, err := session.WriteCharacteristic(address, charUUID, data, writeNoResponse)
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
		fmt.Println("Write successful")
		return nil
	case <-ctx.Done():
		progress.Stop()
		return ctx.Err()
	}
}

// parseWriteData converts the input string to bytes based on the hex flag.
func parseWriteData(dataStr string, asHex bool) ([]byte, error) {
	if !asHex {
		return []byte(dataStr), nil
	}

	// Remove spaces and common separators
	cleaned := strings.ReplaceAll(dataStr, " ", "")
	cleaned = strings.ReplaceAll(cleaned, ":", "")
	cleaned = strings.ReplaceAll(cleaned, "-", "")
	cleaned = strings.ReplaceAll(cleaned, "0x", "")

	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return data, nil
}
