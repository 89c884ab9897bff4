package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/blectl/internal/gatt"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch <device-address> <uuid>",
	Short: "Subscribe to characteristic notifications",
	Long: `Subscribes to BLE characteristic notifications (or indications, when
that is all the characteristic supports) and prints every received value
until interrupted.

Examples:
  # Watch heart rate measurements
  blectl watch AA:BB:CC:DD:EE:FF 2a37

  # Watch and print values as hex
  blectl watch AA:BB:CC:DD:EE:FF 2a37 --hex`,
	Args: cobra.ExactArgs(2),
	RunE: runWatch,
}

var (
	watchHex     bool
	watchTimeout time.Duration
)

func init() {
	watchCmd.Flags().BoolVar(&watchHex, "hex", false, "Output as hex string; raw bytes by default")
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", 30*time.Second, "Connection timeout")
	watchCmd.Flags().Int("mtu", 0, "Request this ATT MTU after connecting")
}

func runWatch(cmd *cobra.Command, args []string) error {
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	progress := NewProgressPrinter(fmt.Sprintf("Subscribing to %s on %s", charUUID, address), "Connecting")
	progress.Start()

	connectCtx, connectCancel := context.WithTimeout(ctx, watchTimeout)
	defer connectCancel()
	if err := connectAndWait(connectCtx, session, address); err != nil {
		progress.Stop()
		return err
	}

	// Take the event stream before enabling so no value is missed.
	events := session.Events()

	progress.SetPhase("Subscribing")
	op, err := session.EnableNotifications(address, charUUID)
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
	case <-ctx.Done():
		progress.Stop()
		return ctx.Err()
	}

	fmt.Fprintf(os.Stderr, "Subscribed to %s. Press Ctrl+C to stop...\n", charUUID)

	timeColor := color.New(color.FgHiBlack)
	valueColor := color.New(color.FgCyan)
	norm := gatt.NormalizeUUID(charUUID)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Type {
			case gatt.EventCharacteristicChanged:
				if ev.Device != address || ev.Characteristic != norm {
					continue
				}
				timeColor.Printf("%s ", ev.Timestamp.Format("15:04:05.000"))
				if watchHex {
					valueColor.Println(hex.EncodeToString(ev.Value))
				} else {
					valueColor.Println(string(ev.Value))
				}
			case gatt.EventDisconnect:
				if ev.Device == address {
					return ErrConnectionLost
				}
			}
		}
	}
}
