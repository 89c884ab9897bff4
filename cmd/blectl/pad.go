package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/srg/blectl/internal/gatt"
)

// padCmd represents the pad command
var padCmd = &cobra.Command{
	Use:   "pad <device-address>",
	Short: "Drive a device with single-byte pad commands",
	Long: `Turns the terminal into a command pad: arrow keys (or hjkl) send
direction commands to the device's command characteristic, 'r' sends reset,
'q' or Ctrl+C quits.

The command characteristic defaults to ffe1 and can be changed via the
config file.

Example:
  blectl pad AA:BB:CC:DD:EE:FF`,
	Args: cobra.ExactArgs(1),
	RunE: runPad,
}

var padTimeout time.Duration

func init() {
	padCmd.Flags().DurationVar(&padTimeout, "timeout", 30*time.Second, "Connection timeout")
	padCmd.Flags().Int("mtu", 0, "Request this ATT MTU after connecting")
}

func runPad(cmd *cobra.Command, args []string) error {
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

	progress := NewProgressPrinter(fmt.Sprintf("Connecting to %s", address), "Connecting")
	progress.Start()

	ctx, cancel := context.WithTimeout(context.Background(), padTimeout)
	defer cancel()
	err = connectAndWait(ctx, session, address)
	progress.Stop()
	if err != nil {
		return err
	}

	// Watch for link loss while the pad is active.
	lost := make(chan struct{})
	listener := &gatt.Listener{
		OnDisconnect: func(ev gatt.Event) {
			if ev.Device == address {
				close(lost)
			}
		},
	}
	session.RegisterListener(listener)
	defer session.UnregisterListener(listener)

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("failed to enter raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	fmt.Print("Pad active: arrows/hjkl move, r resets, q quits\r\n")

	keys := make(chan gatt.Action)
	readErr := make(chan error, 1)
	go readKeys(os.Stdin, keys, readErr)

	actionColor := color.New(color.FgGreen)
	errorColor := color.New(color.FgRed)

	for {
		select {
		case <-lost:
			return ErrConnectionLost
		case err := <-readErr:
			return err
		case action, ok := <-keys:
			if !ok {
				return nil
			}
			op, err := session.PerformAction(address, action)
			if err != nil {
				errorColor.Printf("%s: %s\r\n", action, FormatUserError(err))
				continue
			}
			if res := <-op.Done(); res.Err != nil {
				errorColor.Printf("%s: %s\r\n", action, FormatUserError(res.Err))
				continue
			}
			actionColor.Printf("%s\r\n", action)
		}
	}
}

// readKeys translates key presses into actions. Closes keys on 'q' or
// Ctrl+C, sends the read error otherwise.
func readKeys(in *os.File, keys chan<- gatt.Action, readErr chan<- error) {
	buf := make([]byte, 3)
	for {
		n, err := in.Read(buf)
		if err != nil {
			readErr <- err
			return
		}
		action, quit := decodeKey(buf[:n])
		if quit {
			close(keys)
			return
		}
		if action != 0 {
			keys <- action
		}
	}
}

// decodeKey maps a raw key sequence to an action. Returns quit=true for
// 'q' and Ctrl+C. Unrecognized keys map to action 0.
func decodeKey(seq []byte) (action gatt.Action, quit bool) {
	// ANSI escape sequences for arrow keys: ESC [ A/B/C/D
	if len(seq) == 3 && seq[0] == 0x1b && seq[1] == '[' {
		switch seq[2] {
		case 'A':
			return gatt.ActionUp, false
		case 'B':
			return gatt.ActionDown, false
		case 'C':
			return gatt.ActionRight, false
		case 'D':
			return gatt.ActionLeft, false
		}
		return 0, false
	}

	if len(seq) != 1 {
		return 0, false
	}
	switch seq[0] {
	case 'k':
		return gatt.ActionUp, false
	case 'j':
		return gatt.ActionDown, false
	case 'h':
		return gatt.ActionLeft, false
	case 'l':
		return gatt.ActionRight, false
	case 'r':
		return gatt.ActionReset, false
	case 'q', 0x03: // q or Ctrl+C
		return 0, true
	}
	return 0, false
}
