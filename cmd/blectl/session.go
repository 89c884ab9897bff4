package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/blectl/internal/gatt"
	"github.com/srg/blectl/internal/gatt/goble"
	"github.com/srg/blectl/pkg/config"
)

// newSession builds a session on the go-ble transport from the command flags
// and config file.
func newSession(cmd *cobra.Command, logger *logrus.Logger, cfg *config.Config) *gatt.Session {
	opts := cfg.SessionOptions()
	if mtu, _ := cmd.Flags().GetInt("mtu"); mtu > 0 {
		opts.RequestMTU = mtu
	}
	return gatt.NewSession(goble.NewTransport(logger), opts, logger)
}

// connectAndWait connects to addr and blocks until the connection is fully
// set up (services discovered) or fails. Returns ctx.Err() on cancellation.
func connectAndWait(ctx context.Context, session *gatt.Session, addr string) error {
	setup := make(chan struct{}, 1)
	failed := make(chan error, 1)
	listener := &gatt.Listener{
		OnConnectionSetupComplete: func(ev gatt.Event) {
			if ev.Device == addr {
				select {
				case setup <- struct{}{}:
				default:
				}
			}
		},
		OnDisconnect: func(ev gatt.Event) {
			if ev.Device == addr {
				err := ev.Err
				if err == nil {
					err = ErrConnectionLost
				}
				select {
				case failed <- err:
				default:
				}
			}
		},
	}
	session.RegisterListener(listener)
	defer session.UnregisterListener(listener)

	if err := session.Connect(ctx, addr); err != nil {
		return err
	}

	select {
	case <-setup:
		return nil
	case err := <-failed:
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	case <-ctx.Done():
		_ = session.Teardown(addr)
		return ctx.Err()
	}
}
