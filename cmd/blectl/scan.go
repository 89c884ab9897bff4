package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	blelib "github.com/go-ble/ble"
	"github.com/spf13/cobra"

	"github.com/srg/blectl/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Scan for and display Bluetooth Low Energy devices in the vicinity.

This command will scan for BLE devices and display information about
discovered devices, including their names, addresses, RSSI values, and
advertised services.`,
	RunE: runScan,
}

var (
	scanDuration    time.Duration
	scanFormat      string
	scanServices    []string
	scanAllowList   []string
	scanBlockList   []string
	scanNoDuplicate bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration (0 for indefinite)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().StringSliceVarP(&scanServices, "services", "s", nil, "Filter by service UUIDs")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide devices with these addresses")
	scanCmd.Flags().BoolVar(&scanNoDuplicate, "no-duplicates", true, "Filter duplicate advertisements")
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format %q: must be table or json", scanFormat)
	}

	serviceUUIDs, err := parseServiceUUIDs(scanServices)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	s, err := scanner.NewScanner(logger)
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	scanOpts := &scanner.ScanOptions{
		Duration:        scanDuration,
		DuplicateFilter: scanNoDuplicate,
		ServiceUUIDs:    serviceUUIDs,
		AllowList:       scanAllowList,
		BlockList:       scanBlockList,
	}

	// Listen for Ctrl+C to cancel
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, cancelling scan...")
		cancel()
	}()

	progress := NewCountdownProgressPrinter("Scanning for BLE devices", "Scanning", scanDuration)
	progress.Start()

	devices, err := s.Scan(ctx, scanOpts, progress.Callback())
	progress.Stop()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("scan failed")
		return err
	}
	return displayDevices(devices, scanFormat)
}

// parseServiceUUIDs converts the --services flag values into ble UUIDs.
func parseServiceUUIDs(raw []string) ([]blelib.UUID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	uuids := make([]blelib.UUID, 0, len(raw))
	for _, s := range raw {
		u, err := blelib.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid service UUID %q: %w", s, err)
		}
		uuids = append(uuids, u)
	}
	return uuids, nil
}

func displayDevices(devices map[string]scanner.DeviceInfo, format string) error {
	if len(devices) == 0 {
		fmt.Println("No devices discovered")
		return nil
	}

	devList := make([]scanner.DeviceInfo, 0, len(devices))
	for _, d := range devices {
		devList = append(devList, d)
	}
	sort.Slice(devList, func(i, j int) bool {
		if devList[i].Name != devList[j].Name {
			return devList[i].Name > devList[j].Name
		}
		return devList[i].Address < devList[j].Address
	})

	if format == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(devList)
	}
	return displayDevicesTable(devList)
}

func displayDevicesTable(devices []scanner.DeviceInfo) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSERVICES\tLAST SEEN")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, dev := range devices {
		name := dev.Name
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		services := strings.Join(dev.Services, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}

		lastSeen := time.Since(dev.LastSeen).Truncate(time.Second)

		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%s ago\n",
			name, dev.Address, dev.RSSI, services, lastSeen)
	}

	return w.Flush()
}
