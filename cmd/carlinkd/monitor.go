package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/carlink/internal/discovery"
	"github.com/muurk/carlink/internal/server"
	"github.com/muurk/carlink/internal/ui"
)

var (
	monitorAddr    string
	monitorOnce    bool
	monitorTimeout time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Show a live dashboard for a running carlinkd",
	Long: `Connect to a carlinkd status server and show session state, audio
routing, video statistics and the event feed.

Without --addr the server is located over mDNS.`,
	Example: `  carlinkd monitor
  carlinkd monitor --addr 127.0.0.1:8470
  carlinkd monitor --once`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().StringVar(&monitorAddr, "addr", "", "Status server address (default: discover over mDNS)")
	monitorCmd.Flags().BoolVar(&monitorOnce, "once", false, "Print the current status and exit")
	monitorCmd.Flags().DurationVar(&monitorTimeout, "discover-timeout", discovery.DefaultScanTimeout, "mDNS discovery timeout")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if err := initLogging(nil); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	p := ui.NewPrinter(cmd.OutOrStdout())
	addr := monitorAddr
	if addr == "" {
		scanner := discovery.NewScanner()
		scanner.Timeout = monitorTimeout
		inst, err := scanner.WaitForInstance(ctx)
		if err != nil {
			p.PrintError("No carlinkd found", err, []string{
				"Check that 'carlinkd run' is running with the status server enabled",
				"mDNS needs UDP port 5353 open on both hosts",
				"Pass --addr host:port to skip discovery",
			})
			return err
		}
		addr = inst.Addr()
	}

	client := server.NewClient(addr)
	if monitorOnce {
		return printStatus(ctx, p, client)
	}
	return ui.RunMonitor(ctx, client)
}

func printStatus(ctx context.Context, p *ui.Printer, client *server.Client) error {
	v, err := client.Status(ctx)
	if err != nil {
		p.PrintError("Status unavailable", err, nil)
		return err
	}

	details := map[string]string{
		"Phase":    v.Phase,
		"Peer":     v.Peer,
		"Sessions": fmt.Sprint(v.Sessions),
	}
	if v.SessionID != "" {
		details["Session"] = v.SessionID
	}
	if v.Audio != nil {
		details["Main volume"] = fmt.Sprintf("%.2f", v.Audio.MainVolume)
	}
	for name, s := range v.Video {
		details["Video "+name] = fmt.Sprintf("%d admitted, %d stale", s.Admitted, s.DroppedStale)
	}
	p.PrintSuccess("carlinkd at "+client.Addr(), details)
	return nil
}
