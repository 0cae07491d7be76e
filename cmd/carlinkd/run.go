package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/carlink/internal/audio"
	"github.com/muurk/carlink/internal/discovery"
	"github.com/muurk/carlink/internal/dispatch"
	"github.com/muurk/carlink/internal/gnss"
	"github.com/muurk/carlink/internal/logging"
	"github.com/muurk/carlink/internal/server"
	"github.com/muurk/carlink/internal/session"
	"github.com/muurk/carlink/internal/transport"
	"github.com/muurk/carlink/internal/ui"
	"github.com/muurk/carlink/internal/version"
	"github.com/muurk/carlink/internal/video"
)

var (
	adapterAddr string
	statusAddr  string
	videoPrefix string
	noAudio     bool
	noAdvertise bool
	captureDir  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive the adapter until interrupted",
	Long: `Open the adapter and keep a session running until interrupted.

The adapter is found on USB by vendor and product id unless --adapter or
CARLINK_ADAPTER_ADDR names a TCP bridge. Sessions that end on unplug, phase
zero, liveness timeout or a channel error are reopened with backoff.`,
	Example: `  # USB adapter, defaults from config.yaml
  carlinkd run

  # Bench rig bridging the adapter over TCP, recording video
  carlinkd run --adapter 192.168.1.40:9000 --video-out /tmp/capture

  # Headless, no local audio and no mDNS advertisement
  carlinkd run --no-audio --no-advertise`,
	RunE: runDaemon,
}

func init() {
	runCmd.Flags().StringVar(&adapterAddr, "adapter", "", "TCP address of an adapter bridge (default: USB)")
	runCmd.Flags().StringVar(&statusAddr, "status-addr", "", "Status server listen address (overrides config; \"off\" disables)")
	runCmd.Flags().StringVar(&videoPrefix, "video-out", "", "Write H.264 streams to <prefix>-<stream>.h264")
	runCmd.Flags().BoolVar(&noAudio, "no-audio", false, "Discard adapter audio")
	runCmd.Flags().StringVar(&captureDir, "capture-dir", "", "Record raw adapter input to this directory (see: carlinkd decode)")
	runCmd.Flags().BoolVar(&noAdvertise, "no-advertise", false, "Do not advertise the status server over mDNS")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if adapterAddr != "" {
		cfg.Adapter.TCPAddr = adapterAddr
	}
	if statusAddr != "" {
		cfg.Status.Addr = statusAddr
	}
	if cfg.Status.Addr == "off" {
		cfg.Status.Addr = ""
	}
	if noAudio {
		cfg.Audio.Enabled = false
	}
	if noAdvertise {
		cfg.Status.Advertise = false
	}

	if err := initLogging(cfg); err != nil {
		return err
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sinks session.Sinks
	if cfg.Audio.Enabled {
		out, err := audio.NewOtoOutput(cfg.Audio.BufferLimit)
		if err != nil {
			logging.Warn("Audio output unavailable, discarding audio", zap.Error(err))
		} else {
			sinks.Audio = out.Factory()
		}
	}
	if videoPrefix != "" {
		sinks.Video = video.FileDecoderFactory(videoPrefix)
	}

	opener := cfg.Opener()
	if captureDir != "" {
		if err := os.MkdirAll(captureDir, 0o755); err != nil {
			return fmt.Errorf("failed to create capture directory: %w", err)
		}
		opener = &transport.RecordingOpener{Opener: opener, Dir: captureDir}
	}

	engine := session.New(cfg.EngineConfig(), opener, sinks)
	d := dispatch.New(engine)
	fixes := make(chan gnss.Fix, 8)
	reporter := gnss.NewReporter(gnss.ChanProvider(fixes), d.SendGNSS, engine.Streaming)

	target := "usb"
	if cfg.Adapter.TCPAddr != "" {
		target = cfg.Adapter.TCPAddr
	}
	status := cfg.Status.Addr
	if status == "" {
		status = "disabled"
	}
	p := ui.NewPrinter(cmd.OutOrStdout())
	p.PrintHeader("carlinkd", "carlinkd run", map[string]string{
		"Adapter": target,
		"Status":  status,
		"Version": version.Version,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error { return reporter.Run(gctx) })
	g.Go(func() error {
		reportEvents(gctx, engine.Bus(), p)
		return nil
	})
	if cfg.Status.Addr != "" {
		st := server.New(server.Config{Addr: cfg.Status.Addr, Control: d, Fixes: fixes}, engine)
		g.Go(func() error { return st.Start(gctx) })
		if cfg.Status.Advertise {
			g.Go(func() error {
				advertise(gctx, st)
				return nil
			})
		}
	}

	err = g.Wait()
	sent, dropped := reporter.Counts()
	logging.Info("carlinkd stopped",
		zap.Uint64("sessions", engine.Snapshot().Sessions),
		zap.Uint64("gnss_sent", sent),
		zap.Uint64("gnss_dropped", dropped),
	)
	return err
}

// reportEvents prints the coarse, user-facing session status
func reportEvents(ctx context.Context, bus *session.Bus, p *ui.Printer) {
	sub := bus.Subscribe(32)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if line := eventLine(ev); line != "" {
				p.Println(line)
			}
		}
	}
}

func eventLine(ev session.Event) string {
	ts := ui.MutedStyle.Render(ev.At.Local().Format("15:04:05"))
	switch ev.Kind {
	case session.EventConnected:
		return fmt.Sprintf("%s %s", ts, lipgloss.NewStyle().Foreground(ui.WarningColor).Render("phone connected, waiting for stream"))
	case session.EventStreaming:
		return fmt.Sprintf("%s %s %s", ts, ui.PhaseStyle("streaming").Render("streaming"), ev.Peer)
	case session.EventDisconnected:
		return fmt.Sprintf("%s %s", ts, ui.ErrorMessageStyle.Render(ev.Reason.UserMessage()))
	case session.EventPeer:
		return fmt.Sprintf("%s %s", ts, ui.MutedStyle.Render("phone is "+ev.Peer.String()))
	default:
		return ""
	}
}

// advertise publishes the status server over mDNS until ctx ends. Failure is
// logged and otherwise ignored.
func advertise(ctx context.Context, st *server.Status) {
	addr, err := st.Addr(ctx)
	if err != nil {
		return
	}
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return
	}

	name := "carlinkd"
	if host, err := os.Hostname(); err == nil && host != "" {
		name += "-" + host
	}
	adv, err := discovery.Advertise(name, tcp.Port, map[string]string{"version": version.Version})
	if err != nil {
		logging.Warn("mDNS advertisement failed", zap.Error(err))
		return
	}
	<-ctx.Done()
	adv.Shutdown()
}
