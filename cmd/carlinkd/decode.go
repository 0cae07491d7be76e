package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/muurk/carlink/internal/protocol"
	"github.com/muurk/carlink/internal/transport"
	"github.com/muurk/carlink/internal/ui"
)

var (
	decodeQuiet    bool
	decodeOutbound bool
)

var decodeCmd = &cobra.Command{
	Use:   "decode <capture.bin>",
	Short: "Decode a raw adapter capture",
	Long: `Decode a capture recorded with "carlinkd run --capture-dir" and print
each message followed by per-type counts. Corrupt envelopes are skipped the
same way a live session skips them.`,
	Example: `  carlinkd decode ~/captures/capture-20260506-070809.000.bin
  carlinkd decode --quiet capture.bin`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open capture: %w", err)
		}
		defer f.Close()

		dir := protocol.Inbound
		if decodeOutbound {
			dir = protocol.Outbound
		}
		return decodeCapture(f, dir, decodeQuiet, ui.NewPrinter(cmd.OutOrStdout()))
	},
}

func init() {
	decodeCmd.Flags().BoolVarP(&decodeQuiet, "quiet", "q", false, "Only print the summary")
	decodeCmd.Flags().BoolVar(&decodeOutbound, "outbound", false, "Decode as host-to-adapter traffic")
}

type decodeCount struct {
	frames  int
	invalid int
}

func decodeCapture(src io.Reader, dir protocol.Direction, quiet bool, p *ui.Printer) error {
	// Resync budget is unbounded for offline captures
	r := transport.NewReader(src, int(^uint(0)>>1))
	counts := make(map[protocol.MessageType]*decodeCount)
	total := 0

	for {
		f, err := r.ReadFrame()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("frame %d: %w", total+1, err)
		}
		total++

		c := counts[f.Type]
		if c == nil {
			c = &decodeCount{}
			counts[f.Type] = c
		}
		c.frames++

		msg, err := protocol.Parse(f, dir)
		if err != nil {
			c.invalid++
			if !quiet {
				p.Println(ui.ErrorMessageStyle.Render(fmt.Sprintf("%6d %v", total, err)))
			}
			continue
		}
		if !quiet {
			p.Println(fmt.Sprintf("%6d %s", total, msg))
		}
	}

	types := make([]protocol.MessageType, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	p.Println("")
	p.Println(ui.SectionTitleStyle.Render(fmt.Sprintf("%d frames", total)))
	for _, t := range types {
		c := counts[t]
		line := fmt.Sprintf("  0x%02X %-20s %6d", uint32(t), t, c.frames)
		if c.invalid > 0 {
			line += ui.ErrorMessageStyle.Render(fmt.Sprintf("  (%d invalid)", c.invalid))
		}
		p.Println(line)
	}
	return nil
}
