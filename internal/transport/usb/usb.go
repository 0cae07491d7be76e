// Package usb opens the adapter's bulk endpoint pair with libusb.
package usb

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/gousb"
	"github.com/muurk/carlink/internal/logging"
	"github.com/muurk/carlink/internal/transport"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no matching adapter is attached
var ErrNotFound = errors.New("usb: adapter not found")

// Default USB ids of the adapter family
const (
	DefaultVendorID = 0x1314
)

// DefaultProductIDs lists the known product ids
var DefaultProductIDs = []uint16{0x1520, 0x1521}

// Opener finds the first attached adapter and claims its default interface
type Opener struct {
	VendorID   uint16
	ProductIDs []uint16
}

// Open claims the adapter and returns its bulk IN/OUT pair as a Channel
func (o *Opener) Open(ctx context.Context) (transport.Channel, error) {
	usbCtx := gousb.NewContext()

	dev, err := o.find(usbCtx)
	if err != nil {
		usbCtx.Close()
		return nil, err
	}

	if err := dev.SetAutoDetach(true); err != nil {
		logging.Debug("Auto-detach unsupported", zap.Error(err))
	}

	intf, release, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		usbCtx.Close()
		return nil, fmt.Errorf("failed to claim interface: %w", err)
	}

	in, out, err := bulkEndpoints(intf)
	if err != nil {
		release()
		dev.Close()
		usbCtx.Close()
		return nil, err
	}

	chCtx, cancel := context.WithCancel(context.Background())
	logging.Info("Adapter opened",
		zap.String("device", dev.String()),
		zap.String("in", in.String()),
		zap.String("out", out.String()),
	)

	return &channel{
		ctx:    chCtx,
		cancel: cancel,
		in:     in,
		out:    out,
		closers: []func(){
			release,
			func() { dev.Close() },
			func() { usbCtx.Close() },
		},
	}, nil
}

func (o *Opener) find(usbCtx *gousb.Context) (*gousb.Device, error) {
	vid := o.VendorID
	if vid == 0 {
		vid = DefaultVendorID
	}
	pids := o.ProductIDs
	if len(pids) == 0 {
		pids = DefaultProductIDs
	}

	for _, pid := range pids {
		dev, err := usbCtx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
		if err != nil {
			return nil, fmt.Errorf("failed to open %04x:%04x: %w", vid, pid, err)
		}
		if dev != nil {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("%w (vendor %04x)", ErrNotFound, vid)
}

func bulkEndpoints(intf *gousb.Interface) (*gousb.InEndpoint, *gousb.OutEndpoint, error) {
	var inNum, outNum = -1, -1
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionIn && inNum < 0 {
			inNum = ep.Number
		}
		if ep.Direction == gousb.EndpointDirectionOut && outNum < 0 {
			outNum = ep.Number
		}
	}
	if inNum < 0 || outNum < 0 {
		return nil, nil, errors.New("usb: interface has no bulk endpoint pair")
	}

	in, err := intf.InEndpoint(inNum)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open IN endpoint %d: %w", inNum, err)
	}
	out, err := intf.OutEndpoint(outNum)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open OUT endpoint %d: %w", outNum, err)
	}
	return in, out, nil
}

// channel adapts an endpoint pair to io.ReadWriteCloser. Close cancels any
// transfer in flight before releasing the device.
type channel struct {
	ctx     context.Context
	cancel  context.CancelFunc
	in      *gousb.InEndpoint
	out     *gousb.OutEndpoint
	once    sync.Once
	closers []func()
}

func (c *channel) Read(p []byte) (int, error) {
	return c.in.ReadContext(c.ctx, p)
}

func (c *channel) Write(p []byte) (int, error) {
	return c.out.WriteContext(c.ctx, p)
}

func (c *channel) Close() error {
	c.once.Do(func() {
		c.cancel()
		for _, fn := range c.closers {
			fn()
		}
	})
	return nil
}
