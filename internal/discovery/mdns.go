package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/carlink/internal/logging"
	"go.uber.org/zap"
)

const (
	// ServiceType is the mDNS service type of the status server
	ServiceType = "_carlink._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for discovery
	DefaultScanTimeout = 5 * time.Second

	// AppKey and AppValue mark our own advertisements
	AppKey   = "app"
	AppValue = "carlinkd"
)

// ErrNotFound is returned when no instance answers before the timeout
var ErrNotFound = errors.New("discovery: no carlinkd instance found")

// Advertisement is a registered service; Shutdown withdraws it
type Advertisement struct {
	server *zeroconf.Server
	once   sync.Once
}

// Advertise registers the status server on port under instance name
func Advertise(name string, port int, meta map[string]string) (*Advertisement, error) {
	srv, err := zeroconf.Register(name, ServiceType, ServiceDomain, port, txtRecords(meta), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	logging.Info("Advertising status server",
		zap.String("instance", name),
		zap.String("service", ServiceType),
		zap.Int("port", port),
	)
	return &Advertisement{server: srv}, nil
}

// Shutdown withdraws the advertisement. Safe to call more than once.
func (a *Advertisement) Shutdown() {
	a.once.Do(a.server.Shutdown)
}

func txtRecords(meta map[string]string) []string {
	txt := []string{AppKey + "=" + AppValue}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		if k != AppKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		txt = append(txt, k+"="+meta[k])
	}
	return txt
}

// Scanner browses for status servers
type Scanner struct {
	// Timeout is the maximum time to wait for discovery
	Timeout time.Duration
}

// NewScanner creates a scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// Scan collects every instance that answers within the timeout
func (s *Scanner) Scan(ctx context.Context) ([]*Instance, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var mu sync.Mutex
	found := make([]*Instance, 0)
	err := s.browse(ctx, func(inst *Instance) bool {
		mu.Lock()
		found = append(found, inst)
		mu.Unlock()
		return true
	})
	if err != nil {
		return nil, err
	}

	<-ctx.Done()
	mu.Lock()
	defer mu.Unlock()
	return append([]*Instance(nil), found...), nil
}

// WaitForInstance returns the first instance that answers
func (s *Scanner) WaitForInstance(ctx context.Context) (*Instance, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	first := make(chan *Instance, 1)
	err := s.browse(ctx, func(inst *Instance) bool {
		select {
		case first <- inst:
		default:
		}
		return false
	})
	if err != nil {
		return nil, err
	}

	select {
	case inst := <-first:
		return inst, nil
	case <-ctx.Done():
		return nil, ErrNotFound
	}
}

// browse feeds parsed instances to fn until fn returns false or ctx ends
func (s *Scanner) browse(ctx context.Context, fn func(*Instance) bool) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}
				inst := s.parseServiceEntry(entry)
				if inst == nil {
					continue
				}
				if !fn(inst) {
					return
				}
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}
	return nil
}

// parseServiceEntry converts a zeroconf entry to an Instance, or nil when the
// entry is not one of ours or has no usable address
func (s *Scanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Instance {
	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}
	if metadata[AppKey] != AppValue {
		return nil
	}

	// Prefer IPv4
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" || entry.Port == 0 {
		return nil
	}

	return &Instance{
		Name:         entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}
