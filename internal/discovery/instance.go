package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Instance is a carlinkd status server found on the network
type Instance struct {
	// Name is the mDNS instance name (e.g. "carlinkd-kitchen")
	Name string

	// Hostname is the mDNS hostname (e.g. "kitchen.local.")
	Hostname string

	IP   string
	Port int

	// Metadata holds the TXT records ("app", "version")
	Metadata map[string]string

	DiscoveredAt time.Time
}

func (i *Instance) String() string {
	return fmt.Sprintf("%s (%s) at %s", i.Name, i.Hostname, i.Addr())
}

// Addr returns host:port for server.NewClient
func (i *Instance) Addr() string {
	return net.JoinHostPort(i.IP, strconv.Itoa(i.Port))
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (i *Instance) GetMetadata(key string) string {
	if i.Metadata == nil {
		return ""
	}
	return i.Metadata[key]
}
