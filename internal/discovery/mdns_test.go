package discovery

import (
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func entry(instance, host string, port int, ip string, txt ...string) *zeroconf.ServiceEntry {
	e := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: instance},
		HostName:      host,
		Port:          port,
		Text:          txt,
	}
	if parsed := net.ParseIP(ip); parsed != nil {
		if parsed.To4() != nil {
			e.AddrIPv4 = []net.IP{parsed}
		} else {
			e.AddrIPv6 = []net.IP{parsed}
		}
	}
	return e
}

func TestScanner_parseServiceEntry(t *testing.T) {
	scanner := NewScanner()

	tests := []struct {
		name     string
		entry    *zeroconf.ServiceEntry
		wantNil  bool
		wantAddr string
	}{
		{
			name:     "carlinkd over IPv4",
			entry:    entry("carlinkd", "car.local.", 8470, "192.168.4.16", "app=carlinkd", "version=1.0.0"),
			wantAddr: "192.168.4.16:8470",
		},
		{
			name:     "carlinkd over IPv6",
			entry:    entry("carlinkd", "car.local.", 8470, "fe80::1", "app=carlinkd"),
			wantAddr: "[fe80::1]:8470",
		},
		{
			name:    "foreign service on the same type",
			entry:   entry("other", "other.local.", 8470, "192.168.4.17", "path=/"),
			wantNil: true,
		},
		{
			name:    "no address",
			entry:   entry("carlinkd", "car.local.", 8470, "", "app=carlinkd"),
			wantNil: true,
		},
		{
			name:    "no port",
			entry:   entry("carlinkd", "car.local.", 0, "192.168.4.16", "app=carlinkd"),
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := scanner.parseServiceEntry(tt.entry)
			if tt.wantNil {
				if inst != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", inst)
				}
				return
			}
			if inst == nil {
				t.Fatal("parseServiceEntry() = nil, want instance")
			}
			if got := inst.Addr(); got != tt.wantAddr {
				t.Errorf("Addr() = %v, want %v", got, tt.wantAddr)
			}
			if inst.Name != "carlinkd" {
				t.Errorf("Name = %v, want carlinkd", inst.Name)
			}
			if time.Since(inst.DiscoveredAt) > time.Second {
				t.Errorf("DiscoveredAt is not recent: %v", inst.DiscoveredAt)
			}
		})
	}
}

func TestScanner_parseServiceEntry_Metadata(t *testing.T) {
	inst := NewScanner().parseServiceEntry(
		entry("carlinkd", "car.local.", 8470, "10.0.0.5", "app=carlinkd", "version=1.2.0", "flag"))
	if inst == nil {
		t.Fatal("parseServiceEntry() = nil, want instance")
	}

	want := map[string]string{"app": "carlinkd", "version": "1.2.0", "flag": ""}
	if !reflect.DeepEqual(inst.Metadata, want) {
		t.Errorf("Metadata = %v, want %v", inst.Metadata, want)
	}
	if got := inst.GetMetadata("version"); got != "1.2.0" {
		t.Errorf("GetMetadata(version) = %q, want 1.2.0", got)
	}
	if got := (&Instance{}).GetMetadata("version"); got != "" {
		t.Errorf("GetMetadata on nil map = %q, want empty", got)
	}
}

func TestTxtRecords(t *testing.T) {
	got := txtRecords(map[string]string{"version": "1.0", "app": "spoofed", "commit": "abc"})
	want := []string{"app=carlinkd", "commit=abc", "version=1.0"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("txtRecords() = %v, want %v", got, want)
	}
}

func TestNewScanner(t *testing.T) {
	scanner := NewScanner()
	if scanner.Timeout != DefaultScanTimeout {
		t.Errorf("scanner.Timeout = %v, want %v", scanner.Timeout, DefaultScanTimeout)
	}
}

func TestInstanceString(t *testing.T) {
	inst := &Instance{Name: "carlinkd", Hostname: "car.local.", IP: "10.0.0.5", Port: 8470}
	want := "carlinkd (car.local.) at 10.0.0.5:8470"
	if got := inst.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
