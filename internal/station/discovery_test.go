package station

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/florianw/stationpoller/internal/protocol"
)

// startResponder runs a UDP responder that answers locate probes with
// the given payload and returns its address
func startResponder(t *testing.T, reply []byte) *net.UDPAddr {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("failed to start responder: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	go func() {
		buffer := make([]byte, 64)
		for {
			n, addr, err := conn.ReadFrom(buffer)
			if err != nil {
				return
			}
			if bytes.Equal(buffer[:n], protocol.CmdLocate) {
				conn.WriteTo(reply, addr)
			}
		}
	}()

	return conn.LocalAddr().(*net.UDPAddr)
}

func TestLocateFindsStation(t *testing.T) {
	addr := startResponder(t, []byte("WS980WiFi v1.6.4"))

	d := NewDiscovery(DiscoveryConfig{
		BroadcastAddr: addr.IP.String(),
		BroadcastPort: addr.Port,
		NameMarker:    "WS980",
		StationPort:   45000,
		Timeout:       time.Second,
	}, testLogger())

	ep, err := d.Locate(context.Background())
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if ep.Host != "127.0.0.1" {
		t.Errorf("Locate() host = %q, want %q", ep.Host, "127.0.0.1")
	}
	if ep.Port != 45000 {
		t.Errorf("Locate() port = %d, want 45000", ep.Port)
	}
}

func TestLocateRejectsWrongMarker(t *testing.T) {
	addr := startResponder(t, []byte("SOMEOTHERDEVICE"))

	d := NewDiscovery(DiscoveryConfig{
		BroadcastAddr: addr.IP.String(),
		BroadcastPort: addr.Port,
		NameMarker:    "WS980",
		StationPort:   45000,
		Timeout:       time.Second,
	}, testLogger())

	_, err := d.Locate(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Locate() error = %v, want ErrNotFound", err)
	}
}

func TestLocateTimesOut(t *testing.T) {
	// Open a socket that never answers
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("failed to open silent socket: %v", err)
	}
	defer conn.Close()
	addr := conn.LocalAddr().(*net.UDPAddr)

	d := NewDiscovery(DiscoveryConfig{
		BroadcastAddr: addr.IP.String(),
		BroadcastPort: addr.Port,
		NameMarker:    "WS980",
		StationPort:   45000,
		Timeout:       100 * time.Millisecond,
	}, testLogger())

	_, err = d.Locate(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Locate() error = %v, want ErrNotFound", err)
	}
}
