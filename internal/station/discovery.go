package station

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/florianw/stationpoller/internal/protocol"
	"github.com/florianw/stationpoller/internal/state"
	"go.uber.org/zap"
)

// ErrNotFound indicates a locate probe that got no matching answer.
// This is a normal outcome when the station is offline or busy.
var ErrNotFound = errors.New("station not found")

// DiscoveryConfig holds the UDP broadcast parameters
type DiscoveryConfig struct {
	BroadcastAddr string
	BroadcastPort int
	NameMarker    string
	StationPort   int
	Timeout       time.Duration
}

// Discovery locates the station on the local subnet via UDP broadcast
type Discovery struct {
	config DiscoveryConfig
	logger *zap.SugaredLogger
}

// NewDiscovery creates a Discovery with defaults applied
func NewDiscovery(config DiscoveryConfig, logger *zap.SugaredLogger) *Discovery {
	if config.BroadcastAddr == "" {
		config.BroadcastAddr = "255.255.255.255"
	}
	if config.BroadcastPort == 0 {
		config.BroadcastPort = 46000
	}
	if config.NameMarker == "" {
		config.NameMarker = "WS980"
	}
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Second
	}

	return &Discovery{
		config: config,
		logger: logger,
	}
}

// Locate broadcasts the locate probe and waits for a single reply. When
// the reply carries the expected device-name marker, the sender's source
// address becomes the new station endpoint. Timeouts and non-matching
// replies return ErrNotFound.
func (d *Discovery) Locate(ctx context.Context) (state.Endpoint, error) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return state.Endpoint{}, fmt.Errorf("failed to open discovery socket: %w", err)
	}
	defer conn.Close()

	dest := &net.UDPAddr{
		IP:   net.ParseIP(d.config.BroadcastAddr),
		Port: d.config.BroadcastPort,
	}
	if dest.IP == nil {
		return state.Endpoint{}, fmt.Errorf("invalid broadcast address %q", d.config.BroadcastAddr)
	}

	deadline := time.Now().Add(d.config.Timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	if _, err := conn.WriteTo(protocol.CmdLocate, dest); err != nil {
		return state.Endpoint{}, fmt.Errorf("failed to send locate probe: %w", err)
	}

	buffer := make([]byte, 1024)
	n, addr, err := conn.ReadFrom(buffer)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			d.logger.Debugf("no reply to locate probe within %v", d.config.Timeout)
			return state.Endpoint{}, ErrNotFound
		}
		return state.Endpoint{}, fmt.Errorf("failed to read locate reply: %w", err)
	}

	if !bytes.Contains(buffer[:n], []byte(d.config.NameMarker)) {
		d.logger.Debugf("locate reply from %v did not contain marker %q", addr, d.config.NameMarker)
		return state.Endpoint{}, ErrNotFound
	}

	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return state.Endpoint{}, ErrNotFound
	}

	ep := state.Endpoint{
		Host: udpAddr.IP.String(),
		Port: d.config.StationPort,
	}
	d.logger.Infof("discovered station at %s", ep.Addr())

	return ep, nil
}
