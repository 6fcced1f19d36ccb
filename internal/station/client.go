// Package station owns the connection lifecycle to the weather station:
// the TCP request/response exchange, UDP broadcast discovery and the
// registry holding the device's current address.
package station

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/florianw/stationpoller/internal/protocol"
	"github.com/florianw/stationpoller/internal/state"
	"go.uber.org/zap"
)

// ErrConnect indicates the station could not be reached.
var ErrConnect = errors.New("station connect error")

// readBufferSize bounds one response read. The current-values frame is
// 82 bytes; the device never sends more than this in one reply.
const readBufferSize = 1024

// Locator refreshes the station endpoint after a failed exchange
type Locator interface {
	Locate(ctx context.Context) (state.Endpoint, error)
}

// ClientConfig holds the station client settings
type ClientConfig struct {
	Timeout                     time.Duration
	RediscoverOnProtocolFailure bool
}

// Client performs one command/response exchange per call against the
// registry's current endpoint. Connections are never reused.
type Client struct {
	config   ClientConfig
	registry *Registry
	locator  Locator
	logger   *zap.SugaredLogger
}

// NewClient creates a station client
func NewClient(config ClientConfig, registry *Registry, locator Locator, logger *zap.SugaredLogger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Second
	}

	return &Client{
		config:   config,
		registry: registry,
		locator:  locator,
		logger:   logger,
	}
}

// Fetch requests the current sensor values and returns the validated
// response frame
func (c *Client) Fetch(ctx context.Context) ([]byte, error) {
	return c.FetchCommand(ctx, protocol.CmdReadCurrent)
}

// FetchCommand sends cmd to the station and reads one response frame.
// On a dial failure it triggers rediscovery before reporting ErrConnect;
// a short, unreadable or corrupt frame reports ErrProtocol. The
// connection is closed before returning in every case.
func (c *Client) FetchCommand(ctx context.Context, cmd []byte) ([]byte, error) {
	ep := c.registry.Endpoint()

	dialer := net.Dialer{Timeout: c.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", ep.Addr())
	if err != nil {
		c.logger.Warnf("could not connect to station at %s: %v", ep.Addr(), err)
		c.rediscover(ctx)
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnect, ep.Addr(), err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.config.Timeout))

	if _, err := conn.Write(cmd); err != nil {
		return nil, fmt.Errorf("%w: write command: %v", protocol.ErrProtocol, err)
	}

	buffer := make([]byte, readBufferSize)
	n, err := conn.Read(buffer)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", protocol.ErrProtocol, err)
	}

	frame := buffer[:n]
	if !protocol.Validate(frame) {
		c.logger.Warnf("station at %s returned an invalid frame (%d bytes)", ep.Addr(), n)
		if c.config.RediscoverOnProtocolFailure {
			c.rediscover(ctx)
		}
		return nil, fmt.Errorf("%w: checksum validation failed", protocol.ErrProtocol)
	}

	return frame, nil
}

// rediscover attempts to refresh the station endpoint. A failed locate
// is absorbed: the next fetch simply reuses the unchanged address.
func (c *Client) rediscover(ctx context.Context) {
	if c.locator == nil {
		return
	}

	ep, err := c.locator.Locate(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.logger.Debug("station discovery found no match, keeping current endpoint")
		} else {
			c.logger.Warnf("station discovery failed: %v", err)
		}
		return
	}

	if err := c.registry.Update(ep); err != nil {
		c.logger.Errorf("failed to update station endpoint: %v", err)
	}
}
