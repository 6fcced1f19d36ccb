// Package graphite delivers reading batches to a carbon-style receiver.
//
// The wire format is a 4-byte big-endian payload length followed by a
// msgpack-encoded sequence of [path, [timestamp, value]] tuples, the
// framed-batch contract the collector ingests.
package graphite

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/florianw/stationpoller/internal/types"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// ErrSend indicates the batch could not be delivered to the collector.
var ErrSend = errors.New("collector send error")

// SinkConfig holds the collector connection settings
type SinkConfig struct {
	Hostname string
	Port     int
	Timeout  time.Duration
}

// Sink serializes batches and delivers them over a fresh TCP connection
// per call. Failed batches are dropped; retry policy belongs to the
// caller.
type Sink struct {
	config SinkConfig
	logger *zap.SugaredLogger
}

// metricPoint is the [timestamp, value] half of a metric tuple
type metricPoint struct {
	_msgpack  struct{} `msgpack:",as_array"`
	Timestamp int64
	Value     float64
}

// metricTuple is one [path, [timestamp, value]] entry on the wire
type metricTuple struct {
	_msgpack struct{} `msgpack:",as_array"`
	Path     string
	Point    metricPoint
}

// NewSink creates a collector sink
func NewSink(config SinkConfig, logger *zap.SugaredLogger) *Sink {
	if config.Port == 0 {
		config.Port = 2004
	}
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Second
	}

	return &Sink{
		config: config,
		logger: logger,
	}
}

// Deliver sends one batch to the collector, prefixing every metric path.
// An empty batch still produces a valid (empty-sequence) message.
func (s *Sink) Deliver(ctx context.Context, batch types.Batch, prefix string) error {
	message, err := Encode(batch, prefix)
	if err != nil {
		return fmt.Errorf("%w: encode batch: %v", ErrSend, err)
	}

	addr := net.JoinHostPort(s.config.Hostname, fmt.Sprintf("%d", s.config.Port))
	dialer := net.Dialer{Timeout: s.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrSend, addr, err)
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(s.config.Timeout))

	if _, err := conn.Write(message); err != nil {
		return fmt.Errorf("%w: write to %s: %v", ErrSend, addr, err)
	}

	s.logger.Debugf("delivered %d metrics to collector at %s", len(batch), addr)
	return nil
}

// Encode builds the complete wire message for a batch: length header
// plus serialized tuple sequence, preserving batch order.
func Encode(batch types.Batch, prefix string) ([]byte, error) {
	tuples := make([]metricTuple, 0, len(batch))
	for _, r := range batch {
		tuples = append(tuples, metricTuple{
			Path: prefix + r.Name,
			Point: metricPoint{
				Timestamp: r.Timestamp,
				Value:     r.Value,
			},
		})
	}

	payload, err := msgpack.Marshal(tuples)
	if err != nil {
		return nil, err
	}

	message := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(message[:4], uint32(len(payload)))
	copy(message[4:], payload)

	return message, nil
}
