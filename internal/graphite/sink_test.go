package graphite

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/florianw/stationpoller/internal/types"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// decodeMessage splits a wire message into its declared-length-checked
// payload and unpacks the tuple sequence
func decodeMessage(t *testing.T, message []byte) []metricTuple {
	t.Helper()

	if len(message) < 4 {
		t.Fatalf("message too short: %d bytes", len(message))
	}
	declared := binary.BigEndian.Uint32(message[:4])
	payload := message[4:]
	if int(declared) != len(payload) {
		t.Fatalf("length header = %d, payload is %d bytes", declared, len(payload))
	}

	var tuples []metricTuple
	if err := msgpack.Unmarshal(payload, &tuples); err != nil {
		t.Fatalf("failed to unpack payload: %v", err)
	}
	return tuples
}

func TestEncodeRoundTrip(t *testing.T) {
	batch := types.Batch{
		{Name: "temperature.outdoor", Timestamp: 1700000000, Value: 21.5},
		{Name: "humidity.outdoor", Timestamp: 1700000000, Value: 63},
		{Name: "rain.day", Timestamp: 1700000000, Value: 0.4},
	}

	message, err := Encode(batch, "weather.")
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	tuples := decodeMessage(t, message)
	if len(tuples) != len(batch) {
		t.Fatalf("decoded %d tuples, want %d", len(tuples), len(batch))
	}

	for i, tuple := range tuples {
		if want := "weather." + batch[i].Name; tuple.Path != want {
			t.Errorf("tuple %d path = %q, want %q (batch order must be preserved)", i, tuple.Path, want)
		}
		if tuple.Point.Timestamp != batch[i].Timestamp {
			t.Errorf("tuple %d timestamp = %d, want %d", i, tuple.Point.Timestamp, batch[i].Timestamp)
		}
		if tuple.Point.Value != batch[i].Value {
			t.Errorf("tuple %d value = %v, want %v", i, tuple.Point.Value, batch[i].Value)
		}
	}
}

func TestEncodeEmptyBatch(t *testing.T) {
	message, err := Encode(nil, "weather.")
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	tuples := decodeMessage(t, message)
	if len(tuples) != 0 {
		t.Errorf("decoded %d tuples from an empty batch, want 0", len(tuples))
	}
}

func TestDeliver(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start test collector: %v", err)
	}
	defer listener.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		received <- data
	}()

	host, portStr, _ := net.SplitHostPort(listener.Addr().String())
	port, _ := strconv.Atoi(portStr)

	sink := NewSink(SinkConfig{Hostname: host, Port: port, Timeout: time.Second}, testLogger())

	batch := types.Batch{
		{Name: "temperature.outdoor", Timestamp: 1700000000, Value: -3.2},
	}
	if err := sink.Deliver(context.Background(), batch, "weather."); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	select {
	case message := <-received:
		tuples := decodeMessage(t, message)
		if len(tuples) != 1 || tuples[0].Path != "weather.temperature.outdoor" {
			t.Errorf("collector received unexpected tuples: %+v", tuples)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("collector received nothing")
	}
}

func TestDeliverConnectFailure(t *testing.T) {
	// Reserve a port and close it so nothing is listening
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	host, portStr, _ := net.SplitHostPort(listener.Addr().String())
	port, _ := strconv.Atoi(portStr)
	listener.Close()

	sink := NewSink(SinkConfig{Hostname: host, Port: port, Timeout: 200 * time.Millisecond}, testLogger())

	err = sink.Deliver(context.Background(), nil, "weather.")
	if !errors.Is(err, ErrSend) {
		t.Errorf("Deliver() error = %v, want ErrSend", err)
	}
}
