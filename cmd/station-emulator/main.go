// Command station-emulator emulates a WS980 weather station for
// development and testing: it answers the read-values commands over TCP
// with plausible checksummed frames and responds to UDP locate probes.
package main

import (
	"bytes"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/florianw/stationpoller/internal/protocol"
	"github.com/florianw/stationpoller/internal/schema"
)

// FaultConfig simulates a misbehaving device
type FaultConfig struct {
	BadCRCRate     float64 // Probability of corrupting the checksum (0.0-1.0)
	NoResponseRate float64 // Probability of not answering a command (0.0-1.0)
	TruncateRate   float64 // Probability of sending a truncated frame (0.0-1.0)
}

func main() {
	port := flag.Int("port", 45000, "TCP port to listen on")
	discoveryPort := flag.Int("discovery-port", 46000, "UDP port for locate probes")
	deviceName := flag.String("name", "WS980WiFi", "Device name returned in locate replies")
	badCRC := flag.Float64("bad-crc-rate", 0, "Probability of corrupting the frame checksum")
	noResponse := flag.Float64("no-response-rate", 0, "Probability of ignoring a command")
	truncate := flag.Float64("truncate-rate", 0, "Probability of truncating the response frame")
	flag.Parse()

	faults := FaultConfig{
		BadCRCRate:     *badCRC,
		NoResponseRate: *noResponse,
		TruncateRate:   *truncate,
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", *port))
	if err != nil {
		log.Fatalf("failed to listen on port %d: %v", *port, err)
	}
	log.Printf("station emulator listening on tcp/%d, discovery on udp/%d", *port, *discoveryPort)

	go serveDiscovery(*discoveryPort, *deviceName)

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go handleConn(conn, faults)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	listener.Close()
}

func handleConn(conn net.Conn, faults FaultConfig) {
	defer conn.Close()

	buffer := make([]byte, 64)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	n, err := conn.Read(buffer)
	if err != nil {
		return
	}

	cmd := buffer[:n]
	switch {
	case bytes.Equal(cmd, protocol.CmdReadCurrent),
		bytes.Equal(cmd, protocol.CmdReadMin),
		bytes.Equal(cmd, protocol.CmdReadMax):
	default:
		log.Printf("ignoring unknown command % x", cmd)
		return
	}

	if rand.Float64() < faults.NoResponseRate {
		log.Print("simulating unresponsive device")
		return
	}

	frame := buildFrame()

	if rand.Float64() < faults.BadCRCRate {
		log.Print("simulating corrupted checksum")
		frame[schema.ChecksumOffset] ^= 0xff
	}
	if rand.Float64() < faults.TruncateRate {
		log.Print("simulating truncated frame")
		frame = frame[:schema.MinFrameLen/2]
	}

	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	conn.Write(frame)
}

// buildFrame produces a frame with plausible sensor values for every
// field in the default schema
func buildFrame() []byte {
	frame := make([]byte, schema.MinFrameLen)
	frame[0] = 0xff
	frame[1] = 0xff

	for _, f := range schema.Default() {
		switch f.Width {
		case 1:
			frame[f.Offset] = byte(rand.Intn(100))
		case 2:
			value := int16(rand.Intn(600) - 100) // plausible tenths range
			binary.BigEndian.PutUint16(frame[f.Offset:], uint16(value))
		case 4:
			binary.BigEndian.PutUint32(frame[f.Offset:], uint32(rand.Intn(10000)))
		}
	}

	frame[schema.ChecksumOffset] = protocol.Checksum(frame)
	return frame
}

// serveDiscovery answers locate probes with the device name so the
// poller's rediscovery path can be exercised end to end
func serveDiscovery(port int, deviceName string) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port, IP: net.IPv4zero})
	if err != nil {
		log.Printf("failed to start discovery responder: %v", err)
		return
	}
	defer conn.Close()

	buffer := make([]byte, 64)
	for {
		n, addr, err := conn.ReadFrom(buffer)
		if err != nil {
			return
		}
		if !bytes.Equal(buffer[:n], protocol.CmdLocate) {
			continue
		}
		log.Printf("locate probe from %v", addr)
		conn.WriteTo([]byte(deviceName), addr)
	}
}
