// Package protocol implements the WS980 request/response frame format.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/florianw/stationpoller/internal/schema"
	"github.com/florianw/stationpoller/internal/types"
)

// Commands understood by the station. Each is a complete request frame:
// 2-byte preamble, opcode, length, command id (doubled) and a trailing
// additive checksum.
var (
	CmdReadCurrent = []byte{0xff, 0xff, 0x0b, 0x00, 0x06, 0x04, 0x04, 0x19}
	CmdReadMin     = []byte{0xff, 0xff, 0x0b, 0x00, 0x06, 0x06, 0x06, 0x1d}
	CmdReadMax     = []byte{0xff, 0xff, 0x0b, 0x00, 0x06, 0x05, 0x05, 0x1b}

	// CmdLocate is the UDP broadcast probe the station answers with its
	// identity.
	CmdLocate = []byte{0xff, 0xff, 0x12, 0x00, 0x04, 0x16}
)

// ErrProtocol indicates a malformed, truncated or corrupted frame.
var ErrProtocol = errors.New("protocol error")

// Validate reports whether frame is a complete response with a correct
// checksum: the low byte of the sum of frame[2:81] must equal frame[81].
func Validate(frame []byte) bool {
	if len(frame) < schema.MinFrameLen {
		return false
	}

	var sum uint8
	for _, b := range frame[schema.PayloadStart:schema.ChecksumOffset] {
		sum += b
	}

	return frame[schema.ChecksumOffset] == sum
}

// Checksum computes the additive checksum over the payload region of a
// full-length frame. Used by the emulator and tests to build frames.
func Checksum(frame []byte) uint8 {
	var sum uint8
	for _, b := range frame[schema.PayloadStart:schema.ChecksumOffset] {
		sum += b
	}
	return sum
}

// Decode validates frame and converts it into one reading per schema
// field, in schema order, all stamped with the supplied timestamp.
// Decode has no side effects and never samples the clock itself.
func Decode(frame []byte, s schema.Schema, timestamp int64) (types.Batch, error) {
	if !Validate(frame) {
		if len(frame) < schema.MinFrameLen {
			return nil, fmt.Errorf("%w: frame too short (%d bytes, need %d)", ErrProtocol, len(frame), schema.MinFrameLen)
		}
		return nil, fmt.Errorf("%w: checksum mismatch", ErrProtocol)
	}

	batch := make(types.Batch, 0, len(s))
	for _, f := range s {
		batch = append(batch, types.Reading{
			Name:      f.Name,
			Timestamp: timestamp,
			Value:     decodeField(frame, f),
		})
	}

	return batch, nil
}

func decodeField(frame []byte, f schema.Field) float64 {
	raw := frame[f.Offset : f.Offset+f.Width]

	var value float64
	switch f.Width {
	case 1:
		value = float64(raw[0])
	case 2:
		u := binary.BigEndian.Uint16(raw)
		if f.Signed {
			value = float64(int16(u))
		} else {
			value = float64(u)
		}
	case 4:
		u := binary.BigEndian.Uint32(raw)
		if f.Signed {
			value = float64(int32(u))
		} else {
			value = float64(u)
		}
	}

	return value / f.Divisor
}
