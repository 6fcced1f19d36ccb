package protocol

import (
	"errors"
	"reflect"
	"testing"

	"github.com/florianw/stationpoller/internal/schema"
)

// buildFrame returns a zeroed minimum-length frame with a correct checksum
func buildFrame() []byte {
	frame := make([]byte, schema.MinFrameLen)
	frame[0] = 0xff
	frame[1] = 0xff
	frame[schema.ChecksumOffset] = Checksum(frame)
	return frame
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		frame func() []byte
		want  bool
	}{
		{
			name:  "valid zeroed frame",
			frame: buildFrame,
			want:  true,
		},
		{
			name: "valid frame with payload",
			frame: func() []byte {
				frame := buildFrame()
				frame[7] = 0x12
				frame[8] = 0x34
				frame[schema.ChecksumOffset] = Checksum(frame)
				return frame
			},
			want: true,
		},
		{
			name: "checksum wraps mod 256",
			frame: func() []byte {
				frame := buildFrame()
				for i := schema.PayloadStart; i < schema.ChecksumOffset; i++ {
					frame[i] = 0xff
				}
				frame[schema.ChecksumOffset] = Checksum(frame)
				return frame
			},
			want: true,
		},
		{
			name:  "empty frame",
			frame: func() []byte { return nil },
			want:  false,
		},
		{
			name:  "short frame",
			frame: func() []byte { return buildFrame()[:40] },
			want:  false,
		},
		{
			name: "corrupted payload byte",
			frame: func() []byte {
				frame := buildFrame()
				frame[10] ^= 0x01
				return frame
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Validate(tt.frame()); got != tt.want {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateRejectsChecksumBitFlips(t *testing.T) {
	frame := buildFrame()
	for bit := 0; bit < 8; bit++ {
		corrupted := make([]byte, len(frame))
		copy(corrupted, frame)
		corrupted[schema.ChecksumOffset] ^= 1 << bit

		if Validate(corrupted) {
			t.Errorf("Validate() accepted frame with checksum bit %d flipped", bit)
		}
	}
}

func TestDecodeFieldValues(t *testing.T) {
	tests := []struct {
		name  string
		field schema.Field
		bytes []byte
		want  float64
	}{
		{
			name:  "1-byte max value",
			field: schema.Field{Name: "s", Offset: 22, Width: 1, Divisor: 1},
			bytes: []byte{0xff},
			want:  255.0,
		},
		{
			name:  "2-byte signed negative",
			field: schema.Field{Name: "s", Offset: 10, Width: 2, Divisor: 10, Signed: true},
			bytes: []byte{0xff, 0xff},
			want:  -0.1,
		},
		{
			name:  "2-byte unsigned",
			field: schema.Field{Name: "s", Offset: 10, Width: 2, Divisor: 10},
			bytes: []byte{0xff, 0xff},
			want:  6553.5,
		},
		{
			name:  "4-byte unsigned",
			field: schema.Field{Name: "s", Offset: 41, Width: 4, Divisor: 10},
			bytes: []byte{0x00, 0x00, 0x00, 0x64},
			want:  10.0,
		},
		{
			name:  "divisor of one still yields float",
			field: schema.Field{Name: "s", Offset: 32, Width: 2, Divisor: 1, Signed: true},
			bytes: []byte{0x01, 0x68},
			want:  360.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := buildFrame()
			copy(frame[tt.field.Offset:], tt.bytes)
			frame[schema.ChecksumOffset] = Checksum(frame)

			batch, err := Decode(frame, schema.Schema{tt.field}, 1700000000)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if len(batch) != 1 {
				t.Fatalf("Decode() returned %d readings, want 1", len(batch))
			}
			if batch[0].Value != tt.want {
				t.Errorf("Decode() value = %v, want %v", batch[0].Value, tt.want)
			}
			if batch[0].Timestamp != 1700000000 {
				t.Errorf("Decode() timestamp = %v, want 1700000000", batch[0].Timestamp)
			}
		})
	}
}

func TestDecodeIsPure(t *testing.T) {
	frame := buildFrame()
	frame[7] = 0x01
	frame[8] = 0x2c
	frame[schema.ChecksumOffset] = Checksum(frame)

	s := schema.Default()
	first, err := Decode(frame, s, 1700000000)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	second, err := Decode(frame, s, 1700000000)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("Decode() is not deterministic for identical inputs")
	}
	if len(first) != len(s) {
		t.Errorf("Decode() returned %d readings, want %d", len(first), len(s))
	}
	for i, r := range first {
		if r.Name != s[i].Name {
			t.Errorf("reading %d name = %q, want %q (schema order must be preserved)", i, r.Name, s[i].Name)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	s := schema.Default()

	if _, err := Decode([]byte{0xff, 0xff, 0x00}, s, 0); !errors.Is(err, ErrProtocol) {
		t.Errorf("Decode() short frame error = %v, want ErrProtocol", err)
	}

	frame := buildFrame()
	frame[schema.ChecksumOffset] ^= 0xff
	if _, err := Decode(frame, s, 0); !errors.Is(err, ErrProtocol) {
		t.Errorf("Decode() bad checksum error = %v, want ErrProtocol", err)
	}
}
