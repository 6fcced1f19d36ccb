// Package schema describes the byte layout of the station's sensor payload.
//
// The field table is configuration data, not code: each entry names a
// sensor, where its value sits in the response frame, how wide it is and
// how to scale it. The table must stay in lockstep with the device
// firmware's frame layout.
package schema

import (
	"fmt"

	"github.com/florianw/stationpoller/pkg/config"
)

const (
	// PayloadStart is the first byte covered by the checksum.
	PayloadStart = 2
	// ChecksumOffset is the position of the 8-bit additive checksum.
	ChecksumOffset = 81
	// MinFrameLen is the smallest valid response frame (81 payload bytes
	// plus the checksum byte).
	MinFrameLen = 82
)

// Field describes one sensor value inside the response frame
type Field struct {
	Name    string
	Offset  int
	Width   int
	Divisor float64
	Signed  bool
	Unit    string
}

// Schema is an ordered, immutable set of sensor fields
type Schema []Field

// Default returns the built-in WS980 field map
func Default() Schema {
	return Schema{
		{Name: "temperature.indoor", Offset: 7, Width: 2, Divisor: 10, Signed: true, Unit: "°C"},
		{Name: "temperature.outdoor", Offset: 10, Width: 2, Divisor: 10, Signed: true, Unit: "°C"},
		{Name: "temperature.dewpoint", Offset: 13, Width: 2, Divisor: 10, Signed: true, Unit: "°C"},
		{Name: "temperature.feelslike", Offset: 16, Width: 2, Divisor: 10, Signed: true, Unit: "°C"},
		{Name: "temperature.heatindex", Offset: 19, Width: 2, Divisor: 10, Signed: true, Unit: "°C"},
		{Name: "humidity.indoor", Offset: 22, Width: 1, Divisor: 1, Unit: "%"},
		{Name: "humidity.outdoor", Offset: 24, Width: 1, Divisor: 1, Unit: "%"},
		{Name: "pressure.absolute", Offset: 26, Width: 2, Divisor: 10, Signed: true, Unit: "hPa"},
		{Name: "pressure.relative", Offset: 29, Width: 2, Divisor: 10, Signed: true, Unit: "hPa"},
		{Name: "wind.direction", Offset: 32, Width: 2, Divisor: 1, Signed: true, Unit: "°"},
		{Name: "wind.speed", Offset: 35, Width: 2, Divisor: 10, Signed: true, Unit: "km/h"},
		{Name: "wind.gust", Offset: 38, Width: 2, Divisor: 10, Signed: true, Unit: "km/h"},
		{Name: "rain.rate", Offset: 41, Width: 4, Divisor: 10, Unit: "mm"},
		{Name: "rain.day", Offset: 46, Width: 4, Divisor: 10, Unit: "mm"},
		{Name: "rain.week", Offset: 51, Width: 4, Divisor: 10, Unit: "mm"},
		{Name: "rain.month", Offset: 56, Width: 4, Divisor: 10, Unit: "mm"},
		{Name: "rain.year", Offset: 61, Width: 4, Divisor: 10, Unit: "mm"},
		{Name: "rain.total", Offset: 66, Width: 4, Divisor: 10, Unit: "mm"},
		{Name: "light.irradiance", Offset: 71, Width: 4, Divisor: 10000, Unit: "W/m²"},
		{Name: "light.uv", Offset: 76, Width: 2, Divisor: 10, Signed: true, Unit: "W/m²"},
		{Name: "light.uvindex", Offset: 79, Width: 1, Divisor: 1},
	}
}

// FromConfig builds a schema from a configured sensor list, falling back
// to the built-in map when the list is empty. The result is validated.
func FromConfig(sensors []config.SensorData) (Schema, error) {
	if len(sensors) == 0 {
		s := Default()
		if err := s.Validate(); err != nil {
			return nil, err
		}
		return s, nil
	}

	s := make(Schema, 0, len(sensors))
	for _, sensor := range sensors {
		divisor := sensor.Divisor
		if divisor == 0 {
			divisor = 1
		}
		s = append(s, Field{
			Name:    sensor.Name,
			Offset:  sensor.Offset,
			Width:   sensor.Width,
			Divisor: divisor,
			Signed:  sensor.Signed,
			Unit:    sensor.Unit,
		})
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks every field against the frame layout. It is run once
// at startup; decode trusts the schema afterwards.
func (s Schema) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("schema: no sensor fields defined")
	}

	for i, f := range s {
		if f.Name == "" {
			return fmt.Errorf("schema: field %d has no name", i)
		}
		switch f.Width {
		case 1, 2, 4:
		default:
			return fmt.Errorf("schema: field %q has unsupported width %d (must be 1, 2 or 4)", f.Name, f.Width)
		}
		if f.Divisor <= 0 {
			return fmt.Errorf("schema: field %q has non-positive divisor %v", f.Name, f.Divisor)
		}
		if f.Offset < PayloadStart {
			return fmt.Errorf("schema: field %q offset %d is before payload start", f.Name, f.Offset)
		}
		if f.Offset+f.Width > ChecksumOffset {
			return fmt.Errorf("schema: field %q (offset %d, width %d) extends past payload end", f.Name, f.Offset, f.Width)
		}
	}

	return nil
}
