// Package types holds the value types shared by the decoder, sink and poller.
package types

// Reading is one decoded sensor sample.
type Reading struct {
	Name      string
	Timestamp int64
	Value     float64
}

// Batch is the ordered set of readings decoded from one station frame,
// one per schema field. It is produced once and consumed once.
type Batch []Reading
