package message

import "time"

// Info is the per-sample delivery metadata recorded alongside a taken
// payload.
type Info struct {
	// Publisher identifies the writer that produced the sample.
	Publisher Identity
	// Sequence is the writer-assigned sequence number of the sample.
	Sequence int64
	// SourceTimestamp is the time the sample was written, as stamped by the
	// writer. Zero if the writer supplied none.
	SourceTimestamp time.Time
	// ReceivedTimestamp is the local time the sample was handed to the
	// caller.
	ReceivedTimestamp time.Time
}
