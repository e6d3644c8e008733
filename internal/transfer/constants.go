package transfer

import "time"

// Wire constants
const (
	// ChunkSize is the maximum payload carried by one chunk message.
	ChunkSize = 16 * 1024

	// SeqSize is the length of the big-endian sequence number prefix.
	SeqSize = 4

	// DoneMarker ends a transfer.
	DoneMarker = "DONE"

	FallbackName     = "unknown"
	FallbackMimeType = "application/octet-stream"
)

// Flow control thresholds, in bytes buffered on the channel.
const (
	HighWaterMark = 64 * 1024
	LowWaterMark  = 32 * 1024
)

// DrainTimeout bounds how long the sender waits for the channel to flush
// before the session is torn down.
const DrainTimeout = 30 * time.Second
