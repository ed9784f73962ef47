// internal/protocol/port.go
package protocol

//go:generate go tool mockgen -source=port.go -destination=mock_protocol_test.go -package=protocol

import (
	"context"
	"time"
)

// Port is an open serial handle. go.bug.st/serial ports satisfy it.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error

	// SetReadTimeout bounds how long a single Read may block
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	ResetOutputBuffer() error
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
}

// Dialer opens a Port for a session. Dial may block and should respect
// cancellation of ctx.
type Dialer interface {
	Dial(ctx context.Context, cfg SessionConfig) (Port, error)
}
