// internal/protocol/serial_dialer.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// SerialDialer opens UART devices with go.bug.st/serial
type SerialDialer struct {
	logger *zap.Logger
}

// NewSerialDialer creates a dialer for local serial devices
func NewSerialDialer(logger *zap.Logger) *SerialDialer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SerialDialer{logger: logger.With(zap.String("dialer", "serial"))}
}

// Dial opens cfg.Port as 8N1 at cfg.BaudRate with DTR and RTS low
func (d *SerialDialer) Dial(ctx context.Context, cfg SessionConfig) (Port, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
		InitialStatusBits: &serial.ModemOutputBits{
			DTR: false,
			RTS: false,
		},
	}

	d.logger.Debug("Opening serial device",
		zap.String("port", cfg.Port),
		zap.Int("baud_rate", cfg.BaudRate),
	)

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, classifyOpenError(err)
	}
	return port, nil
}

// classifyOpenError tags an open failure with the matching sentinel while
// keeping the driver error in the chain.
func classifyOpenError(err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortNotFound:
			return fmt.Errorf("%w: %w", ErrDeviceNotFound, err)
		case serial.PermissionDenied:
			return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		case serial.PortBusy:
			return fmt.Errorf("%w: %w", ErrDeviceInUse, err)
		}
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", ErrDeviceNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	return err
}
