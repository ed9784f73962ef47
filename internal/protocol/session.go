// internal/protocol/session.go
package protocol

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// maxLineLength bounds a line buffered without a terminator
	maxLineLength = 4096
	readChunkSize = 256
)

// SessionStats provides session-level I/O counters
type SessionStats struct {
	BytesWritten int64     `json:"bytes_written"`
	BytesRead    int64     `json:"bytes_read"`
	LinesWritten int64     `json:"lines_written"`
	LinesRead    int64     `json:"lines_read"`
	LinesSkipped int64     `json:"lines_skipped"`
	Timeouts     int64     `json:"timeouts"`
	ErrorCount   int64     `json:"error_count"`
	OpenedAt     time.Time `json:"opened_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Session owns one open serial handle and frames its byte stream into
// lines. A session has a single owner and does no locking of its own.
type Session struct {
	cfg     SessionConfig
	port    Port
	logger  *zap.Logger
	pending []byte
	closed  bool
	stats   SessionStats
}

// Open validates cfg, dials the device and prepares the line: DTR and RTS
// are driven low, the settle delay elapses, then both buffers are reset so
// boot output is never read as a reply. Open does not retry.
func Open(ctx context.Context, dialer Dialer, cfg SessionConfig, logger *zap.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dialer == nil {
		return nil, &ConnectError{Port: cfg.Port, Err: ErrNoDialer}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(
		zap.String("protocol", "serial"),
		zap.String("port", cfg.Port),
	)

	logger.Info("Opening serial port",
		zap.Int("baud_rate", cfg.BaudRate),
		zap.Duration("timeout", cfg.Timeout),
	)

	port, err := dialer.Dial(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open serial port", zap.Error(err))
		return nil, &ConnectError{Port: cfg.Port, Err: err}
	}
	if port == nil {
		return nil, &ConnectError{Port: cfg.Port, Err: ErrNilPort}
	}

	if err := prepare(ctx, port, cfg); err != nil {
		logger.Error("Failed to prepare serial port", zap.Error(err))
		if closeErr := port.Close(); closeErr != nil {
			logger.Warn("Failed to close serial port after setup error", zap.Error(closeErr))
		}
		return nil, &ConnectError{Port: cfg.Port, Err: err}
	}

	now := time.Now()
	logger.Info("Serial port opened successfully", zap.Duration("settle_delay", cfg.SettleDelay))
	return &Session{
		cfg:    cfg,
		port:   port,
		logger: logger,
		stats:  SessionStats{OpenedAt: now, LastActivity: now},
	}, nil
}

func prepare(ctx context.Context, port Port, cfg SessionConfig) error {
	if err := port.SetDTR(false); err != nil {
		return fmt.Errorf("failed to clear DTR: %w", err)
	}
	if err := port.SetRTS(false); err != nil {
		return fmt.Errorf("failed to clear RTS: %w", err)
	}

	if cfg.SettleDelay > 0 {
		timer := time.NewTimer(cfg.SettleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if err := port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("failed to reset input buffer: %w", err)
	}
	if err := port.ResetOutputBuffer(); err != nil {
		return fmt.Errorf("failed to reset output buffer: %w", err)
	}
	return nil
}

// WithSession opens a session, runs fn and closes the session on every
// return path. A close failure is reported only when fn succeeded.
func WithSession(ctx context.Context, dialer Dialer, cfg SessionConfig, logger *zap.Logger, fn func(*Session) error) (err error) {
	s, err := Open(ctx, dialer, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(s)
}

// Config returns the settings the session was opened with
func (s *Session) Config() SessionConfig {
	return s.cfg
}

// IsOpen returns whether the session still owns its handle
func (s *Session) IsOpen() bool {
	return s != nil && !s.closed && s.port != nil
}

// Stats returns a snapshot of the I/O counters
func (s *Session) Stats() SessionStats {
	return s.stats
}

// WriteLine discards any unread input, then writes text followed by the
// terminator in full. It does not retry.
func (s *Session) WriteLine(text string) error {
	if !s.IsOpen() {
		return ErrSessionClosed
	}

	s.pending = s.pending[:0]
	if err := s.port.ResetInputBuffer(); err != nil {
		s.stats.ErrorCount++
		return &WriteError{Err: fmt.Errorf("failed to discard stale input: %w", err)}
	}

	data := []byte(text + s.cfg.Terminator)
	n, err := s.port.Write(data)
	if err != nil {
		s.stats.ErrorCount++
		s.logger.Debug("Serial write failed", zap.Error(err))
		return &WriteError{Err: err}
	}
	if n != len(data) {
		s.stats.ErrorCount++
		return &WriteError{Err: fmt.Errorf("%w: wrote %d of %d bytes", ErrShortWrite, n, len(data))}
	}

	s.stats.BytesWritten += int64(n)
	s.stats.LinesWritten++
	s.stats.LastActivity = time.Now()

	s.logger.Debug("Serial write completed", zap.Int("bytes", n))
	return nil
}

// ReadLine blocks until a full line arrives or the configured timeout
// elapses. The returned line excludes the terminator. On timeout any partial
// line is dropped and ErrReadTimeout is returned.
func (s *Session) ReadLine() ([]byte, error) {
	return s.ReadLineMatching(nil)
}

// ReadLineMatching is ReadLine for the first line match accepts. Lines match
// rejects are logged and dropped; all of them share one timeout. A nil match
// accepts every line.
func (s *Session) ReadLineMatching(match func(line []byte) bool) ([]byte, error) {
	if !s.IsOpen() {
		return nil, ErrSessionClosed
	}

	deadline := time.Now().Add(s.cfg.Timeout)
	buf := make([]byte, readChunkSize)

	for {
		if line, ok := s.takeLine(); ok {
			s.stats.LastActivity = time.Now()
			if match != nil && !match(line) {
				s.stats.LinesSkipped++
				s.logger.Debug("Skipping unsolicited line", zap.ByteString("line", line))
				continue
			}
			s.stats.LinesRead++
			return line, nil
		}
		if len(s.pending) > maxLineLength {
			s.pending = s.pending[:0]
			s.stats.ErrorCount++
			return nil, &ReadError{Err: fmt.Errorf("%w: more than %d bytes without terminator", ErrLineTooLong, maxLineLength)}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			if len(s.pending) > 0 {
				s.logger.Debug("Dropping partial line", zap.ByteString("partial", s.pending))
			}
			s.pending = s.pending[:0]
			s.stats.Timeouts++
			return nil, ErrReadTimeout
		}

		if err := s.port.SetReadTimeout(remaining); err != nil {
			s.stats.ErrorCount++
			return nil, &ReadError{Err: fmt.Errorf("failed to set read timeout: %w", err)}
		}

		n, err := s.port.Read(buf)
		if n > 0 {
			s.pending = append(s.pending, buf[:n]...)
			s.stats.BytesRead += int64(n)
		}
		if err != nil {
			s.pending = s.pending[:0]
			s.stats.ErrorCount++
			return nil, &ReadError{Err: err}
		}
	}
}

// takeLine removes the first complete line from the pending buffer
func (s *Session) takeLine() ([]byte, bool) {
	term := []byte(s.cfg.Terminator)
	idx := bytes.Index(s.pending, term)
	if idx < 0 {
		return nil, false
	}

	line := make([]byte, idx)
	copy(line, s.pending[:idx])
	rest := s.pending[idx+len(term):]
	s.pending = append(s.pending[:0], rest...)
	return line, true
}

// Close releases the handle exactly once. Closing a nil, never-opened or
// already closed session is a no-op.
func (s *Session) Close() error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true
	s.pending = nil

	port := s.port
	s.port = nil
	if port == nil {
		return nil
	}

	if err := port.Close(); err != nil {
		s.logger.Error("Failed to close serial port", zap.Error(err))
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	s.logger.Info("Serial port closed successfully")
	return nil
}
