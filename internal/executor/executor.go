// Package executor runs one logical command against a line transport:
// write, wait for a reply, decode, and retry on failure.
//
// An Execute call is sequential and blocking. Cancellation is expressed only
// through the transport's read timeout, so a call returns within
// RetryPolicy.WorstCaseLatency of that timeout.
package executor

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"serial-commander/internal/protocol"
	"serial-commander/internal/response"
)

// LineTransport is the part of a session the executor drives.
// *protocol.Session implements it.
type LineTransport interface {
	WriteLine(text string) error
	// ReadLineMatching returns the first line match accepts within one read
	// timeout, dropping the others.
	ReadLineMatching(match func(line []byte) bool) ([]byte, error)
}

// Reply is a successful reply: the decoded result and the line as the device
// sent it, without the terminator.
type Reply struct {
	Result   response.Result
	Line     string
	Attempts int
}

// Executor orchestrates command attempts. It holds no per-command state and
// may be shared by callers that each own their transport.
type Executor struct {
	decoder *response.Decoder
	logger  *zap.Logger
	sleep   func(time.Duration)
}

// Option configures an Executor
type Option func(*Executor)

// WithLogger sets the logger attempts are reported to
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithSleep replaces the function used to wait between attempts
func WithSleep(sleep func(time.Duration)) Option {
	return func(e *Executor) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// New creates an executor decoding replies with decoder, or with a default
// decoder when nil.
func New(decoder *response.Decoder, opts ...Option) *Executor {
	if decoder == nil {
		decoder = response.NewDecoder(nil)
	}
	e := &Executor{
		decoder: decoder,
		logger:  zap.NewNop(),
		sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs command under a fresh command ID
func (e *Executor) Execute(t LineTransport, command string, policy RetryPolicy) (response.Result, error) {
	reply, err := e.Run(uuid.New(), t, command, policy)
	if err != nil {
		return nil, err
	}
	return reply.Result, nil
}

// Run sends command until a reply decodes with status OK or the policy's
// attempts are used up. Lines that are not replies are skipped within an
// attempt. Write errors, read timeouts, read errors, decode errors and non-OK
// statuses all count as failed attempts. A closed session aborts immediately.
// The returned error is always an *ExecutionError that wraps the last
// attempt's failure.
func (e *Executor) Run(id uuid.UUID, t LineTransport, command string, policy RetryPolicy) (*Reply, error) {
	logger := e.logger.With(
		zap.String("command_id", id.String()),
		zap.String("command", command),
	)
	maxAttempts := policy.Attempts()
	start := time.Now()

	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 && policy.Delay > 0 {
			e.sleep(policy.Delay)
		}

		result, line, err := e.attempt(t, command)
		if err == nil {
			logger.Info("Command succeeded",
				zap.Int("attempt", attempt),
				zap.String("kind", string(result.Kind())),
				zap.Duration("duration", time.Since(start)),
			)
			return &Reply{
				Result:   result,
				Line:     strings.TrimSpace(string(line)),
				Attempts: attempt,
			}, nil
		}
		last = err

		if errors.Is(err, protocol.ErrSessionClosed) {
			logger.Error("Command aborted", zap.Int("attempt", attempt), zap.Error(err))
			return nil, &ExecutionError{
				Kind:      Aborted,
				CommandID: id,
				Command:   command,
				Attempts:  attempt,
				Last:      err,
			}
		}

		logger.Warn("Command attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.ByteString("raw_line", line),
			zap.Error(err),
		)
	}

	logger.Error("Command failed",
		zap.Int("attempts", maxAttempts),
		zap.Duration("duration", time.Since(start)),
		zap.Error(last),
	)
	return nil, &ExecutionError{
		Kind:      Exhausted,
		CommandID: id,
		Command:   command,
		Attempts:  maxAttempts,
		Last:      last,
	}
}

// attempt is one write-then-read cycle. line is the reply line that was read.
func (e *Executor) attempt(t LineTransport, command string) (response.Result, []byte, error) {
	if err := t.WriteLine(command); err != nil {
		return nil, nil, err
	}

	line, err := t.ReadLineMatching(e.decoder.IsReply)
	if err != nil {
		return nil, nil, err
	}

	result, err := e.decoder.Decode(line)
	if err != nil {
		return nil, line, err
	}
	if result.Kind() != response.KindRaw && result.StatusToken() != response.StatusOK {
		return nil, line, &StatusError{Result: result}
	}
	return result, line, nil
}
