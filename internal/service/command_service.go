// internal/service/command_service.go
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"serial-commander/internal/executor"
	"serial-commander/internal/protocol"
	"serial-commander/internal/response"
	"serial-commander/internal/utils"
)

var (
	// ErrEmptyCommand is returned for a blank command
	ErrEmptyCommand = errors.New("command is empty")
	// ErrMultilineCommand is returned for a command that would span several wire lines
	ErrMultilineCommand = errors.New("command contains a line break")
)

// CommandOutcome is the result of one successful command
type CommandOutcome struct {
	CommandID uuid.UUID       `json:"command_id"`
	Kind      response.Kind   `json:"kind"`
	Result    response.Result `json:"result"`
	Line      string          `json:"line"`
	Attempts  int             `json:"attempts"`
	Duration  time.Duration   `json:"duration"`
}

// SessionStatus describes the device link owned by the service
type SessionStatus struct {
	Port     string                `json:"port"`
	BaudRate int                   `json:"baud_rate"`
	Open     bool                  `json:"open"`
	Stats    protocol.SessionStats `json:"stats"`
}

// CommandService owns one device session and serializes commands on it.
// The session is opened on first use. A read or write failure on the link
// closes it, and the next command opens a fresh one.
type CommandService struct {
	mu       sync.Mutex
	dialer   protocol.Dialer
	cfg      protocol.SessionConfig
	session  *protocol.Session
	executor *executor.Executor
	policy   executor.RetryPolicy
	logger   *utils.ServiceLogger
}

// NewCommandService creates a new command service instance
func NewCommandService(
	dialer protocol.Dialer,
	cfg protocol.SessionConfig,
	exec *executor.Executor,
	policy executor.RetryPolicy,
	logger *zap.Logger,
) *CommandService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandService{
		dialer:   dialer,
		cfg:      cfg,
		executor: exec,
		policy:   policy,
		logger:   utils.NewServiceLogger(logger, "command-service"),
	}
}

// Start opens the device session ahead of the first command
func (s *CommandService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.ensureSession(ctx)
	return err
}

// Execute sends command to the device. maxAttempts overrides the configured
// attempt count when positive. Errors are validation errors, a
// *protocol.ConnectError, or an *executor.ExecutionError.
func (s *CommandService) Execute(ctx context.Context, command string, maxAttempts int) (*CommandOutcome, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, ErrEmptyCommand
	}
	if strings.ContainsAny(command, "\r\n") {
		return nil, ErrMultilineCommand
	}

	policy := s.policy
	if maxAttempts > 0 {
		policy.MaxAttempts = maxAttempts
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	cmdLogger := utils.NewCommandLogger(s.logger.Logger, id.String(), command)
	cmdLogger.Start(zap.Int("max_attempts", policy.Attempts()))

	start := time.Now()
	reply, err := s.executor.Run(id, session, command, policy)
	if err != nil {
		cmdLogger.Error(err)
		if sessionLost(err) {
			s.logger.Warn("Serial session lost, it will be reopened on the next command",
				zap.String("port", s.cfg.Port),
				zap.Error(err),
			)
			s.dropSession()
		}
		return nil, err
	}
	cmdLogger.Success(
		zap.String("kind", string(reply.Result.Kind())),
		zap.Int("attempts", reply.Attempts),
	)

	return &CommandOutcome{
		CommandID: id,
		Kind:      reply.Result.Kind(),
		Result:    reply.Result,
		Line:      reply.Line,
		Attempts:  reply.Attempts,
		Duration:  time.Since(start),
	}, nil
}

// sessionLost reports whether err means the device link itself failed, as
// opposed to the device answering late or badly.
func sessionLost(err error) bool {
	var execErr *executor.ExecutionError
	if !errors.As(err, &execErr) {
		return false
	}
	if execErr.Kind == executor.Aborted {
		return true
	}

	var (
		readErr  *protocol.ReadError
		writeErr *protocol.WriteError
	)
	switch {
	case errors.As(execErr.Last, &writeErr):
		return true
	case errors.As(execErr.Last, &readErr):
		return !errors.Is(readErr, protocol.ErrLineTooLong)
	}
	return false
}

// Status reports the session state without touching the device
func (s *CommandService) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := SessionStatus{
		Port:     s.cfg.Port,
		BaudRate: s.cfg.BaudRate,
		Open:     s.session.IsOpen(),
	}
	if status.Open {
		status.Stats = s.session.Stats()
	}
	return status
}

// Close releases the device session
func (s *CommandService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.session
	s.session = nil
	return session.Close()
}

// ensureSession must be called with mu held
func (s *CommandService) ensureSession(ctx context.Context) (*protocol.Session, error) {
	if s.session.IsOpen() {
		return s.session, nil
	}

	session, err := protocol.Open(ctx, s.dialer, s.cfg, s.logger.Logger)
	if err != nil {
		return nil, err
	}
	s.session = session
	return session, nil
}

// dropSession must be called with mu held
func (s *CommandService) dropSession() {
	if err := s.session.Close(); err != nil {
		s.logger.Warn("Failed to close lost session", zap.Error(err))
	}
	s.session = nil
}
