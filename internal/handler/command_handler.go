// internal/handler/command_handler.go
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"serial-commander/internal/executor"
	"serial-commander/internal/protocol"
	"serial-commander/internal/service"
	"serial-commander/internal/utils"
)

// CommandRunner is the device-facing side of the API.
// *service.CommandService implements it.
type CommandRunner interface {
	Execute(ctx context.Context, command string, maxAttempts int) (*service.CommandOutcome, error)
	Status() service.SessionStatus
}

// CommandHandler handles command requests
type CommandHandler struct {
	runner CommandRunner
	logger *utils.ServiceLogger
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(runner CommandRunner, logger *zap.Logger) *CommandHandler {
	return &CommandHandler{
		runner: runner,
		logger: utils.NewServiceLogger(logger, "command-handler"),
	}
}

// CommandRequest is the body of POST /commands
type CommandRequest struct {
	Command     string `json:"command" binding:"required"`
	MaxAttempts int    `json:"max_attempts" binding:"omitempty,min=1,max=20"`
}

// ExecuteCommand sends one command to the device and returns its decoded reply
func (h *CommandHandler) ExecuteCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ValidationErrorResponse(c, err)
		return
	}

	outcome, err := h.runner.Execute(c.Request.Context(), req.Command, req.MaxAttempts)
	if err != nil {
		h.writeError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Command executed successfully", outcome)
}

func (h *CommandHandler) writeError(c *gin.Context, err error) {
	var (
		execErr    *executor.ExecutionError
		connectErr *protocol.ConnectError
		configErr  *protocol.ConfigError
	)

	switch {
	case errors.Is(err, service.ErrEmptyCommand), errors.Is(err, service.ErrMultilineCommand):
		utils.ValidationErrorResponse(c, err)

	case errors.As(err, &connectErr), errors.As(err, &configErr):
		h.logger.Error("Device unavailable", zap.Error(err))
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Device unavailable", err)

	case errors.As(err, &execErr):
		opts := []utils.ErrorOption{utils.WithCommand(execErr.CommandID.String(), execErr.Attempts)}
		var statusErr *executor.StatusError
		if errors.As(err, &statusErr) {
			opts = append(opts, utils.WithLastReply(statusErr.Result))
		}

		statusCode := http.StatusBadGateway
		if errors.Is(err, protocol.ErrReadTimeout) {
			statusCode = http.StatusGatewayTimeout
		}
		utils.ErrorResponse(c, statusCode, "Command failed", err, opts...)

	default:
		h.logger.Error("Command execution failed", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Internal server error", err)
	}
}
