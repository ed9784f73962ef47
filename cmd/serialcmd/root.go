// cmd/serialcmd/root.go
package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"serial-commander/internal/config"
	"serial-commander/internal/executor"
	"serial-commander/internal/protocol"
	"serial-commander/internal/response"
	"serial-commander/internal/service"
	"serial-commander/internal/utils"
)

// Application holds what a command needs once flags and settings are merged
type Application struct {
	config *config.Config
	logger *zap.Logger
	raw    bool

	service *service.CommandService
	server  *http.Server
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serialcmd [flags] <message>",
		Short: "Send a command to an ESP32 over a serial port",
		Long: `serialcmd writes one command line to an ESP32 attached to a serial port,
waits for its RESPONSE line and prints the decoded reply. Failed attempts are
retried according to the retry settings.`,
		Example: `  serialcmd -p /dev/ttyUSB0 "GPIO_OUTPUT 2 1"
  serialcmd -c ./esp32_config.json --attempts 5 "ADC_INPUT 34"`,
		Version:       version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, args[0])
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringP("port", "p", "", "serial port, overrides esp32_uart_config.default_port")
	flags.IntP("baudrate", "b", 0, "baud rate, overrides esp32_uart_config.baud_rate")
	flags.BoolP("verbose", "v", false, "enable debug logging")
	flags.StringP("config", "c", "", "settings file (default esp32_config.json)")
	flags.Int("attempts", 0, "attempts per command, overrides retry.max_attempts")
	flags.Duration("retry-delay", 0, "pause between attempts, overrides retry.delay")
	flags.Bool("raw", false, "accept replies that match no pattern as raw text")

	cmd.AddCommand(newServeCmd())
	return cmd
}

// loadRuntime reads the settings file and applies the flags the user set
func loadRuntime(cmd *cobra.Command) (*Application, error) {
	flags := cmd.Flags()

	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if flags.Changed("port") {
		cfg.UART.DefaultPort, _ = flags.GetString("port")
	}
	if flags.Changed("baudrate") {
		cfg.UART.BaudRate, _ = flags.GetInt("baudrate")
	}
	if flags.Changed("attempts") {
		cfg.Retry.MaxAttempts, _ = flags.GetInt("attempts")
	}
	if flags.Changed("retry-delay") {
		cfg.Retry.Delay, _ = flags.GetDuration("retry-delay")
	}
	if verbose, _ := flags.GetBool("verbose"); verbose {
		cfg.Logging.Level = "debug"
	}
	raw, _ := flags.GetBool("raw")

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return &Application{config: cfg, logger: logger, raw: raw}, nil
}

// initializeService wires the serial dialer, decoder and executor together
func (app *Application) initializeService() error {
	registry, err := app.config.Registry()
	if err != nil {
		return err
	}

	decoderOpts := []response.DecoderOption{response.WithTerminator(app.config.UART.LineTerminator)}
	if app.raw {
		decoderOpts = append(decoderOpts, response.WithRawFallback())
	}
	decoder := response.NewDecoder(registry, decoderOpts...)
	exec := executor.New(decoder, executor.WithLogger(app.logger))

	sessionCfg := app.config.SessionConfig("")
	policy := app.config.RetryPolicy()
	app.logger.Debug("Command path configured",
		zap.String("port", sessionCfg.Port),
		zap.Int("baud_rate", sessionCfg.BaudRate),
		zap.Int("max_attempts", policy.Attempts()),
		zap.Duration("worst_case_latency", policy.WorstCaseLatency(sessionCfg.Timeout)),
	)

	app.service = service.NewCommandService(
		protocol.NewSerialDialer(app.logger),
		sessionCfg,
		exec,
		policy,
		app.logger,
	)
	return nil
}

func runSend(cmd *cobra.Command, message string) error {
	app, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer utils.CloseLogger(app.logger)

	if err := app.initializeService(); err != nil {
		return err
	}
	defer func() {
		if err := app.service.Close(); err != nil {
			app.logger.Warn("Failed to close serial session", zap.Error(err))
		}
	}()

	port := app.config.UART.DefaultPort
	start := time.Now()
	outcome, err := app.service.Execute(cmd.Context(), message, 0)
	if err != nil {
		printFailure(cmd.ErrOrStderr(), port, message, err)
		return &reportedError{err: err}
	}

	app.logger.Debug("Command completed",
		zap.String("command_id", outcome.CommandID.String()),
		zap.Duration("elapsed", time.Since(start)),
	)
	printSuccess(cmd.OutOrStdout(), port, message, outcome.Line)
	return nil
}
