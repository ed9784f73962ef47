// cmd/serialcmd/serve.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"serial-commander/internal/routes"
	"serial-commander/internal/utils"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the command API over HTTP",
		Long: `serve keeps one serial session open and accepts commands over HTTP.
Commands are executed one at a time in arrival order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				host, port, err := net.SplitHostPort(addr)
				if err != nil {
					return fmt.Errorf("invalid listen address %q: %w", addr, err)
				}
				app.config.Server.Host, app.config.Server.Port = host, port
			}
			return app.Serve(cmd.Context())
		},
	}

	cmd.Flags().String("addr", "", "listen address host:port, overrides server.host and server.port")
	return cmd
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() {
	routerManager := routes.NewRouter(app.config, app.logger, app.service, version)

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      routerManager.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
	)
}

// Serve runs the HTTP API until ctx is cancelled, then shuts down gracefully
func (app *Application) Serve(ctx context.Context) error {
	defer utils.CloseLogger(app.logger)

	if err := app.initializeService(); err != nil {
		return err
	}
	app.initializeServer()

	serviceLogger := utils.NewServiceLogger(app.logger, "serial-commander")
	serviceLogger.LogServiceStart(version, app.config)

	// The session is reopened on the first command if the device is absent now.
	if err := app.service.Start(ctx); err != nil {
		app.logger.Warn("Device not ready at startup", zap.Error(err))
	}

	serverErr := make(chan error, 1)
	go func() {
		app.logger.Info("Starting HTTP server", zap.String("address", app.server.Addr))
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		app.logger.Error("HTTP server failed", zap.Error(err))
		_ = app.service.Close()
		return fmt.Errorf("http server: %w", err)
	}

	serviceLogger.LogServiceStop("shutdown signal received")
	return app.Shutdown()
}

// Shutdown stops the HTTP server and releases the serial session
func (app *Application) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("Server forced to shutdown", zap.Error(err))
		errs = append(errs, err)
	}
	if err := app.service.Close(); err != nil {
		app.logger.Error("Failed to close serial session", zap.Error(err))
		errs = append(errs, err)
	}

	app.logger.Info("Server shutdown completed")
	return errors.Join(errs...)
}
