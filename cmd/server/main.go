package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"dinein_backend/internal/app"
	"dinein_backend/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Setup(ctx)
	if err != nil {
		log.Fatalf("Failed to setup application: %v", err)
	}
	defer a.Close()

	if a.Observability != nil {
		go func() {
			utils.LogInfo("Observability server starting", map[string]interface{}{"addr": a.Observability.Addr})
			if err := a.Observability.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				utils.LogError(err, "Observability server error")
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		utils.LogInfo("Server starting", map[string]interface{}{"addr": a.API.Addr})
		if err := a.API.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if err := a.Workers.Start(); err != nil {
		utils.LogError(err, "Failed to start workers")
		stop()
	}

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		utils.LogError(err, "Failed to start server")
	}

	utils.LogInfo("Shutting down", map[string]interface{}{"timeout": a.Config.ShutdownDuration.String()})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownDuration)
	defer cancel()

	a.Workers.Stop()
	if err := a.API.Shutdown(shutdownCtx); err != nil {
		utils.LogError(err, "Server shutdown error")
	}
	if a.Observability != nil {
		if err := a.Observability.Shutdown(shutdownCtx); err != nil {
			utils.LogError(err, "Observability server shutdown error")
		}
	}
	utils.LogInfo("Server stopped")
}
