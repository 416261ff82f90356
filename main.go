package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heiftools/heifconv/internal/api"
	"github.com/heiftools/heifconv/internal/codec"
	"github.com/heiftools/heifconv/internal/core"
	"github.com/heiftools/heifconv/internal/watcher"
)

var version = "0.3.0"

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// libvips backs every conversion; bring it up before the first run.
	codec.Startup()
	defer codec.Shutdown()

	// Initialize the core application components
	app, err := core.New(version)
	if err != nil {
		log.Fatalf("Fatal error during application setup: %v", err)
	}
	defer app.Close()

	// Watch mode: convert automatically when new HEIC files settle in
	// the input directory.
	if app.Config.Watch.Enabled {
		watchSvc := watcher.New(app.Controller, app.Config)
		if err := watchSvc.Start(); err != nil {
			log.Printf("Warning: could not start input watcher: %v", err)
		} else {
			defer watchSvc.Stop()
		}
	}

	// Setup the API server
	server := api.NewServer(app)
	addr := fmt.Sprintf(":%d", app.Config.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Router(),
	}

	// --- Graceful Shutdown ---
	// Start the server in a goroutine so it doesn't block.
	go func() {
		log.Printf("Starting web server on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not start server: %v", err)
		}
	}()

	// Wait for an interrupt signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Stop an active run and let the pool drain before exiting.
	app.Controller.Cancel()
	<-app.Controller.Done()

	// Create a context with a timeout to allow existing connections to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Attempt a graceful shutdown.
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting.")
}
