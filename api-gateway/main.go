// api-gateway/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"kmusic-audio-api/adapters"
	"kmusic-audio-api/gateway"
	"kmusic-audio-api/jobs"
	"kmusic-audio-api/shared"
)

var (
	configPath string
	workers    int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "api-gateway",
		Short: "Accept audio uploads and report background job status",
		RunE:  run,
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "YAML config file (default $CONFIG_FILE)")
	rootCmd.Flags().IntVar(&workers, "workers", -1,
		"workers to run in this process; -1 runs MAX_WORKERS when the broker is in-memory and none otherwise")

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := shared.LoadConfig(configPath)
	if err != nil {
		return err
	}
	log.Printf("API Gateway starting on port %s", cfg.APIGatewayPort)

	storage, err := shared.NewFileStorage(cfg.UploadFolder, cfg.StemsFolder)
	if err != nil {
		return err
	}
	hostname, _ := os.Hostname()
	backends, err := shared.OpenBackends(cfg, "api-"+hostname)
	if err != nil {
		return err
	}
	defer backends.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	embedded := workers
	if embedded < 0 {
		embedded = 0
		if backends.InProcessBroker() {
			embedded = cfg.MaxWorkers
		}
	}
	poolDone := make(chan struct{})
	if embedded > 0 {
		registry := adapters.Simulated(storage, cfg.SimulatedDelay, nil)
		pool := jobs.NewPool(backends.Store, backends.Queue, registry, embedded, nil)
		go func() {
			defer close(poolDone)
			if err := pool.Run(ctx); err != nil {
				log.Printf("ERROR: Embedded worker pool stopped: %v", err)
			}
		}()
	} else {
		close(poolDone)
		if backends.InProcessBroker() {
			log.Println("WARN: In-memory broker with no embedded workers; submitted jobs will stay PENDING.")
		}
	}

	dispatcher := jobs.NewDispatcher(backends.Store, backends.Queue, storage, nil)
	reporter := jobs.NewReporter(backends.Store, cfg.UnknownTaskAsPending)
	limiter := shared.NewRateLimiter(cfg.RateLimitRPM, backends.Redis)
	server := gateway.NewServer(cfg, dispatcher, reporter, limiter, nil)

	srv := &http.Server{
		Addr:              ":" + cfg.APIGatewayPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Printf("API Gateway Server running on http://localhost:%s", cfg.APIGatewayPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		stop()
		<-poolDone
		return errors.Wrap(err, "server failed")
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: Server forced to shutdown: %v", err)
	}
	select {
	case <-poolDone:
	case <-shutdownCtx.Done():
		log.Println("WARN: Timed out waiting for in-flight jobs.")
	}
	log.Println("Server exited")
	return nil
}
