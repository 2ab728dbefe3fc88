// worker/main.go
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

	"github.com/gorilla/mux"
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
		Use:   "worker",
		Short: "Consume audio jobs from the broker and run them",
		RunE:  run,
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "YAML config file (default $CONFIG_FILE)")
	rootCmd.Flags().IntVar(&workers, "workers", 0, "max concurrent jobs (default MAX_WORKERS)")

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := shared.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if workers > 0 {
		cfg.MaxWorkers = workers
	}
	log.Printf("Worker Service starting on port %s with %d max concurrent jobs", cfg.WorkerPort, cfg.MaxWorkers)

	if shared.IsMemoryURL(cfg.BrokerURL) || shared.IsMemoryURL(cfg.BackendURL) {
		return errors.New("a standalone worker needs Redis BROKER_URL and RESULT_BACKEND_URL; " +
			"with in-memory backends run api-gateway with embedded workers instead")
	}

	storage, err := shared.NewFileStorage(cfg.UploadFolder, cfg.StemsFolder)
	if err != nil {
		return err
	}
	hostname, _ := os.Hostname()
	backends, err := shared.OpenBackends(cfg, fmt.Sprintf("worker-%s-%d", hostname, os.Getpid()))
	if err != nil {
		return err
	}
	defer backends.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := adapters.Simulated(storage, cfg.SimulatedDelay, nil)
	log.Printf("INFO: Registered adapters: %v", registry.Kinds())
	pool := jobs.NewPool(backends.Store, backends.Queue, registry, cfg.MaxWorkers, nil)

	// --- Worker Service HTTP Endpoints (health checks) ---
	r := mux.NewRouter()
	r.HandleFunc("/health", handleHealth(pool)).Methods(http.MethodGet)
	srv := &http.Server{Addr: ":" + cfg.WorkerPort, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Printf("Worker Service running on http://localhost:%s", cfg.WorkerPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("ERROR: Health server failed: %v", err)
		}
	}()

	// Run blocks until a signal arrives and in-flight jobs have finished.
	if err := pool.Run(ctx); err != nil {
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: Health server forced to shutdown: %v", err)
	}
	log.Println("Worker exited")
	return nil
}

// handleHealth: Basic health check for the Worker Service
func handleHealth(pool *jobs.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		message := "Worker Service is healthy and consuming from queue."
		if pool.Active() == pool.Size() {
			message = "Worker Service is healthy but all workers are currently busy."
		}
		gateway.WriteJSON(w, http.StatusOK, map[string]string{
			"status":         "ok",
			"message":        message,
			"active_workers": pool.String(),
		})
	}
}
