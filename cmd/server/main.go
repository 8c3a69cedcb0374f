/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the commission engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env and environment configuration
  2. Parse command-line flags (flags win over env)
  3. Initialize SQLite store
  4. Load the compensation plan and persist the initial structure version
  5. Configure HTTP router and pool scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: env API_PORT or 8080)
  -db      SQLite database path (default: env DB_PATH)
           Use ":memory:" for an in-memory database
  -plan    Compensation plan JSON path (default: env PLAN_PATH)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the pool scheduler (waits for a running cycle)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/commission.db"

  # Run with in-memory database
  ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Pool distribution scheduler
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/commission-engine/api"
	"github.com/warp/commission-engine/config"
	"github.com/warp/commission-engine/factory"
	"github.com/warp/commission-engine/store/sqlite"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	// Flags (override env)
	port := flag.String("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	planPath := flag.String("plan", cfg.PlanPath, "compensation plan JSON path")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Load the compensation plan
	structure, activation, err := factory.NewPlanFactory().LoadPlan(*planPath)
	if err != nil {
		log.Fatalf("Failed to load plan: %v", err)
	}

	// Initialize handler and processor
	handler := api.NewHandler(store)
	handler.Processor.SetActivation(activation)
	handler.Processor.MaxDepth = cfg.MaxUplineDepth

	// Persist the initial structure version if none exists yet
	ctx := context.Background()
	if current, err := store.CurrentStructure(ctx); err != nil {
		log.Fatalf("Failed to read structure: %v", err)
	} else if current == nil {
		version, err := store.SaveStructure(ctx, structure)
		if err != nil {
			log.Fatalf("Failed to save initial structure: %v", err)
		}
		log.Printf("[Main] Saved initial structure version %d", version)
	}

	// Pool distribution scheduler
	scheduler := api.NewPoolScheduler(handler.Processor, cfg.PoolCron)
	scheduler.Enabled = cfg.PoolEnabled
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start pool scheduler: %v", err)
	}
	defer scheduler.Stop()

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Commission engine starting on http://localhost:%s", *port)
		log.Printf("📊 API available at http://localhost:%s/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
