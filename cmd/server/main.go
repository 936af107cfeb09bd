/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Shelfwise circulation engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Create API handler with dependencies
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port          HTTP server port (default: 8080)
  -db            SQLite database path (default: library.db)
                 Use ":memory:" for in-memory database
  -config        Optional JSON policy file (see config package)
  -term-days     Default loan term in days (default: 14)
  -horizon-days  Max days ahead a due date may fall (default: 30)
  -fine-rate     Daily overdue fine, decimal string (default: 2.00)

  Explicit flags win over the config file.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/library.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Longer loan terms, cheaper fines
  ./server -term-days=21 -fine-rate=0.50

  # Rules from a JSON file
  ./server -config=./policy.json

ENVIRONMENT:
  No environment variables currently. All config via flags.
  Future: DATABASE_URL, PORT, LOG_LEVEL

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
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

	"github.com/shelfwise/circulation-engine/api"
	"github.com/shelfwise/circulation-engine/circulation"
	"github.com/shelfwise/circulation-engine/config"
	"github.com/shelfwise/circulation-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "library.db", "SQLite database path")
	configPath := flag.String("config", "", "JSON policy file (optional)")
	termDays := flag.Int("term-days", circulation.DefaultLoanPolicy().TermDays, "default loan term in days")
	horizonDays := flag.Int("horizon-days", circulation.DefaultLoanPolicy().HorizonDays, "max days ahead a due date may fall")
	fineRate := flag.String("fine-rate", circulation.DefaultFineSchedule().DailyRate.StringFixed(2), "daily overdue fine")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	// Explicit flags win over the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "term-days":
			cfg.Loan.TermDays = *termDays
		case "horizon-days":
			cfg.Loan.HorizonDays = *horizonDays
		case "fine-rate":
			cfg.Fines.DailyRate = *fineRate
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid circulation rules: %v", err)
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize handler
	handler := api.NewHandler(store, circulation.SystemClock{}, cfg.LoanPolicy(), cfg.FineSchedule())

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("📚 Circulation engine starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
