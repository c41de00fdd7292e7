package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tyrowin/roomrelay/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	fmt.Println("Starting RoomRelay server...")

	// Create configuration from environment
	config := server.NewConfigFromEnv()
	server.SetConfig(config)

	// Open the message store: SQLite when a database path is configured,
	// in-memory otherwise
	store, err := openStore(config.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open message store: %v", err)
	}

	// Build the relay and start the hub
	relay := server.NewRelay(store)
	relay.StartHub()

	// Setup routes and create the server
	router := server.SetupRoutes(relay)
	httpServer := server.CreateServer(config.Port, router)

	go func() {
		if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for a termination signal, then drain HTTP and hub in order
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutdown signal received")

	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		log.Printf("HTTP shutdown finished with error: %v", err)
	}
	if err := relay.Hub().Shutdown(shutdownTimeout); err != nil {
		log.Printf("Hub shutdown finished with error: %v", err)
	}

	log.Println("Server exiting")
}

func openStore(databasePath string) (server.MessageStore, error) {
	if databasePath == "" {
		log.Println("DATABASE_PATH not set; using in-memory message store")
		return server.NewMemoryStore(), nil
	}

	log.Printf("Opening SQLite message store at %s", databasePath)
	return server.NewSQLiteStore(databasePath)
}
