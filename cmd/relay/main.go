package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ojachat/ojachat/internal/relay"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[Relay] No .env file found, using environment")
	}

	workflowURL := os.Getenv("WORKFLOW_WEBHOOK_URL")
	if workflowURL == "" {
		log.Fatal("[Relay] WORKFLOW_WEBHOOK_URL environment variable is required")
	}
	// Bcrypt hash of the shared API key; empty leaves the relay open.
	apiKeyHash := os.Getenv("RELAY_API_KEY_HASH")
	addr := getEnv("LISTEN_ADDR", ":8090")

	log.Println("[Relay] ========================================")
	log.Println("[Relay] OjaChat Relay")
	log.Println("[Relay] ========================================")
	log.Printf("[Relay] Workflow: %s", workflowURL)
	if apiKeyHash == "" {
		log.Println("[Relay] Warning: no RELAY_API_KEY_HASH set, key check disabled")
	}

	handler := relay.NewHandler(workflowURL, apiKeyHash, nil)

	server := &http.Server{
		Addr:    addr,
		Handler: handler.Router(),
	}

	go func() {
		log.Printf("[Relay] Server started on %s", addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[Relay] Server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[Relay] Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
