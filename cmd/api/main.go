package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ojachat/ojachat/internal/admin"
	"github.com/ojachat/ojachat/internal/api"
	"github.com/ojachat/ojachat/internal/auth"
	"github.com/ojachat/ojachat/internal/gate"
	"github.com/ojachat/ojachat/internal/infrastructure/kafka"
	"github.com/ojachat/ojachat/internal/order"
	"github.com/ojachat/ojachat/internal/relay"
	"github.com/ojachat/ojachat/internal/stats"
	"github.com/ojachat/ojachat/internal/supabase"
	"github.com/ojachat/ojachat/internal/voice"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[API] No .env file found, using environment")
	}

	// Configuration from environment variables
	supabaseURL := os.Getenv("SUPABASE_URL")
	supabaseKey := os.Getenv("SUPABASE_ANON_KEY")
	if supabaseURL == "" || supabaseKey == "" {
		log.Fatal("[API] SUPABASE_URL and SUPABASE_ANON_KEY environment variables are required")
	}
	jwtSecret := os.Getenv("SUPABASE_JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("[API] SUPABASE_JWT_SECRET environment variable is required")
	}
	relayURL := getEnv("CHAT_RELAY_URL", "http://localhost:8090/chat")
	relayKey := os.Getenv("CHAT_RELAY_API_KEY")
	kafkaBrokers := strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ",")
	kafkaTopic := getEnv("KAFKA_TOPIC", "ojachat-events")
	stateDir := getEnv("STATE_DIR", "./data")
	addr := getEnv("LISTEN_ADDR", ":8080")
	statsDSN := os.Getenv("STATS_DATABASE_URL")
	auditDSN := os.Getenv("AUDIT_DATABASE_URL")

	log.Println("[API] ========================================")
	log.Println("[API] OjaChat API")
	log.Println("[API] ========================================")
	log.Printf("[API] Supabase: %s", supabaseURL)
	log.Printf("[API] Kafka: %v (topic %s)", kafkaBrokers, kafkaTopic)
	log.Printf("[API] State dir: %s", stateDir)

	client, err := supabase.New(supabase.Config{URL: supabaseURL, APIKey: supabaseKey})
	if err != nil {
		log.Fatalf("[API] Failed to build Supabase client: %v", err)
	}

	// Initialize Kafka producer
	producer := kafka.NewProducer(kafkaBrokers, kafkaTopic)
	defer producer.Close()

	// Subscription gate backed by Supabase, cached for a minute per user
	g := gate.New(gate.NewSupabaseSource(client), time.Minute)

	sender := relay.NewClient(relayURL, relayKey, nil)
	states := api.NewStateRegistry(stateDir, sender)

	orders := order.NewService(client, producer)

	// Admin dashboard reads projected stats; without a stats DSN it falls
	// back to in-process memory (empty unless this process also projects).
	var statsStore stats.Store
	if statsDSN != "" {
		pg, err := stats.OpenPostgres(statsDSN)
		if err != nil {
			log.Fatalf("[API] Failed to connect to stats store: %v", err)
		}
		defer pg.Close()
		statsStore = pg
		log.Println("[API] Stats: PostgreSQL")
	} else {
		statsStore = stats.NewMemoryStore()
		log.Println("[API] Stats: in-memory (no STATS_DATABASE_URL)")
	}
	adminSvc := admin.NewService(client, statsStore)

	var audit *admin.AuditWriter
	if auditDSN != "" {
		audit, err = admin.OpenAuditWriter(auditDSN)
		if err != nil {
			log.Fatalf("[API] Failed to open audit writer: %v", err)
		}
		defer audit.Close()
		log.Println("[API] Audit log: enabled")
	}

	handlers := api.NewHandlers(states, g, orders, adminSvc, producer, audit)
	authHandlers := api.NewAuthHandlers(client)

	voiceCfg := voice.Config{
		AgentID: os.Getenv("ELEVENLABS_AGENT_ID"),
		APIKey:  os.Getenv("ELEVENLABS_API_KEY"),
	}
	voiceHandlers := api.NewVoiceHandlers(api.NewSessionDialer(voiceCfg), states, handlers)

	router := api.NewRouter(handlers, authHandlers, voiceHandlers, auth.NewValidator(jwtSecret))

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Printf("[API] Server started on %s", addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[API] Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[API] Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
	authHandlers.Close()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
