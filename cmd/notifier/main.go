package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ojachat/ojachat/internal/email"
	"github.com/ojachat/ojachat/internal/infrastructure/kafka"
	"github.com/ojachat/ojachat/internal/notification"
	"github.com/ojachat/ojachat/internal/supabase"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[Notifier] No .env file found, using environment")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Configuration from environment variables
	kafkaBrokers := strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ",")
	kafkaTopic := getEnv("KAFKA_TOPIC", "ojachat-events")
	consumerGroup := "email-notifier" // Dedicated consumer group for email notifications

	smtpHost := getEnv("SMTP_HOST", "localhost")
	smtpPort := getEnv("SMTP_PORT", "1025")
	smtpFrom := getEnv("SMTP_FROM", "orders@ojachat.example.com")

	supabaseURL := os.Getenv("SUPABASE_URL")
	supabaseKey := os.Getenv("SUPABASE_SERVICE_KEY")
	if supabaseURL == "" || supabaseKey == "" {
		log.Fatal("[Notifier] SUPABASE_URL and SUPABASE_SERVICE_KEY environment variables are required")
	}

	log.Println("[Notifier] ========================================")
	log.Println("[Notifier] OjaChat Email Notification Service")
	log.Println("[Notifier] ========================================")
	log.Printf("[Notifier] Kafka: %v", kafkaBrokers)
	log.Printf("[Notifier] Topic: %s", kafkaTopic)
	log.Printf("[Notifier] Group: %s", consumerGroup)
	log.Printf("[Notifier] SMTP: %s:%s", smtpHost, smtpPort)
	log.Printf("[Notifier] From: %s", smtpFrom)

	// Recipient emails come from the profiles table
	client, err := supabase.New(supabase.Config{URL: supabaseURL, APIKey: supabaseKey})
	if err != nil {
		log.Fatalf("[Notifier] Failed to build Supabase client: %v", err)
	}

	emailSvc := email.NewService(smtpHost, smtpPort, smtpFrom)
	handler := notification.NewHandler(emailSvc, notification.NewSupabaseRecipients(client))

	consumer := kafka.NewConsumer(kafkaBrokers, kafkaTopic, consumerGroup)
	defer consumer.Close()

	go func() {
		log.Println("[Notifier] Starting event consumer...")
		if err := consumer.Consume(ctx, handler.HandleEvent); err != nil {
			if ctx.Err() == nil {
				log.Printf("[Notifier] Consumer error: %v", err)
			}
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[Notifier] Shutting down...")
	cancel()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
