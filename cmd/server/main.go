package main

import (
	"context"
	"log"
	"net/http"

	"github.com/timqwees/delivery-api/internal/config"
	"github.com/timqwees/delivery-api/internal/database"
	"github.com/timqwees/delivery-api/internal/events"
	"github.com/timqwees/delivery-api/internal/router"
	"github.com/timqwees/delivery-api/internal/ws"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("Database ready")

	hub := ws.NewHub()
	go hub.Run()

	// The broker is optional: without AMQP_URL the publisher is a no-op.
	var publisher *events.Publisher
	if cfg.AmqpURL != "" {
		publisher, err = events.Connect(cfg.AmqpURL)
		if err != nil {
			log.Fatalf("connect to broker: %v", err)
		}
		defer publisher.Close()
		log.Println("Connected to message broker")
	}

	queries := database.New(pool)
	r := router.New(cfg, queries, pool, hub, publisher)

	log.Printf("Starting server on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal(err)
	}
}
