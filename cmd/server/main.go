package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/parley-chat/parley/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A missing .env file is fine; the system environment still applies.
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg := server.NewConfigFromEnv()
	server.SetConfig(cfg)

	room := server.NewRoom()
	httpServer := server.CreateServer(cfg.Addr, room.Routes())

	log.Printf("Parley chat relay listening on %s", cfg.Addr)
	if err := server.RunServer(ctx, httpServer); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
