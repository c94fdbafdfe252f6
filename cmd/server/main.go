package main

import (
	"context"
	"log"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"github.com/Tyrowin/roomchat/internal/server"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log.Println("Starting RoomChat server...")

	server.SetConfig(server.NewConfigFromEnv())
	config := server.CurrentConfig()

	log.Printf("Allowed origins: %v", config.AllowedOrigins)
	log.Printf("Keeping the last %d messages per room", config.HistoryLimit)

	hub := server.NewHub()
	server.StartHub(hub)

	httpServer := server.CreateServer(config.Port, server.SetupRoutes(hub))

	go func() {
		if err := server.StartServer(httpServer); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				return server.ShutdownServer(ctx, httpServer)
			},
			"hub": func(_ context.Context) error {
				return hub.Shutdown(shutdownTimeout)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}
