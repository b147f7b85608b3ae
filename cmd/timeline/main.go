package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/devricklin/chat-timeline/internal/api"
	"github.com/devricklin/chat-timeline/internal/conf"
	"github.com/devricklin/chat-timeline/internal/data"
	"github.com/devricklin/chat-timeline/internal/service"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := conf.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	loc, err := cfg.Timeline.Location()
	if err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := service.NewMetrics(registry)

	// Initialize repository layer
	repos := data.NewRepositories(data.Options{
		APIURL:       cfg.Chat.APIURL,
		PollsURL:     cfg.Chat.PollsURL,
		WSURL:        cfg.Chat.WSURL,
		Token:        cfg.Chat.Token,
		FetchTimeout: cfg.Timeline.FetchTimeout(),
	})

	// Initialize service layer
	timeline := service.NewTimelineService(repos.Chat, repos.Live, repos.Outbound, service.Options{
		ViewerID:       cfg.Chat.ViewerID,
		PollFetchDelay: cfg.Timeline.PollFetchDelay(),
		Location:       loc,
		Labels:         cfg.Display.ToDayLabels(),
		Metrics:        metrics,
	})
	if cfg.Debug {
		timeline.OnChange(func(v service.View) {
			fmt.Printf("[Timeline] View changed: group=%s loading=%v items=%d days=%d typing=%v\n",
				v.GroupID, v.Loading, len(v.Items), len(v.Days), v.TypingUsers)
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	timeline.Start(ctx)

	if cfg.Chat.GroupID != "" {
		if _, err := timeline.Open(ctx, cfg.Chat.GroupID); err != nil {
			log.Fatalf("Failed to open group %s: %v", cfg.Chat.GroupID, err)
		}
	}

	// Initialize HTTP API server for renderers and timeline-mcp
	apiServer := api.NewServer(timeline, registry, cfg.API.Port)
	go func() {
		if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("[Timeline] API server error: %v\n", err)
		}
	}()

	fmt.Printf("[Timeline] Ready, API on 127.0.0.1:%d (Ctrl+C to exit)\n", apiServer.GetPort())

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down...")
	apiServer.Stop()
	timeline.Stop()
	if err := repos.Close(); err != nil {
		fmt.Printf("[Timeline] Failed to close live connection: %v\n", err)
	}
}
