package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	timelinemcp "github.com/devricklin/chat-timeline/internal/mcp"
	"github.com/devricklin/chat-timeline/mcpserver"
)

// This MCP server runs over stdio and relays tool calls to the HTTP API
// of a running timeline process.

func main() {
	// stdout carries the protocol
	log.SetOutput(os.Stderr)

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	apiURL := os.Getenv("TIMELINE_API_URL")
	if apiURL == "" {
		port := os.Getenv("API_PORT")
		if port == "" {
			port = "9877"
		}
		apiURL = fmt.Sprintf("http://127.0.0.1:%s", port)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	handler := timelinemcp.NewHandler(timelinemcp.NewClient(apiURL))
	server := mcpserver.NewServer(handler)

	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("MCP server error: %v", err)
	}
}
