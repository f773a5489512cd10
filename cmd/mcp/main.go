package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/poem-search-api/internal/server"
)

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	if err := server.Serve(server.SurfaceMCP); err != nil {
		log.Fatalf("MCP API failed: %v", err)
	}
}
