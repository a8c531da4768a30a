// main.go
package main

import (
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jthorne/uk-schools-mcp/cache"
	"github.com/jthorne/uk-schools-mcp/config"
	"github.com/jthorne/uk-schools-mcp/handlers"
	"github.com/jthorne/uk-schools-mcp/services"
)

func main() {
	// stdout belongs to the MCP stdio transport; everything else goes to stderr.
	log.SetOutput(os.Stderr)
	log.Println("Starting UK Schools MCP server...")

	// .env is optional; it only overrides endpoints and the cache dir.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment overrides from .env")
	}

	if err := config.LoadConfig(os.Getenv("UKSCHOOLS_CONFIG")); err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	cfg := config.AppConfig
	log.Printf("Configuration loaded. Cache dir: %s, stale fallback: %v", cfg.Cache.Dir, cfg.Cache.StaleFallback)

	store, err := cache.Open(cfg.Cache.Dir, cfg.Cache.StaleFallback)
	if err != nil {
		log.Fatalf("Error opening cache store: %v", err)
	}

	apiClient := &http.Client{Timeout: cfg.HTTP.Timeout}
	downloadClient := &http.Client{Timeout: cfg.HTTP.DownloadTimeout}

	deps := handlers.Deps{
		GIAS:      services.NewGIASService(store, downloadClient),
		Ofsted:    services.NewOfstedService(store, downloadClient),
		EES:       services.NewEESService(apiClient),
		Postcodes: services.NewPostcodeService(apiClient),
	}

	s := server.NewMCPServer(cfg.Server.Name, cfg.Server.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	handlers.Register(s, deps)

	log.Printf("Serving %s %s over stdio", cfg.Server.Name, cfg.Server.Version)
	if err := server.ServeStdio(s); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
