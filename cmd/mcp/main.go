// riskoracle MCP server - exposes the risk oracle as MCP tools for LLMs
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/riskoracle/internal/mcpserver"
)

var Version = "dev"

func main() {
	_ = godotenv.Load()

	cfg := mcpserver.Config{
		APIURL:     envOrDefault("ORACLE_API_URL", "http://localhost:8080"),
		PrivateKey: os.Getenv("ORACLE_PRIVATE_KEY"),
	}

	s, err := mcpserver.NewMCPServer(cfg, Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
	if cfg.PrivateKey == "" {
		fmt.Fprintln(os.Stderr, "ORACLE_PRIVATE_KEY not set, update_risk is disabled")
	}

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
