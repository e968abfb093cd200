// quotad-mcp exposes a running quotad daemon over the Model Context
// Protocol on stdio, so MCP-capable agents can query their quota.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/quotalab/quotad/pkg/mcp"
)

func main() {
	_ = godotenv.Load()

	apiURL := os.Getenv("QUOTAD_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8095"
	}
	flag.StringVar(&apiURL, "api-url", apiURL, "base URL of the quotad API")
	flag.Parse()

	s := mcp.NewServer(apiURL)
	if err := s.Serve(); err != nil {
		fmt.Fprintf(os.Stderr, "quotad-mcp: %v\n", err)
		os.Exit(1)
	}
}
