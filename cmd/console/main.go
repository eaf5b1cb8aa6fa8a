package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/jwebster45206/dialogue-engine/internal/apiclient"
)

func main() {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("console", flag.ExitOnError)
	apiURL := fs.String("api", getEnv("API_BASE_URL", "http://localhost:8080"), "base URL of the dialogue engine API")
	sessionID := fs.String("session", "", "resume an existing session by ID")
	_ = fs.Parse(os.Args[1:])

	api := apiclient.New(*apiURL, 30*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err := api.Ping(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not connect to API at %s: %v\nTry: go run ./cmd/api\n", *apiURL, err)
		os.Exit(1)
	}

	p := tea.NewProgram(NewConsoleUI(api, *sessionID),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
