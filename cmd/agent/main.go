package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/scentcraft/printflow/internal/agent"
)

func main() {
	apiURL := flag.String("api-url", "", "URL of the print server API (e.g. http://server:8080)")
	apiKey := flag.String("api-key", "", "API key for this printer agent")
	queueDir := flag.String("queue-dir", "./queue", "local directory for downloaded jobs")
	pollInterval := flag.Duration("poll-interval", 10*time.Second, "interval between job polls")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: failed to load .env: %v", err)
	}

	if *apiURL == "" {
		*apiURL = os.Getenv("PRINTFLOW_API_URL")
	}
	if *apiKey == "" {
		*apiKey = os.Getenv("PRINTFLOW_API_KEY")
	}

	a, err := agent.New(agent.Config{
		APIURL:       *apiURL,
		APIKey:       *apiKey,
		QueueDir:     *queueDir,
		PollInterval: *pollInterval,
	})
	if err != nil {
		log.Fatalf("Failed to configure agent: %v", err)
	}

	if err := a.Start(); err != nil {
		log.Fatalf("Failed to start agent: %v", err)
	}
	log.Printf("Agent running, queue dir %s", *queueDir)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down")
	a.Stop()
}
