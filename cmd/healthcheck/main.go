// Command healthcheck checks the relay's HTTP surface for container health
// checks. It exits 0 when the endpoint answers 200 and 1 otherwise.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"time"
)

func main() {
	def := os.Getenv("HEALTHCHECK_URL")
	if def == "" {
		def = "http://localhost:8080/healthz"
	}
	url := flag.String("url", def, "health URL (use /readyz to require a joined channel and a connected feed)")
	timeout := flag.Duration("timeout", 3*time.Second, "request timeout")
	flag.Parse()

	os.Exit(check(*url, *timeout))
}

func check(url string, timeout time.Duration) int {
	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		return 1
	}
	resp, err := client.Do(req)
	if err != nil {
		return 1
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}
