package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zfogg/listingboard/internal/models"
	"github.com/zfogg/listingboard/internal/util"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// httpClient propagates trace context so CLI calls join the server's traces
var httpClient = &http.Client{
	Timeout:   15 * time.Second,
	Transport: otelhttp.NewTransport(http.DefaultTransport),
}

// parseListing reads a kind/owner/listing argument
func parseListing(arg string) (models.ListingRef, error) {
	parts := strings.Split(strings.Trim(arg, "/"), "/")
	if len(parts) != 3 {
		return models.ListingRef{}, fmt.Errorf("listing must be kind/owner/listing, got %q", arg)
	}
	return models.NewListingRef(parts[0], parts[1], parts[2])
}

func listingURL(ref models.ListingRef, action string) string {
	return fmt.Sprintf("%s/api/v1/listings/%s/%s", strings.TrimRight(apiURL, "/"), ref.String(), action)
}

// call performs one API request and returns the raw body of a 2xx response
func call(method, url string, needsAuth bool) ([]byte, error) {
	if needsAuth && authToken == "" {
		return nil, fmt.Errorf("this command needs a token: pass --token or set LISTINGBOARD_TOKEN")
	}

	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp util.ErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
			return nil, fmt.Errorf("API error %s: %s", errResp.Code, errResp.Message)
		}
		return nil, fmt.Errorf("API error: status %d", resp.StatusCode)
	}
	return body, nil
}

// render prints body as-is in json mode, otherwise hands the decoded value to text
func render[T any](body []byte, text func(T)) error {
	if output == "json" {
		fmt.Println(string(body))
		return nil
	}
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	text(v)
	return nil
}

func printStatistics(ref models.ListingRef, stats models.Statistics) {
	fmt.Printf("\n📊 %s\n", ref)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("Recommendations: %d\n", stats.Recommend.Count)
	fmt.Printf("Favorites:       %d\n", stats.Favorite.Count)
	fmt.Printf("Clicks:          %d\n", stats.Click.Count)
	fmt.Printf("\n")
}
