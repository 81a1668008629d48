package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zfogg/listingboard/internal/telemetry"
	"github.com/zfogg/listingboard/internal/util"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var (
	authToken string
	apiURL    string = "http://localhost:8787"
	output    string = "text" // "text" or "json"

	tracerProvider *sdktrace.TracerProvider
)

var rootCmd = &cobra.Command{
	Use:   "listingboard",
	Short: "Listingboard CLI - Inspect and drive listing interactions",
	Long: `Listingboard CLI talks to the interaction ledger over HTTP and WebSocket.
Read statistics, toggle recommendations and favorites, record clicks and
watch a listing change live.

Listings are written as kind/owner/listing, e.g. job/acme/backend-engineer.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if authToken == "" {
			authToken = os.Getenv("LISTINGBOARD_TOKEN")
		}
		// Optional: export client spans next to the server's
		endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		if endpoint == "" {
			endpoint = "localhost:4318"
		}
		tp, err := telemetry.InitTracer(cmd.Context(), telemetry.Config{
			ServiceName:  "listingboard-cli",
			OTLPEndpoint: endpoint,
			Enabled:      util.ParseBool(os.Getenv("OTEL_ENABLED"), false),
			SamplingRate: 1.0,
		})
		if err == nil {
			tracerProvider = tp
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if tracerProvider != nil {
			_ = tracerProvider.Shutdown(context.Background())
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "Authentication token (defaults to LISTINGBOARD_TOKEN env var)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", apiURL, "API server URL")
	rootCmd.PersistentFlags().StringVar(&output, "output", output, "Output format: text or json")

	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(favoriteCmd)
	rootCmd.AddCommand(clickCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
