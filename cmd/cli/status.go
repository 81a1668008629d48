package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the health of the ledger server",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := call("GET", strings.TrimRight(apiURL, "/")+"/health", false)
		if err != nil {
			return err
		}
		return render(body, func(health struct {
			Status       string            `json:"status"`
			Dependencies map[string]string `json:"dependencies"`
		}) {
			fmt.Printf("Server: %s\n", health.Status)
			for name, state := range health.Dependencies {
				fmt.Printf("  %-10s %s\n", name, state)
			}
		})
	},
}
