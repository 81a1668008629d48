package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zfogg/listingboard/internal/models"
)

var statsCmd = &cobra.Command{
	Use:   "stats <kind/owner/listing>",
	Short: "Show the statistics of a listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := parseListing(args[0])
		if err != nil {
			return err
		}
		body, err := call("GET", listingURL(ref, "statistics"), false)
		if err != nil {
			return err
		}
		return render(body, func(stats models.Statistics) { printStatistics(ref, stats) })
	},
}

var recommendCmd = &cobra.Command{
	Use:   "recommend <kind/owner/listing>",
	Short: "Toggle your recommendation of a listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return toggle(args[0], "recommend", "recommended", "Recommended", "Recommendation withdrawn")
	},
}

var favoriteCmd = &cobra.Command{
	Use:   "favorite <kind/owner/listing>",
	Short: "Toggle a listing in your favorites",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return toggle(args[0], "favorite", "favorited", "Added to favorites", "Removed from favorites")
	},
}

var clickCmd = &cobra.Command{
	Use:   "click <kind/owner/listing>",
	Short: "Record that you opened a listing",
	Long: `Record a click. Each user is counted once per listing; repeating the
command reports that nothing new was recorded.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := parseListing(args[0])
		if err != nil {
			return err
		}
		body, err := call("POST", listingURL(ref, "click"), true)
		if err != nil {
			return err
		}
		return render(body, func(resp struct {
			Recorded bool `json:"recorded"`
		}) {
			if resp.Recorded {
				fmt.Printf("✓ Click recorded on %s\n", ref)
			} else {
				fmt.Printf("Click on %s was already recorded\n", ref)
			}
		})
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <kind/owner/listing>",
	Short: "Show whether you recommend or favor a listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := parseListing(args[0])
		if err != nil {
			return err
		}
		for _, check := range []struct{ action, field, label string }{
			{"recommended", "recommended", "Recommended"},
			{"favorited", "favorited", "Favorited"},
		} {
			body, err := call("GET", listingURL(ref, check.action), false)
			if err != nil {
				return err
			}
			if err := render(body, func(resp map[string]bool) {
				fmt.Printf("%-12s %s\n", check.label+":", yesNo(resp[check.field]))
			}); err != nil {
				return err
			}
		}
		return nil
	},
}

func toggle(arg, action, field, on, off string) error {
	ref, err := parseListing(arg)
	if err != nil {
		return err
	}
	body, err := call("POST", listingURL(ref, action), true)
	if err != nil {
		return err
	}
	return render(body, func(resp map[string]any) {
		if active, _ := resp[field].(bool); active {
			fmt.Printf("✓ %s: %s\n", on, ref)
		} else {
			fmt.Printf("✓ %s: %s\n", off, ref)
		}
	})
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
