package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/cobra"
	"github.com/zfogg/listingboard/internal/models"
	wsproto "github.com/zfogg/listingboard/internal/websocket"
)

var (
	watchSignal string
	watchFor    time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch <kind/owner/listing>",
	Short: "Follow a listing live",
	Long: `Open a WebSocket and print every change of a listing until interrupted.

--signal statistics (default) prints the counts; recommend or favorite print
whether you (the token's user) currently recommend or favor the listing.

Examples:
  listingboard watch job/acme/backend-engineer
  listingboard watch job/acme/backend-engineer --signal favorite --for 1m`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := parseListing(args[0])
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		if watchFor > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, watchFor)
			defer cancel()
		}
		return watch(ctx, ref, watchSignal)
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchSignal, "signal", wsproto.WatchStatistics, "What to follow: statistics, recommend or favorite")
	watchCmd.Flags().DurationVar(&watchFor, "for", 0, "Stop after this long (0 runs until interrupted)")
}

// wsURL turns the API URL into the WebSocket endpoint URL
func wsURL() (string, error) {
	u, err := url.Parse(strings.TrimRight(apiURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid API URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/api/v1/ws"
	if authToken != "" {
		q := u.Query()
		q.Set("token", authToken)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// incoming is a server message with the payload left for later decoding
type incoming struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func watch(ctx context.Context, ref models.ListingRef, signal string) error {
	endpoint, err := wsURL()
	if err != nil {
		return err
	}
	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	req := wsproto.NewMessageWithID(wsproto.MessageTypeWatch, "watch-1", wsproto.WatchPayload{Listing: ref, Signal: signal})
	if err := wsjson.Write(ctx, conn, req); err != nil {
		return fmt.Errorf("failed to send watch: %w", err)
	}

	for {
		var msg incoming
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) != -1 {
				return nil
			}
			return err
		}
		if output == "json" {
			raw, _ := json.Marshal(msg)
			fmt.Println(string(raw))
			continue
		}
		if err := printEvent(ref, msg); err != nil {
			return err
		}
	}
}

func printEvent(ref models.ListingRef, msg incoming) error {
	stamp := time.Now().Format("15:04:05")
	switch msg.Type {
	case wsproto.MessageTypeWatching:
		fmt.Printf("Watching %s (Ctrl-C to stop)\n", ref)
	case wsproto.MessageTypeStatistics:
		var p wsproto.StatisticsPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		fmt.Printf("[%s] recommend=%d favorite=%d click=%d\n", stamp,
			p.Statistics.Recommend.Count, p.Statistics.Favorite.Count, p.Statistics.Click.Count)
	case wsproto.MessageTypeMembership:
		var p wsproto.MembershipPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		fmt.Printf("[%s] %s: %s\n", stamp, p.Signal, yesNo(p.Active))
	case wsproto.MessageTypeError:
		var p wsproto.ErrorPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		return fmt.Errorf("server error %s: %s", p.Code, p.Message)
	}
	return nil
}
