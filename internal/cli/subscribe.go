package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/TreasuredLabs/TreasuredLabs/internal/app"
)

var (
	subscribeSubscriber    string
	subscribeKinds         []string
	subscribeMinConfidence float64
	subscribePriority      string
	subscribeTTL           time.Duration
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe <contract>",
	Short: "Subscribe a recipient to alerts for a contract",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if subscribeSubscriber == "" {
			return fmt.Errorf("--subscriber is required")
		}

		return getApp().Subscribe(cmd.Context(), app.SubscribeOptions{
			SubscriberID:  subscribeSubscriber,
			ContractID:    args[0],
			Kinds:         subscribeKinds,
			MinConfidence: subscribeMinConfidence,
			Priority:      subscribePriority,
			TTL:           subscribeTTL,
		})
	},
}

var unsubscribeCmd = &cobra.Command{
	Use:   "unsubscribe <subscription-id>",
	Short: "Remove a subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Unsubscribe(cmd.Context(), args[0])
	},
}

func init() {
	subscribeCmd.Flags().StringVar(&subscribeSubscriber, "subscriber", "", "Recipient id (e.g. Telegram chat id)")
	subscribeCmd.Flags().StringSliceVar(&subscribeKinds, "kinds", nil, "Alert kinds to receive (defaults to all)")
	subscribeCmd.Flags().Float64Var(&subscribeMinConfidence, "min-confidence", 0, "Suppress alerts below this confidence")
	subscribeCmd.Flags().StringVar(&subscribePriority, "priority", "", "Delivery priority tier: low, normal, or high")
	subscribeCmd.Flags().DurationVar(&subscribeTTL, "ttl", 0, "Expire the subscription after this duration")
}
