package cmd

import (
	"context"
	"fmt"

	"example.com/lifeline/agent/config"
	"example.com/lifeline/agent/internal/database"
	"example.com/lifeline/agent/internal/repositories"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var queueStatusFilter string

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the event queue",
	Long: `Operator commands for the durable event queue: list events with
their error detail, retry a rejected event, dismiss an event permanently,
or show aggregate counts.`,
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued events",
	RunE: func(cmd *cobra.Command, args []string) error {
		queue, err := openQueue()
		if err != nil {
			return err
		}

		events, err := queue.List(context.Background(), queueStatusFilter, 100)
		if err != nil {
			return err
		}

		for _, event := range events {
			line := fmt.Sprintf("%s  %-20s %-9s retries=%d/%d",
				event.ClientEventID, event.EventType, event.Status,
				event.RetryCount, event.MaxRetries)
			if event.ErrorCode != nil {
				line += fmt.Sprintf("  error=%s", *event.ErrorCode)
			}
			if event.ErrorMessage != nil {
				line += fmt.Sprintf(" (%s)", *event.ErrorMessage)
			}
			fmt.Println(line)
		}
		fmt.Printf("%d event(s)\n", len(events))

		return nil
	},
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry <client-event-id>",
	Short: "Reset a rejected event for another delivery attempt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid event id: %w", err)
		}

		queue, err := openQueue()
		if err != nil {
			return err
		}

		if err := queue.Retry(context.Background(), id); err != nil {
			return err
		}

		fmt.Println("event queued for retry")
		return nil
	},
}

var queueDismissCmd = &cobra.Command{
	Use:   "dismiss <client-event-id>",
	Short: "Permanently remove an event from the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid event id: %w", err)
		}

		queue, err := openQueue()
		if err != nil {
			return err
		}

		if err := queue.Dismiss(context.Background(), id); err != nil {
			return err
		}

		fmt.Println("event dismissed")
		return nil
	},
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate queue counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		queue, err := openQueue()
		if err != nil {
			return err
		}

		stats, err := queue.Stats(context.Background())
		if err != nil {
			return err
		}

		fmt.Printf("pending:  %d\naccepted: %d\nrejected: %d\n",
			stats.Pending, stats.Accepted, stats.Rejected)
		return nil
	},
}

func init() {
	queueListCmd.Flags().StringVar(&queueStatusFilter, "status", "", "filter by status (PENDING, PUSHING, ACCEPTED, REJECTED, DUPLICATE)")
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueRetryCmd)
	queueCmd.AddCommand(queueDismissCmd)
	queueCmd.AddCommand(queueStatsCmd)
	rootCmd.AddCommand(queueCmd)
}

func openQueue() (*repositories.QueueRepository, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, err
	}

	db, err := database.Open(cfg.DB)
	if err != nil {
		return nil, err
	}

	return repositories.NewQueueRepository(db, cfg.Sync.MaxRetries), nil
}
