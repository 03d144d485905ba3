package clientcmd

import (
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillmq/quill/internal/queue"
	queuesvc "github.com/quillmq/quill/internal/services/queues"
)

// NewQueueCommand builds the `quill queue` command tree.
func NewQueueCommand() *cobra.Command {
	queueCmd := &cobra.Command{Use: "queue", Short: "Queue management"}
	queueCmd.AddCommand(newQueueCreateCmd())
	queueCmd.AddCommand(newQueueListCmd())
	queueCmd.AddCommand(newQueueDeleteCmd())
	queueCmd.AddCommand(newQueuePurgeCmd())
	queueCmd.AddCommand(newQueueStatsCmd())
	queueCmd.AddCommand(newQueueWatchCmd())
	return queueCmd
}

func newQueueCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a queue (idempotent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			kind, _ := cmd.Flags().GetString("kind")
			visMs, _ := cmd.Flags().GetInt64("visibility-ms")
			retMs, _ := cmd.Flags().GetInt64("retention-ms")
			dedupMs, _ := cmd.Flags().GetInt64("dedup-window-ms")
			dlq, _ := cmd.Flags().GetString("dlq")
			maxReceive, _ := cmd.Flags().GetInt("max-receive")

			req := queuesvc.CreateQueueRequest{
				Name:                name,
				Kind:                kind,
				VisibilityTimeoutMs: visMs,
				RetentionPeriodMs:   retMs,
				DedupWindowMs:       dedupMs,
			}
			if dlq != "" {
				req.Redrive = &queue.RedrivePolicy{TargetQueue: dlq, MaxReceiveCount: maxReceive}
			}
			var cfg queue.Config
			if err := postJSON("/v1/queues/create", req, &cfg); err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
	cmd.Flags().String("name", "", "Queue name (FIFO queues must end in .fifo)")
	cmd.Flags().String("kind", "", "Queue kind: standard|fifo")
	cmd.Flags().Int64("visibility-ms", 0, "Default visibility timeout in ms")
	cmd.Flags().Int64("retention-ms", 0, "Message retention period in ms")
	cmd.Flags().Int64("dedup-window-ms", 0, "FIFO deduplication window in ms")
	cmd.Flags().String("dlq", "", "Dead-letter target queue")
	cmd.Flags().Int("max-receive", 5, "Receives before dead-lettering (with --dlq)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newQueueListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queues with their counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix, _ := cmd.Flags().GetString("prefix")
			var res struct {
				Queues []queuesvc.QueueAttributes `json:"queues"`
			}
			q := url.Values{}
			if prefix != "" {
				q.Set("prefix", prefix)
			}
			if err := getJSON("/v1/queues", q, &res); err != nil {
				return err
			}
			return printJSON(res.Queues)
		},
	}
	cmd.Flags().String("prefix", "", "Only queues whose name starts with this prefix")
	return cmd
}

func newQueueDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a queue and all of its data",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if err := postJSON("/v1/queues/delete", map[string]string{"name": name}, nil); err != nil {
				return err
			}
			fmt.Println("deleted", name)
			return nil
		},
	}
	cmd.Flags().String("name", "", "Queue name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newQueuePurgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove all messages from a queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if err := postJSON("/v1/queues/purge", map[string]string{"name": name}, nil); err != nil {
				return err
			}
			fmt.Println("purged", name)
			return nil
		},
	}
	cmd.Flags().String("name", "", "Queue name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func fetchStats(name string) (queuesvc.QueueAttributes, error) {
	var attrs queuesvc.QueueAttributes
	q := url.Values{}
	q.Set("name", name)
	err := getJSON("/v1/queues/attributes", q, &attrs)
	return attrs, err
}

func newQueueStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show a queue's configuration and counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			attrs, err := fetchStats(name)
			if err != nil {
				return err
			}
			return printJSON(attrs)
		},
	}
	cmd.Flags().String("name", "", "Queue name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newQueueWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll a queue's counters until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			intervalMs, _ := cmd.Flags().GetInt64("interval-ms")
			if intervalMs <= 0 {
				intervalMs = 1000
			}

			stopCh := make(chan os.Signal, 1)
			signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)
			ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
			defer ticker.Stop()

			for {
				attrs, err := fetchStats(name)
				if err != nil {
					return err
				}
				fmt.Printf("%s  available=%d inFlight=%d delayed=%d\n",
					time.Now().Format(time.TimeOnly),
					attrs.Stats.Available, attrs.Stats.InFlight, attrs.Stats.Delayed)
				select {
				case <-stopCh:
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().String("name", "", "Queue name")
	cmd.Flags().Int64("interval-ms", 1000, "Poll interval in ms")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
