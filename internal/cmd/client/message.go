package clientcmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	queuesvc "github.com/quillmq/quill/internal/services/queues"
)

// NewSendCommand builds the producer shell: `quill send`.
func NewSendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message to a queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			queueName, _ := cmd.Flags().GetString("queue")
			body, _ := cmd.Flags().GetString("body")
			group, _ := cmd.Flags().GetString("group")
			dedupKey, _ := cmd.Flags().GetString("dedup-key")
			delayMs, _ := cmd.Flags().GetInt64("delay-ms")
			strAttrs, _ := cmd.Flags().GetStringArray("attr")
			numAttrs, _ := cmd.Flags().GetStringArray("num-attr")

			attrs, err := parseAttrs(strAttrs, numAttrs)
			if err != nil {
				return err
			}
			req := queuesvc.SendRequest{
				Queue: queueName,
				SendEntry: queuesvc.SendEntry{
					Body:       body,
					Attributes: attrs,
					Group:      group,
					DedupKey:   dedupKey,
					DelayMs:    delayMs,
				},
			}
			var res queuesvc.SendResult
			if err := postJSON("/v1/messages/send", req, &res); err != nil {
				return err
			}
			fmt.Println(res.ID)
			return nil
		},
	}
	cmd.Flags().String("queue", "", "Queue name")
	cmd.Flags().String("body", "", "Message body")
	cmd.Flags().String("group", "", "Message group (required for FIFO queues)")
	cmd.Flags().String("dedup-key", "", "Deduplication key (FIFO queues)")
	cmd.Flags().Int64("delay-ms", 0, "Delivery delay in ms")
	cmd.Flags().StringArray("attr", nil, "String attribute key=value (repeatable)")
	cmd.Flags().StringArray("num-attr", nil, "Number attribute key=value (repeatable)")
	_ = cmd.MarkFlagRequired("queue")
	_ = cmd.MarkFlagRequired("body")
	return cmd
}

// NewReceiveCommand builds the consumer shell: `quill receive`.
func NewReceiveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Receive messages from a queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			queueName, _ := cmd.Flags().GetString("queue")
			max, _ := cmd.Flags().GetInt("max")
			waitMs, _ := cmd.Flags().GetInt64("wait-ms")
			visMs, _ := cmd.Flags().GetInt64("visibility-ms")
			ack, _ := cmd.Flags().GetBool("ack")
			loop, _ := cmd.Flags().GetBool("loop")

			stopCh := make(chan os.Signal, 1)
			signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)

			for {
				var res struct {
					Messages []queuesvc.ReceivedMessage `json:"messages"`
				}
				err := postJSON("/v1/messages/receive", queuesvc.ReceiveRequest{
					Queue:               queueName,
					Max:                 max,
					VisibilityTimeoutMs: visMs,
					WaitMs:              waitMs,
				}, &res)
				if err != nil {
					return err
				}
				for _, m := range res.Messages {
					if err := printJSON(m); err != nil {
						return err
					}
					if ack {
						err := postJSON("/v1/messages/delete", queuesvc.DeleteRequest{
							Queue:         queueName,
							ReceiptHandle: m.ReceiptHandle,
						}, nil)
						if err != nil {
							return err
						}
					}
				}
				if !loop {
					return nil
				}
				select {
				case <-stopCh:
					return nil
				default:
				}
			}
		},
	}
	cmd.Flags().String("queue", "", "Queue name")
	cmd.Flags().Int("max", 1, "Maximum messages per receive (1-10)")
	cmd.Flags().Int64("wait-ms", 0, "Long-poll wait in ms")
	cmd.Flags().Int64("visibility-ms", 0, "Visibility timeout override in ms")
	cmd.Flags().Bool("ack", false, "Delete each message after printing it")
	cmd.Flags().Bool("loop", false, "Keep receiving until interrupted")
	_ = cmd.MarkFlagRequired("queue")
	return cmd
}

// NewPeekCommand builds `quill peek`, which lists messages without leasing.
func NewPeekCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peek",
		Short: "List available messages without leasing them",
		RunE: func(cmd *cobra.Command, args []string) error {
			queueName, _ := cmd.Flags().GetString("queue")
			limit, _ := cmd.Flags().GetInt("limit")
			filter, _ := cmd.Flags().GetString("filter")

			var res struct {
				Messages []queuesvc.ReceivedMessage `json:"messages"`
			}
			err := postJSON("/v1/messages/peek", queuesvc.PeekRequest{
				Queue:  queueName,
				Limit:  limit,
				Filter: filter,
			}, &res)
			if err != nil {
				return err
			}
			return printJSON(res.Messages)
		},
	}
	cmd.Flags().String("queue", "", "Queue name")
	cmd.Flags().Int("limit", 10, "Maximum messages to list")
	cmd.Flags().String("filter", "", `CEL filter, e.g. 'attrs["tier"] == "vip"'`)
	_ = cmd.MarkFlagRequired("queue")
	return cmd
}
