package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/vibast-solutions/ms-go-mailer/app/dto"
	"github.com/vibast-solutions/ms-go-mailer/app/queue"
	"github.com/vibast-solutions/ms-go-mailer/config"

	"github.com/spf13/cobra"
)

// queueAdmin is what the queue subcommands need from queue.EmailQueue.
type queueAdmin interface {
	Enqueue(ctx context.Context, payload queue.EmailPayload, opts ...queue.Option) (*queue.JobHandle, error)
	GetStats(ctx context.Context) (queue.Stats, error)
	PauseQueue(ctx context.Context) error
	ResumeQueue(ctx context.Context) error
	ClearFailedJobs(ctx context.Context) (int, error)
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Administer the email queue",
}

var enqueueRequest dto.SendEmailRequest

func init() {
	enqueueCmd.Flags().StringVar(&enqueueRequest.To, "to", "", "recipient address")
	enqueueCmd.Flags().StringVar(&enqueueRequest.Subject, "subject", "", "subject line")
	enqueueCmd.Flags().StringVar(&enqueueRequest.HTML, "html", "", "HTML body")
	enqueueCmd.Flags().StringVar(&enqueueRequest.Text, "text", "", "plain text body")

	queueCmd.AddCommand(
		newQueueCommand("stats", "Print job counts per state", runStats),
		newQueueCommand("pause", "Stop workers from claiming new jobs", runPause),
		newQueueCommand("resume", "Let workers claim jobs again", runResume),
		newQueueCommand("clear-failed", "Remove all failed jobs", runClearFailed),
		enqueueCmd,
	)
	rootCmd.AddCommand(queueCmd)
}

var enqueueCmd = newQueueCommand("enqueue", "Queue an email for delivery", func(ctx context.Context, q queueAdmin) (interface{}, error) {
	return runEnqueue(ctx, q, enqueueRequest)
})

func newQueueCommand(use string, short string, run func(ctx context.Context, q queueAdmin) (interface{}, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := run(ctx, a.queue)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func runStats(ctx context.Context, q queueAdmin) (interface{}, error) {
	return q.GetStats(ctx)
}

func runPause(ctx context.Context, q queueAdmin) (interface{}, error) {
	if err := q.PauseQueue(ctx); err != nil {
		return nil, err
	}
	return map[string]bool{"paused": true}, nil
}

func runResume(ctx context.Context, q queueAdmin) (interface{}, error) {
	if err := q.ResumeQueue(ctx); err != nil {
		return nil, err
	}
	return map[string]bool{"paused": false}, nil
}

func runClearFailed(ctx context.Context, q queueAdmin) (interface{}, error) {
	n, err := q.ClearFailedJobs(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]int{"cleared": n}, nil
}

func runEnqueue(ctx context.Context, q queueAdmin, req dto.SendEmailRequest) (interface{}, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid email: %w", err)
	}
	handle, err := q.Enqueue(ctx, req.Payload(), req.QueueOptions()...)
	if err != nil {
		return nil, err
	}
	return map[string]string{"job_id": handle.ID}, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
