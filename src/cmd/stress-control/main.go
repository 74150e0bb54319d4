package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"game-overlay/src/config"
	"game-overlay/src/control"
)

type stressOptions struct {
	n        int
	command  string
	deadline time.Duration
}

type sender interface {
	Send(ctx context.Context, command string, args ...string) (string, error)
}

type result struct {
	ok, missing, failed int32
	elapsed             time.Duration
}

func (r result) String() string {
	return fmt.Sprintf("ok=%d no-resident=%d err=%d elapsed=%s", r.ok, r.missing, r.failed, r.elapsed)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := &stressOptions{}
	cmd := newRootCmd(opts)
	return cmd.Execute()
}

func newRootCmd(opts *stressOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stress-control",
		Short:         "Stress test the resident control port with concurrent clients",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			client := control.NewClient(cfg.PortStart, cfg.PortEnd)
			return report(cmd.OutOrStdout(), opts.n, stress(client, *opts))
		},
	}

	cmd.Flags().IntVar(&opts.n, "n", 50, "number of clients to launch")
	cmd.Flags().StringVar(&opts.command, "command", control.CmdCount, "read-only command each client sends (COUNT, LIST, STATUS)")
	cmd.Flags().DurationVar(&opts.deadline, "deadline", 5*time.Second, "per-client timeout")

	return cmd
}

func report(w io.Writer, n int, r result) error {
	fmt.Fprintf(w, "launched=%d %s\n", n, r)
	if r.failed > 0 {
		return fmt.Errorf("%d of %d requests failed", r.failed, n)
	}
	return nil
}

// stress fires opts.n concurrent requests and tallies the outcomes.
func stress(client sender, opts stressOptions) result {
	var wg sync.WaitGroup
	var r result

	start := time.Now()
	for i := 0; i < opts.n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), opts.deadline)
			defer cancel()
			_, err := client.Send(ctx, opts.command)
			switch {
			case err == nil:
				atomic.AddInt32(&r.ok, 1)
			case errors.Is(err, control.ErrNoResident):
				atomic.AddInt32(&r.missing, 1)
			default:
				atomic.AddInt32(&r.failed, 1)
			}
		}()
	}
	wg.Wait()
	r.elapsed = time.Since(start)
	return r
}
