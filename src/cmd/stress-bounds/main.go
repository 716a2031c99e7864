package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"rodspot/src/config"
	"rodspot/src/grid"
	"rodspot/src/singleinstance"
)

type stressOptions struct {
	n        int
	mode     string
	step     int
	deadline time.Duration
	start    grid.Rect
}

type stressResult struct {
	ok, refused, absent int32
	final               string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := &stressOptions{}
	cmd := newRootCmd(opts, os.Stdout)
	return cmd.Execute()
}

func newRootCmd(opts *stressOptions, out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stress-bounds",
		Short:         "Replay an overlay drag as a burst of BOUNDS requests to the running host",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.mode != "seq" && opts.mode != "burst" {
				return fmt.Errorf("unknown mode %q (want seq or burst)", opts.mode)
			}
			if !opts.start.Valid() {
				return fmt.Errorf("start rectangle %s is empty", opts.start)
			}
			// Load .env so RODSPOT_PORT_* apply before the scan.
			_, _ = config.Load()
			_, err := runWithOptions(cmd.Context(), singleinstance.NewClient(), *opts, out)
			return err
		},
	}

	cmd.Flags().IntVar(&opts.n, "n", 20, "number of moves to send")
	cmd.Flags().StringVar(&opts.mode, "mode", "seq", "seq|burst: one move at a time, or all at once")
	cmd.Flags().IntVar(&opts.step, "step", 10, "pixels the rectangle moves right per request")
	cmd.Flags().DurationVar(&opts.deadline, "deadline", 5*time.Second, "per-request timeout")
	cmd.Flags().IntVar(&opts.start.X, "x", 100, "start x")
	cmd.Flags().IntVar(&opts.start.Y, "y", 100, "start y")
	cmd.Flags().IntVar(&opts.start.Width, "width", 600, "width")
	cmd.Flags().IntVar(&opts.start.Height, "height", 440, "height")

	return cmd
}

func moveRect(start grid.Rect, step, i int) grid.Rect {
	r := start
	r.X += i * step
	return r
}

func runWithOptions(ctx context.Context, client singleinstance.Client, opts stressOptions, out io.Writer) (stressResult, error) {
	var res stressResult
	send := func(i int) {
		rctx, cancel := context.WithTimeout(ctx, opts.deadline)
		defer cancel()
		delegated, err := client.SendBounds(rctx, moveRect(opts.start, opts.step, i))
		switch {
		case err != nil:
			atomic.AddInt32(&res.refused, 1)
		case delegated:
			atomic.AddInt32(&res.ok, 1)
		default:
			atomic.AddInt32(&res.absent, 1)
		}
	}

	start := time.Now()
	if opts.mode == "burst" {
		var wg sync.WaitGroup
		for i := 0; i < opts.n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				send(i)
			}(i)
		}
		wg.Wait()
	} else {
		for i := 0; i < opts.n; i++ {
			send(i)
		}
	}
	elapsed := time.Since(start)

	if int(res.absent) == opts.n {
		return res, errors.New("no running rodspot host")
	}

	sctx, cancel := context.WithTimeout(ctx, opts.deadline)
	defer cancel()
	if _, status, err := client.Status(sctx); err == nil {
		res.final = status
	}
	fmt.Fprintf(out, "launched=%d ok=%d refused=%d absent=%d final=%q elapsed=%s\n",
		opts.n, res.ok, res.refused, res.absent, res.final, elapsed)

	if opts.mode == "seq" && opts.n > 0 && res.ok == int32(opts.n) {
		last := moveRect(opts.start, opts.step, opts.n-1)
		want := fmt.Sprintf("%d %d %d %d", last.X, last.Y, last.Width, last.Height)
		if !strings.HasSuffix(res.final, want) {
			return res, fmt.Errorf("host ended on %q, expected rectangle %s", res.final, want)
		}
	}
	return res, nil
}
