// Command global_mouse_tracker installs a system-wide mouse hook and prints
// one TILE_CLICKED line per press inside the given rectangle.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"rodspot/src/hook"
	"rodspot/src/logutil"
	"rodspot/src/runtimeinit"
	"rodspot/src/tracker"
)

// newAdapter is replaced in tests.
var newAdapter = hook.New

func main() {
	os.Exit(run(context.Background(), os.Args, os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := runWithArgs(ctx, args, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return tracker.ExitCode(err)
}

func runWithArgs(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		args = []string{"global_mouse_tracker"}
	}

	cmd := newRootCmd(stdin, stdout)
	cmd.SetOut(stderr)
	cmd.SetErr(stderr)
	cmd.SetArgs(args[1:])
	return cmd.ExecuteContext(ctx)
}

func newRootCmd(stdin io.Reader, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "global_mouse_tracker <x> <y> <width> <height>",
		Short: "Report global mouse presses as 15x11 grid cells",
		Long: "Installs a system-wide mouse hook and writes\n" +
			"  TILE_CLICKED <col> <row> <x> <y>\n" +
			"to stdout for every press inside the rectangle. Diagnostics go to stderr.\n\n" +
			"Exit codes: 0 clean shutdown, 2 usage, 3 hook unavailable, 4 output or hook lost.",
		SilenceUsage:  true,
		SilenceErrors: true,
		// Positional coordinates may be negative ("-1920"), which pflag would
		// take for shorthand flags.
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && (args[0] == "-h" || args[0] == "--help") {
				return cmd.Help()
			}
			rect, err := tracker.ParseArgs(args)
			if err != nil {
				return err
			}

			cfg, err := runtimeinit.Bootstrap(runtimeinit.Options{SetupLogging: logutil.Setup})
			if err != nil {
				return err
			}

			buttons, err := hook.ParseButtons(cfg.Buttons)
			if err != nil {
				return fmt.Errorf("%w: TRACKER_BUTTONS: %v", tracker.ErrUsage, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
			defer stop()

			opts := tracker.Options{
				Rect:           rect,
				Adapter:        newAdapter(hook.Options{Buttons: buttons}),
				Out:            stdout,
				DebounceRadius: cfg.DebounceRadius,
				DebounceWindow: cfg.DebounceWindow,
			}
			if cfg.ExitOnStdinEOF {
				opts.Stdin = stdin
			}

			log.Printf("global_mouse_tracker: starting for %s", rect)
			return tracker.New(opts).Run(ctx)
		},
	}
}
