package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"rodspot/src/bounds"
	"rodspot/src/config"
	"rodspot/src/display"
	"rodspot/src/eventloop"
	"rodspot/src/grid"
	"rodspot/src/logutil"
	"rodspot/src/runtimeinit"
	"rodspot/src/singleinstance"
	"rodspot/src/supervisor"
)

// defaultRect matches the overlay's first-run placement.
var defaultRect = grid.Rect{X: 100, Y: 100, Width: 600, Height: 440}

type rectOptions struct {
	x, y, width, height int
	display             int
}

type mainOptions struct {
	rect        rectOptions
	jsonOutput  bool
	trackerPath string
	boundsFile  string
	snapshotOut string
}

func main() {
	if err := runWithArgs(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"rodspot"}
	}
	cmd := newRootCmd(&mainOptions{}, os.Stdout)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *mainOptions, out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rodspot",
		Short: "Track clicks on a 15x11 grid laid over a screen rectangle",
		Long: "Runs the resident host: spawns the global mouse tracker for the rectangle and\n" +
			"prints every grid cell clicked. Rectangle priority: --x/--y/--width/--height,\n" +
			"then --display, then the saved bounds, then 100,100 600x440.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResident(cmd, opts, out)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.trackerPath, "tracker", "", "Path to the global_mouse_tracker binary")
	cmd.PersistentFlags().StringVar(&opts.boundsFile, "bounds-file", "", "Path to the saved bounds JSON file")
	addRectFlags(cmd.Flags(), &opts.rect)
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print events as JSON lines")

	cmd.AddCommand(newBoundsCmd(opts, out), newStatusCmd(out), newSnapshotCmd(opts, out))
	return cmd
}

func addRectFlags(fs *pflag.FlagSet, r *rectOptions) {
	fs.IntVar(&r.x, "x", defaultRect.X, "Left edge in virtual-desktop pixels")
	fs.IntVar(&r.y, "y", defaultRect.Y, "Top edge in virtual-desktop pixels")
	fs.IntVar(&r.width, "width", defaultRect.Width, "Width in pixels")
	fs.IntVar(&r.height, "height", defaultRect.Height, "Height in pixels")
	fs.IntVar(&r.display, "display", -1, "Cover the whole display with this index (0 is primary)")
}

type rectLoader interface {
	Load() (grid.Rect, bool, error)
}

// resolveRect applies the priority explicit flags > --display > saved bounds >
// default. It returns the rectangle and where it came from.
func resolveRect(fs *pflag.FlagSet, r rectOptions, saved rectLoader, displayBounds func(int) (grid.Rect, error)) (grid.Rect, string, error) {
	if fs.Changed("x") || fs.Changed("y") || fs.Changed("width") || fs.Changed("height") {
		rect := grid.Rect{X: r.x, Y: r.y, Width: r.width, Height: r.height}
		if !rect.Valid() {
			return grid.Rect{}, "", fmt.Errorf("width and height must be positive (got %dx%d)", r.width, r.height)
		}
		return rect, "flags", nil
	}
	if fs.Changed("display") {
		rect, err := displayBounds(r.display)
		if err != nil {
			return grid.Rect{}, "", fmt.Errorf("display %d: %w", r.display, err)
		}
		return rect, fmt.Sprintf("display %d", r.display), nil
	}
	if saved != nil {
		rect, ok, err := saved.Load()
		if err != nil {
			log.Printf("Ignoring saved bounds: %v", err)
		} else if ok {
			return rect, "saved", nil
		}
	}
	return defaultRect, "default", nil
}

func bootstrap(opts *mainOptions) (*config.Config, error) {
	return runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions: config.LoadOptions{
			TrackerPathOverride: opts.trackerPath,
			BoundsFileOverride:  opts.boundsFile,
		},
		SetupLogging: logutil.Setup,
		LogDisplays:  true,
	})
}

func runResident(cmd *cobra.Command, opts *mainOptions, out io.Writer) error {
	cfg, err := bootstrap(opts)
	if err != nil {
		return err
	}

	// ---------- SINGLE-INSTANCE PRE-FLIGHT ----------
	if port, ok := singleinstance.DetectResidentPort(cmd.Context()); ok {
		log.Printf("Pre-flight: resident answered on port %d", port)
		return fmt.Errorf("rodspot is already running on port %d; use 'rodspot bounds' to move it", port)
	}
	// ------------------------------------------------

	store := bounds.NewStore(cfg.BoundsFile)
	logutil.Debugf("Bounds file: %s", store.Path())
	rect, source, err := resolveRect(cmd.Flags(), opts.rect, store, display.Bounds)
	if err != nil {
		return err
	}
	log.Printf("Tracking %s (from %s)", rect, source)
	if display.Count() > 0 && !display.Visible(rect) {
		log.Printf("Warning: %s is not on any active display; no clicks will land in it", rect)
	}
	if source != "saved" && source != "default" {
		if err := store.Save(rect); err != nil {
			log.Printf("Could not save bounds: %v", err)
		}
	}

	sup := supervisor.New(supervisor.Options{
		TrackerPath:  cfg.TrackerPath,
		RestartDelay: cfg.RestartDelay,
		KillGrace:    cfg.KillGrace,
		MaxRestarts:  cfg.MaxRestarts,
	})

	var sink eventloop.Sink = eventloop.NewTextSink(out)
	if opts.jsonOutput {
		sink = eventloop.NewJSONSink(out)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop := eventloop.New(sup, store, sink, singleinstance.NewServer())
	if err := loop.Run(ctx, rect); err != nil {
		return fmt.Errorf("event loop stopped: %w", err)
	}
	log.Printf("rodspot host stopped")
	return nil
}

func newBoundsCmd(opts *mainOptions, out io.Writer) *cobra.Command {
	var r rectOptions
	cmd := &cobra.Command{
		Use:   "bounds",
		Short: "Move the running host's grid to a new rectangle",
		Long: "Sends the rectangle to the running host, which restarts its tracker.\n" +
			"Without a running host the rectangle is saved for the next start.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("width") && !cmd.Flags().Changed("height") &&
				!cmd.Flags().Changed("x") && !cmd.Flags().Changed("y") && !cmd.Flags().Changed("display") {
				return errors.New("give --x/--y/--width/--height or --display")
			}
			cfg, err := bootstrap(opts)
			if err != nil {
				return err
			}
			rect, _, err := resolveRect(cmd.Flags(), r, nil, display.Bounds)
			if err != nil {
				return err
			}
			return sendBounds(cmd.Context(), singleinstance.NewClient(), bounds.NewStore(cfg.BoundsFile), rect, out)
		},
	}
	addRectFlags(cmd.Flags(), &r)
	return cmd
}

type boundsSaver interface {
	Save(grid.Rect) error
}

func sendBounds(ctx context.Context, client singleinstance.Client, store boundsSaver, rect grid.Rect, out io.Writer) error {
	delegated, err := client.SendBounds(ctx, rect)
	if err != nil {
		return fmt.Errorf("resident refused %s: %w", rect, err)
	}
	if delegated {
		fmt.Fprintf(out, "tracking %s\n", rect)
		return nil
	}
	if err := store.Save(rect); err != nil {
		return err
	}
	fmt.Fprintf(out, "no running host; saved %s for next start\n", rect)
	return nil
}

func newStatusCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the running host's tracker state and rectangle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load .env so RODSPOT_PORT_* apply before the scan.
			_, _ = config.Load()
			return printStatus(cmd.Context(), singleinstance.NewClient(), out)
		},
	}
}

func printStatus(ctx context.Context, client singleinstance.Client, out io.Writer) error {
	delegated, status, err := client.Status(ctx)
	if err != nil {
		return err
	}
	if !delegated {
		fmt.Fprintln(out, "not running")
		return nil
	}
	fmt.Fprintln(out, status)
	return nil
}

func newSnapshotCmd(opts *mainOptions, out io.Writer) *cobra.Command {
	var r rectOptions
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save a PNG of the tracked rectangle with the cell borders drawn in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap(opts)
			if err != nil {
				return err
			}
			rect, source, err := resolveRect(cmd.Flags(), r, bounds.NewStore(cfg.BoundsFile), display.Bounds)
			if err != nil {
				return err
			}
			png, err := display.Snapshot(rect)
			if err != nil {
				return err
			}
			if err := os.WriteFile(opts.snapshotOut, png, 0o644); err != nil {
				return fmt.Errorf("writing snapshot: %w", err)
			}
			fmt.Fprintf(out, "wrote %s (%s, from %s)\n", opts.snapshotOut, rect, source)
			return nil
		},
	}
	addRectFlags(cmd.Flags(), &r)
	cmd.Flags().StringVar(&opts.snapshotOut, "out", "rodspot-grid.png", "Output PNG path")
	return cmd
}
