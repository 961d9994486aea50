package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/LeeRoiii/Photoboots/modules/capture"
	"github.com/LeeRoiii/Photoboots/modules/eventbus"
	"github.com/LeeRoiii/Photoboots/modules/framesource"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Run one countdown capture session",
	RunE:  runCapture,
}

var (
	captureShots  int
	captureFlash  bool
	captureFacing string
	captureZoom   float64
)

func init() {
	captureCmd.Flags().IntVarP(&captureShots, "shots", "n", 1, "Number of photos to take (1-10)")
	captureCmd.Flags().BoolVar(&captureFlash, "flash", false, "Fire the flash before each photo")
	captureCmd.Flags().StringVar(&captureFacing, "facing", "front", "Camera to use: front or back")
	captureCmd.Flags().Float64Var(&captureZoom, "zoom", 1, "Zoom factor (1-5)")
	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdown(a)

	if err := applyCaptureFlags(cmd, a); err != nil {
		return err
	}

	events := make(chan eventbus.Event, 64)
	if err := a.booth.Bus().Subscribe("cli", events); err != nil {
		return err
	}

	out := &lockedWriter{w: cmd.OutOrStdout()}
	printCtx, stopPrinting := context.WithCancel(ctx)

	var result capture.Result
	g, gctx := errgroup.WithContext(printCtx)
	g.Go(func() error {
		printStates(gctx, out, a.state)
		return nil
	})
	g.Go(func() error {
		printEvents(gctx, out, events)
		return nil
	})
	g.Go(func() error {
		defer stopPrinting()
		var err error
		result, err = a.booth.CaptureAndWait(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	// events published just before the session returned
drain:
	for {
		select {
		case ev := <-events:
			fmt.Fprintln(out, ev.Message())
		default:
			break drain
		}
	}

	fmt.Fprintf(out, "captured %d of %d photos", len(result.Captured), result.Settings.Shots)
	if len(result.Skipped) > 0 {
		fmt.Fprintf(out, " (skipped shots %v)", result.Skipped)
	}
	if result.Cancelled {
		fmt.Fprint(out, " - cancelled")
	}
	fmt.Fprintln(out)
	return nil
}

// applyCaptureFlags overrides configured settings with explicit flags.
func applyCaptureFlags(cmd *cobra.Command, a *app) error {
	b := a.booth
	flags := cmd.Flags()

	if flags.Changed("shots") {
		if err := b.SetShots(captureShots); err != nil {
			return err
		}
	}
	if flags.Changed("flash") && b.Settings().Flash != captureFlash {
		b.ToggleFlash()
	}
	if flags.Changed("facing") {
		facing, err := framesource.ParseFacing(captureFacing)
		if err != nil {
			return err
		}
		if b.Settings().Facing != facing {
			b.SwitchCamera()
		}
	}
	if flags.Changed("zoom") {
		if err := b.SetZoom(captureZoom); err != nil {
			return err
		}
	}
	return nil
}

func printStates(ctx context.Context, out io.Writer, box *capture.StateBox) {
	_, seq := box.Latest()
	for {
		st, next, err := box.Next(ctx, seq)
		if err != nil {
			return
		}
		seq = next

		switch st.Phase {
		case capture.PhaseCountdown:
			fmt.Fprintf(out, "[%d/%d] %d...\n", st.Shot, st.Shots, st.Countdown)
		case capture.PhaseShutter:
			fmt.Fprintf(out, "[%d/%d] click\n", st.Shot, st.Shots)
		}
	}
}

func printEvents(ctx context.Context, out io.Writer, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			fmt.Fprintln(out, ev.Message())
		}
	}
}

// lockedWriter serializes writes from the state and event printers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func shutdown(a *app) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()
	if err := a.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
	}
}
