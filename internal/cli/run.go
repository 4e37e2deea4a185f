package cli

import (
	"context"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openkiosk/signsync/internal/syncer"
)

// RunCmd returns the run command
func RunCmd() *cobra.Command {
	var flags commonFlags
	var once bool
	var watch bool
	var interval time.Duration
	var intervalJitter float64
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Synchronize the media directory into the CMS playlist",
		Long: `Run sync cycles: diff the target directory against the manifest, upload
new and changed files, reconcile the playlist widgets, and rewrite the
manifest. By default cycles repeat on an interval; --once runs a single
cycle and --watch triggers cycles from filesystem events instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := buildRuntime(rootCtx, flags)
			if err != nil {
				return err
			}
			defer rt.shutdown()

			if interval <= 0 {
				interval = 5 * time.Minute
			}
			intervalJitter = clampJitterRatio(intervalJitter)

			run := func() error {
				ctx, cancel := context.WithTimeout(rootCtx, cycleTimeout(interval))
				defer cancel()
				if _, err := rt.syncer.SyncOnce(ctx); err != nil {
					log.Printf("sync cycle failed: %v", err)
					return err
				}
				return nil
			}

			if once {
				return run()
			}
			if watch {
				if debounce <= 0 {
					debounce = syncer.DefaultDebounce
				}
				if err := run(); err != nil {
					log.Printf("initial sync failed; watching anyway")
				}
				err := rt.syncer.Watch(rootCtx, debounce)
				if err == context.Canceled {
					return nil
				}
				return err
			}

			_ = run()
			rng := rand.New(rand.NewSource(time.Now().UnixNano()))
			timer := time.NewTimer(jitteredIntervalWithSample(interval, intervalJitter, rng.Float64()))
			defer timer.Stop()
			for {
				select {
				case <-rootCtx.Done():
					log.Printf("sync stopping: %v", rootCtx.Err())
					return nil
				case <-timer.C:
					_ = run()
					timer.Reset(jitteredIntervalWithSample(interval, intervalJitter, rng.Float64()))
				}
			}
		},
	}

	registerCommonFlags(cmd.Flags(), &flags)
	cmd.Flags().BoolVar(&once, "once", false, "run one sync cycle and exit")
	cmd.Flags().BoolVar(&watch, "watch", false, "trigger sync cycles from filesystem events")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Minute, "sync interval")
	cmd.Flags().Float64Var(&intervalJitter, "interval-jitter", 0.2, "sync interval jitter ratio (0.0-1.0)")
	cmd.Flags().DurationVar(&debounce, "debounce", syncer.DefaultDebounce, "event debounce window for --watch")
	return cmd
}

// cycleTimeout bounds one sync cycle. Uploads of large media can be slow, so
// the cap is generous relative to the loop interval.
func cycleTimeout(interval time.Duration) time.Duration {
	timeout := interval
	if timeout < 10*time.Minute {
		timeout = 10 * time.Minute
	}
	return timeout
}

func clampJitterRatio(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func jitteredIntervalWithSample(base time.Duration, jitterRatio, sample float64) time.Duration {
	if base <= 0 {
		return 0
	}
	jitterRatio = clampJitterRatio(jitterRatio)
	if jitterRatio == 0 {
		return base
	}
	if sample < 0 {
		sample = 0
	} else if sample > 1 {
		sample = 1
	}
	factor := 1 + ((sample*2)-1)*jitterRatio
	if factor < 0 {
		factor = 0
	}
	delay := time.Duration(float64(base) * factor)
	if delay < time.Millisecond {
		return time.Millisecond
	}
	return delay
}
