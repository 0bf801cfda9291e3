package root

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Noxter68/habit-tracking-sub001/internal/domain/events"
	"github.com/Noxter68/habit-tracking-sub001/internal/infrastructure/metrics"
	"github.com/Noxter68/habit-tracking-sub001/internal/infrastructure/scheduler"
)

func newWorkerCmd() *cobra.Command {
	var runNow bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the nightly progression refresh, the metrics endpoint and the event listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := checkWorkload(a.cfg.Scheduler.Enabled, a.cfg.Metrics.Enabled, a.redis != nil); err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(ctx)
			// run until a signal arrives, whatever else is enabled
			g.Go(func() error {
				<-ctx.Done()
				return nil
			})

			if a.cfg.Scheduler.Enabled {
				sched := scheduler.NewScheduler(a.habits, a.progression, scheduler.Options{
					Hour:        a.cfg.Scheduler.RefreshHour,
					Location:    a.cfg.Engine.Location(),
					Concurrency: a.cfg.Scheduler.Concurrency,
					RunOnStart:  runNow,
				}, a.log)
				sched.Start(ctx)
				g.Go(func() error {
					<-ctx.Done()
					sched.Stop()
					return nil
				})
			}

			if a.cfg.Metrics.Enabled {
				g.Go(func() error {
					a.log.Info("Serving metrics", zap.String("addr", a.cfg.Metrics.Addr))
					return metrics.Serve(ctx, a.cfg.Metrics.Addr)
				})
			}

			logEvent := func(e *events.ProgressionEvent) error {
				a.log.Info("Progression event",
					zap.String("event_type", e.EventType),
					zap.String("habit_id", e.HabitID.String()),
					zap.String("user_id", e.UserID.String()))
				return nil
			}
			if a.redis != nil {
				g.Go(func() error {
					err := a.redis.SubscribeToProgressionEvents(ctx, logEvent)
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				})
			} else if a.bus != nil {
				sub, err := a.bus.SubscribeToProgressionEvents(logEvent)
				if err != nil {
					return err
				}
				defer sub.Unsubscribe()
			}

			a.log.Info("Worker started",
				zap.Bool("scheduler", a.cfg.Scheduler.Enabled),
				zap.Bool("metrics", a.cfg.Metrics.Enabled),
				zap.Bool("redis_events", a.redis != nil))

			err = g.Wait()
			a.log.Info("Worker stopped")
			return err
		},
	}

	cmd.Flags().BoolVar(&runNow, "run-now", false, "run a refresh immediately on startup")
	return cmd
}

var errNoWorkload = errors.New("worker has nothing to run: enable the scheduler, metrics or redis")

// checkWorkload refuses a worker whose only job would be listening on the
// in-process bus, which nothing publishes to outside a command run.
func checkWorkload(scheduler, metrics, redisEvents bool) error {
	if !scheduler && !metrics && !redisEvents {
		return errNoWorkload
	}
	return nil
}
