package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ComputeDuration tracks how long one engine computation takes
	computeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "habit_engine_compute_duration_seconds",
			Help:    "Duration of engine computations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		},
		[]string{"operation"},
	)

	// MilestonesUnlocked counts milestone unlocks by title
	milestonesUnlocked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habit_engine_milestones_unlocked_total",
			Help: "Total number of milestones unlocked",
		},
		[]string{"milestone"},
	)

	// UnlockOutcomes counts milestone checks by result
	unlockOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habit_engine_unlock_checks_total",
			Help: "Total number of milestone unlock checks by outcome",
		},
		[]string{"outcome"},
	)

	// TierChanges counts tier transitions by destination tier
	tierChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habit_engine_tier_changes_total",
			Help: "Total number of tier changes",
		},
		[]string{"tier"},
	)

	// RefreshResults counts per-habit background refresh results
	refreshResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habit_engine_refresh_habits_total",
			Help: "Habits processed by the background refresh",
		},
		[]string{"status"},
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habit_engine_cache_lookups_total",
			Help: "Insight cache lookups by result",
		},
		[]string{"cache", "result"},
	)
)

// Unlock outcomes
const (
	OutcomeUnlocked = "unlocked"
	OutcomeNone     = "none"
	OutcomeRaced    = "raced"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// ObserveCompute records the duration of operation since start.
func ObserveCompute(operation string, start time.Time) {
	computeDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func MilestoneUnlocked(title string) {
	milestonesUnlocked.WithLabelValues(title).Inc()
	unlockOutcomes.WithLabelValues(OutcomeUnlocked).Inc()
}

func UnlockOutcome(outcome string) {
	unlockOutcomes.WithLabelValues(outcome).Inc()
}

func TierChanged(tier string) {
	tierChanges.WithLabelValues(tier).Inc()
}

func RefreshResult(ok bool) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	refreshResults.WithLabelValues(status).Inc()
}

func CacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(cache, result).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
