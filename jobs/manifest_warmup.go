package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/novahr/nova-authz/internal/authz"
	jobmetrics "github.com/novahr/nova-authz/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ManifestSource computes one user's manifest, populating the cache as a
// side effect. The authz engine satisfies it.
type ManifestSource interface {
	Manifest(ctx context.Context, userID int64) (authz.Manifest, error)
}

// ActiveUserSource lists the users worth warming.
type ActiveUserSource interface {
	ListActiveUserIDs(ctx context.Context) ([]int64, error)
}

// ManifestWarmupJob precomputes permission manifests so the first request
// after a deploy or an invalidation sweep does not pay the resolution cost.
type ManifestWarmupJob struct {
	Engine      ManifestSource
	Users       ActiveUserSource
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
	clock       func() time.Time
}

// NewManifestWarmupJob wires dependencies for the warmup handler.
func NewManifestWarmupJob(engine ManifestSource, users ActiveUserSource, logger *slog.Logger, metrics *jobmetrics.Metrics, concurrency int) *ManifestWarmupJob {
	return &ManifestWarmupJob{
		Engine:      engine,
		Users:       users,
		Logger:      logger,
		Metrics:     metrics,
		Concurrency: concurrency,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes manifest warmup tasks.
func (j *ManifestWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Engine == nil || j.Users == nil {
		return errors.New("manifest warmup: handler not configured")
	}
	var payload ManifestWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Scope == "" {
		payload.Scope = "active"
	}

	tracker := j.metrics().Track(TaskManifestWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("scope", payload.Scope))
	start := j.now()

	ids, err := j.Users.ListActiveUserIDs(ctx)
	if err != nil {
		resultErr = err
		logger.Error("list active users", slog.Any("error", err))
		return resultErr
	}
	if len(ids) == 0 {
		logger.Info("no active users to warm")
		return resultErr
	}

	concurrency := j.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	var warmed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if _, err := j.Engine.Manifest(gctx, id); err != nil {
				return err
			}
			warmed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		resultErr = err
		logger.Error("warm manifests", slog.Any("error", err))
	}

	j.metrics().AddWarmed(int(warmed.Load()))
	logger.Info("completed manifest warmup",
		slog.Int64("warmed", warmed.Load()),
		slog.Int("users", len(ids)),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *ManifestWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskManifestWarmup))
	}
	return slog.Default().With(slog.String("job", TaskManifestWarmup))
}

func (j *ManifestWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ManifestWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
