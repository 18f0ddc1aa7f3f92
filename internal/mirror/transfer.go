package mirror

import (
	"context"
	"log/slog"
	"math/rand"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWorkers     = 128
	defaultStepTimeout = 60 * time.Second
	debugSampleSize    = 50
)

// TransferConfig carries the immutable parameters of one diff transfer.
type TransferConfig struct {
	// Progress enables visual progress output.
	Progress bool

	// Workers caps the number of keys transferred simultaneously.
	Workers int

	// StepTimeout bounds each resolve and each placement individually.
	StepTimeout time.Duration

	// Site is reported in the User-Agent of every request.
	Site string

	// Snapshot is handed to both sides' Snapshot calls.
	Snapshot SnapshotConfig
}

func (c *TransferConfig) workers() int {
	if c.Workers <= 0 {
		return defaultWorkers
	}
	return c.Workers
}

func (c *TransferConfig) stepTimeout() time.Duration {
	if c.StepTimeout <= 0 {
		return defaultStepTimeout
	}
	return c.StepTimeout
}

// SimpleDiffTransfer mirrors a source into a target: snapshot both sides,
// plan the set difference, then transfer the missing keys with bounded
// concurrency. Individual key failures degrade completeness, never the
// run's outcome; only snapshot failures are fatal.
type SimpleDiffTransfer[Item any] struct {
	source Source[SnapshotPath, Item]
	target Target[SnapshotPath, Item]
	config TransferConfig
}

// NewSimpleDiffTransfer constructs the engine. Item is whatever the source
// resolves keys into and the target accepts, typically TransferURL.
func NewSimpleDiffTransfer[Item any](
	source Source[SnapshotPath, Item],
	target Target[SnapshotPath, Item],
	config TransferConfig,
) *SimpleDiffTransfer[Item] {
	return &SimpleDiffTransfer[Item]{
		source: source,
		target: target,
		config: config,
	}
}

// Transfer runs the engine to completion: Init -> Snapshot -> Plan ->
// Transfer -> Done. The returned error is non-nil only for fatal failures
// (either side's snapshot); per-key failures surface as warnings.
func (t *SimpleDiffTransfer[Item]) Transfer(ctx context.Context) error {
	logger := slog.Default()
	client := NewHTTPClient(t.config.Site)

	logger.Info("using simple diff transfer",
		"workers", t.config.workers(), "step_timeout", t.config.stepTimeout())
	logger.Info("begin transfer", "source", t.source.Info(), "target", t.target.Info())

	// Snapshot phase. Both sides scan concurrently; both must succeed.
	// Each side owns its bar: a scan may call SetTotal on its own bar,
	// which must not distort the other side's counts. pb renders one bar
	// at a time, so only the source scan draws; the target scan reports
	// through its logger.
	logger.Info("taking snapshot")
	sourceBar := newBar(0, t.config.Progress)
	targetBar := newBar(0, false)
	sourceMission := NewMission(client, sourceBar, logger, "snapshot.source")
	targetMission := NewMission(client, targetBar, logger, "snapshot.target")

	var sourceSnapshot, targetSnapshot []SnapshotPath
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snapshot, err := t.source.Snapshot(gctx, sourceMission, &t.config.Snapshot)
		if err != nil {
			return errors.Wrap(err, "source snapshot")
		}
		sourceSnapshot = snapshot
		return nil
	})
	g.Go(func() error {
		snapshot, err := t.target.Snapshot(gctx, targetMission, &t.config.Snapshot)
		if err != nil {
			return errors.Wrap(err, "target snapshot")
		}
		targetSnapshot = snapshot
		return nil
	})
	err := g.Wait()
	sourceBar.Finish()
	targetBar.Finish()
	if err != nil {
		return err
	}

	logger.Info("snapshot complete",
		"source_objects", len(sourceSnapshot), "target_objects", len(targetSnapshot))
	debugSnapshot(logger.With("task", "snapshot.source"), sourceSnapshot)
	debugSnapshot(logger.With("task", "snapshot.target"), targetSnapshot)

	// Plan phase. Sort both sides, then keep only the source keys the
	// target is missing.
	logger.Info("generating transfer plan")
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		slices.Sort(sourceSnapshot)
	}()
	go func() {
		defer wg.Done()
		slices.Sort(targetSnapshot)
	}()
	wg.Wait()

	plan := diffPlan(sourceSnapshot, targetSnapshot)
	logger.Info("transfer plan ready",
		"planned", len(plan), "skipped", len(sourceSnapshot)-len(plan))

	// Transfer phase. Bounded fan-out, unordered completion, one progress
	// unit per key whatever its outcome.
	logger.Info("mirror in progress")
	bar := newBar(len(plan), t.config.Progress)
	transferSource := NewMission(client, newBar(0, false), logger, "mirror.source")
	transferTarget := NewMission(client, newBar(0, false), logger, "mirror.target")

	var failed atomic.Int64
	pool := new(errgroup.Group)
	pool.SetLimit(t.config.workers())
	for _, key := range plan {
		key := key
		pool.Go(func() error {
			if err := t.transferOne(ctx, key, transferSource, transferTarget); err != nil {
				logger.Warn("failed to transfer object", "key", string(key), "error", err)
				failed.Add(1)
			}
			bar.Increment()
			return nil
		})
	}
	_ = pool.Wait() // per-key errors never propagate
	bar.Finish()

	logger.Info("transfer complete", "attempted", len(plan), "failed", failed.Load())
	return nil
}

// transferOne resolves one key on the source and places it at the target,
// each step under its own deadline. Failures are per-item observations.
func (t *SimpleDiffTransfer[Item]) transferOne(ctx context.Context, key SnapshotPath, sourceMission, targetMission *Mission) error {
	item, err := WithTimeout(ctx, t.config.stepTimeout(), func(ctx context.Context) (Item, error) {
		return t.source.GetObject(ctx, key, sourceMission)
	})
	if err != nil {
		return errors.Wrap(err, "resolve")
	}

	_, err = WithTimeout(ctx, t.config.stepTimeout(), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, t.target.PutObject(ctx, key, item, targetMission)
	})
	if err != nil {
		return errors.Wrap(err, "place")
	}
	return nil
}

// diffPlan returns, in order, the source keys absent from the target.
// Both inputs must be sorted.
func diffPlan(source, target []SnapshotPath) []SnapshotPath {
	plan := make([]SnapshotPath, 0, len(source))
	i := 0
	for _, key := range source {
		for i < len(target) && target[i] < key {
			i++
		}
		if i < len(target) && target[i] == key {
			continue
		}
		plan = append(plan, key)
	}
	return plan
}

// debugSnapshot logs a bounded random sample of a snapshot, enough for
// eyeballing without flooding the logs.
func debugSnapshot(logger *slog.Logger, snapshot []SnapshotPath) {
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	sample := rand.Perm(len(snapshot))
	if len(sample) > debugSampleSize {
		sample = sample[:debugSampleSize]
	}
	for _, i := range sample {
		logger.Debug("snapshot sample", "key", string(snapshot[i]))
	}
}
