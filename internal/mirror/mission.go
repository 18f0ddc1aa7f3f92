package mirror

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cheggaaa/pb/v3"
)

// Mission bundles the per-phase execution context: a shared HTTP client, a
// progress bar and a logger carrying a task label. A Mission is built fresh
// for each logical phase (source scan, target scan, bulk transfer), passed
// explicitly through every nested call, and discarded when the phase ends.
// It is purely observational and never changes control flow.
//
// The client is safe for concurrent use and may be shared by any number of
// Missions. Progress bars accept concurrent increments.
type Mission struct {
	Client   *http.Client
	Progress *pb.ProgressBar
	Logger   *slog.Logger
}

// NewMission builds a Mission whose logger carries the given task label.
func NewMission(client *http.Client, progress *pb.ProgressBar, logger *slog.Logger, task string) *Mission {
	return &Mission{
		Client:   client,
		Progress: progress,
		Logger:   logger.With("task", task),
	}
}

// newBar returns a started progress bar, rendering to stderr when visible
// is set and discarding output otherwise.
func newBar(total int, visible bool) *pb.ProgressBar {
	bar := pb.New(total)
	if !visible {
		bar.SetWriter(io.Discard)
	}
	return bar.Start()
}

// SnapshotConfig carries the immutable parameters of one snapshot run.
// It is fixed before the run starts and never mutated.
type SnapshotConfig struct {
	// ConcurrentResolve caps the number of simultaneously in-flight
	// index/child fetches.
	ConcurrentResolve int

	// ExcludePatterns lists doublestar globs; keys matching any pattern
	// are dropped from the snapshot.
	ExcludePatterns []string

	// Debug truncates the scan to a small bounded prefix for fast local
	// testing.
	Debug bool
}

// Excluded reports whether a canonical key matches one of the configured
// exclude patterns. Invalid patterns never match; they are rejected by
// Config.Check before a run starts.
func (c *SnapshotConfig) Excluded(key string) bool {
	for _, pattern := range c.ExcludePatterns {
		if ok, err := doublestar.Match(pattern, key); err == nil && ok {
			return true
		}
	}
	return false
}
