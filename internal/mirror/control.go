package mirror

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/cockroachdb/errors"
)

// Run executes one full diff transfer according to the configuration.
// It terminates early on SIGINT/SIGTERM.
func Run(config *Config) error {
	source, err := config.Source.Build()
	if err != nil {
		return err
	}
	target, err := config.Target.Build()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := NewSimpleDiffTransfer(source, target, config.TransferConfig())
	return engine.Transfer(ctx)
}

// RunSnapshot scans one configured side and writes the ordered key list
// to w, optionally xz-compressed.
func RunSnapshot(config *Config, side string, w io.Writer, compress bool) error {
	var producer SnapshotStorage[SnapshotPath]
	switch side {
	case "source":
		built, err := config.Source.Build()
		if err != nil {
			return err
		}
		producer = built
	case "target":
		built, err := config.Target.Build()
		if err != nil {
			return err
		}
		producer = built
	default:
		return errors.New("side must be \"source\" or \"target\": " + side)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := NewHTTPClient(config.Site)
	bar := newBar(0, config.Transfer.Progress)
	mission := NewMission(client, bar, slog.Default(), "snapshot."+side)

	snapshotConfig := config.SnapshotConfig()
	snapshot, err := producer.Snapshot(ctx, mission, &snapshotConfig)
	bar.Finish()
	if err != nil {
		return errors.Wrapf(err, "%s snapshot", side)
	}

	slices.Sort(snapshot)
	return WriteKeyList(w, snapshot, compress)
}
