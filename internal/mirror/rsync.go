package mirror

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/skyzh/mirror-clone/internal/index"
)

// debugLineLimit caps the number of listing lines consumed in debug mode.
const debugLineLimit = 1000

// Rsync takes a snapshot by spawning "rsync -r" against a remote module
// and parsing its recursive long-format listing. Only regular files become
// keys; directories, symlinks and special entries are skipped. A non-zero
// exit makes the whole listing untrustworthy, even if lines were already
// collected.
type Rsync struct {
	// Base is the rsync path or module to list, e.g.
	// "rsync://mirror.example.com/ubuntu/".
	Base string `toml:"base"`

	// HTTPBase, when set, is the base objects are fetched from during
	// transfer. Listing over rsync and fetching over HTTP is the common
	// deployment; without it keys resolve against Base itself.
	HTTPBase tomlURL `toml:"http_base"`

	// Debug caps the listing to a bounded prefix for fast local testing.
	Debug bool `toml:"debug"`

	// command overrides the spawned argv in tests.
	command []string
}

// Check validates the backend configuration.
func (r *Rsync) Check() error {
	if r.Base == "" {
		return errors.New("base is not set")
	}
	return nil
}

// Info implements SnapshotStorage.
func (r *Rsync) Info() string {
	return fmt.Sprintf("rsync, base=%s debug=%v", r.Base, r.Debug)
}

// Snapshot spawns the listing process and streams its stdout line by
// line. The child is forcibly terminated on every exit path: the
// cancelable command context guarantees no orphaned process survives an
// abandoned scan.
func (r *Rsync) Snapshot(ctx context.Context, mission *Mission, config *SnapshotConfig) ([]SnapshotPath, error) {
	logger := mission.Logger
	logger.Info("running rsync", "base", r.Base)

	cmdCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	argv := r.command
	if len(argv) == 0 {
		argv = []string{"rsync", "-r", r.Base}
	}
	cmd := exec.CommandContext(cmdCtx, argv[0], argv[1:]...) // #nosec G204 - argv comes from validated config
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "rsync stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "start rsync")
	}

	debug := r.Debug || config.Debug
	truncated := false
	var snapshot []SnapshotPath

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lines := 0
	for scanner.Scan() {
		mission.Progress.Increment()
		lines++
		if debug && lines > debugLineLimit {
			truncated = true
			cancel()
			break
		}

		entry, err := index.ParseListingLine(scanner.Text())
		if err != nil {
			logger.Debug("skipping unparseable listing line", "error", err)
			continue
		}
		if !entry.IsRegularFile() {
			continue
		}
		if config.Excluded(entry.Path) {
			continue
		}
		snapshot = append(snapshot, SnapshotPath(entry.Path))
	}
	scanErr := scanner.Err()

	// Wait must not run until the pipe is fully drained: it closes the
	// read end on process exit, and buffered lines would be lost. The
	// scanner has hit EOF (or the debug break cancelled the child) by
	// this point, so waiting here is safe, and a hung process is still
	// covered by the command context.
	logger.Info("waiting for rsync to exit")
	err = cmd.Wait()
	switch {
	case truncated:
		// We killed the child ourselves; its exit status means nothing.
	case err != nil:
		return nil, errors.Wrap(err, "rsync exited abnormally")
	case scanErr != nil:
		return nil, errors.Wrap(scanErr, "read rsync output")
	}

	logger.Info("listing complete", "lines", lines, "objects", len(snapshot))
	return snapshot, nil
}

// GetObject implements SourceStorage. Keys resolve against HTTPBase when
// configured, otherwise against the rsync base itself.
func (r *Rsync) GetObject(_ context.Context, key SnapshotPath, _ *Mission) (TransferURL, error) {
	if r.HTTPBase.URL != nil {
		return TransferURL(r.HTTPBase.String() + string(key)), nil
	}
	return TransferURL(strings.TrimSuffix(r.Base, "/") + "/" + string(key)), nil
}
