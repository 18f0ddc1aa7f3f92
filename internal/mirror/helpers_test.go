package mirror

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
)

// testMission builds a Mission with a hidden progress bar and a logger
// that discards output.
func testMission(t *testing.T) *Mission {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewMission(http.DefaultClient, newBar(0, false), logger, "test")
}

// testSnapshotConfig returns snapshot parameters suitable for tests.
func testSnapshotConfig() *SnapshotConfig {
	return &SnapshotConfig{ConcurrentResolve: 4}
}

// mustTOMLURL parses a URL through the same path the config decoder uses.
func mustTOMLURL(t *testing.T, raw string) tomlURL {
	t.Helper()
	var u tomlURL
	if err := u.UnmarshalText([]byte(raw)); err != nil {
		t.Fatal("failed to parse URL:", err)
	}
	return u
}
