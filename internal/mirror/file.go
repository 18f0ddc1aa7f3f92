package mirror

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/cenkalti/backoff"
	"github.com/cockroachdb/errors"
)

// FileTarget mirrors objects into a local directory tree. Its snapshot is
// the set of regular files under Dir, keyed by slash-separated relative
// path. Placement fetches the resolved URL over the Mission client and
// writes through a temporary file plus rename, so readers never observe a
// half-written object.
type FileTarget struct {
	// Dir is the absolute path of the mirror root.
	Dir string `toml:"dir"`
}

// Check validates the backend configuration.
func (t *FileTarget) Check() error {
	if t.Dir == "" {
		return errors.New("dir is not set")
	}
	if !filepath.IsAbs(t.Dir) {
		return errors.New("dir must be an absolute path")
	}
	return nil
}

// Info implements SnapshotStorage.
func (t *FileTarget) Info() string {
	return fmt.Sprintf("file, dir=%s", t.Dir)
}

// Snapshot walks the directory tree. A missing root is an empty mirror,
// not an error; the first transfer populates it.
func (t *FileTarget) Snapshot(ctx context.Context, mission *Mission, config *SnapshotConfig) ([]SnapshotPath, error) {
	logger := mission.Logger
	logger.Info("scanning local directory", "dir", t.Dir)

	var snapshot []SnapshotPath
	err := filepath.WalkDir(t.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(t.Dir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		mission.Progress.Increment()
		if config.Excluded(key) {
			return nil
		}
		snapshot = append(snapshot, SnapshotPath(key))
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("mirror directory does not exist yet", "dir", t.Dir)
			return nil, nil
		}
		return nil, errors.Wrap(err, "walk mirror directory")
	}

	logger.Info("directory scan complete", "objects", len(snapshot))
	return snapshot, nil
}

// PutObject downloads the resolved URL into the tree. Transport errors
// and 5xx responses are retried with exponential backoff; a 404 is
// permanent. The object appears atomically via rename, and the parent
// directory is fsynced so the entry survives a crash.
func (t *FileTarget) PutObject(ctx context.Context, key SnapshotPath, item TransferURL, mission *Mission) error {
	if strings.Contains(string(key), "..") {
		return errors.New("unsafe key (contains directory traversal): " + string(key))
	}

	dest := filepath.Join(t.Dir, filepath.FromSlash(string(key)))
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return errors.Wrap(err, "create object directory")
	}

	fetch := func() error {
		return t.fetchTo(ctx, mission.Client, string(item), dest, dir)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	if err := backoff.Retry(fetch, policy); err != nil {
		return errors.Wrapf(err, "download %s", string(item))
	}

	mission.Logger.Debug("object stored", "key", string(key))
	return nil
}

// fetchTo performs one download attempt into a temporary file and renames
// it into place on success.
func (t *FileTarget) fetchTo(ctx context.Context, client *http.Client, url, dest, dir string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(errors.Wrap(err, "build request"))
	}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer closeBody(resp)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return backoff.Permanent(errors.Wrapf(ErrNotFound, "GET %s", url))
	case resp.StatusCode >= 500:
		return errors.Newf("server error %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return backoff.Permanent(errors.Newf("status %d", resp.StatusCode))
	}

	tempfile, err := os.CreateTemp(dir, "_tmp")
	if err != nil {
		return backoff.Permanent(errors.Wrap(err, "create tempfile"))
	}
	defer func() {
		// no-ops once the file is closed and renamed into place
		_ = tempfile.Close()
		_ = os.Remove(tempfile.Name())
	}()

	if _, err := io.Copy(tempfile, resp.Body); err != nil {
		return errors.Wrap(err, "write body")
	}
	if err := tempfile.Sync(); err != nil {
		return backoff.Permanent(errors.Wrap(err, "tempfile sync"))
	}
	if err := os.Chmod(tempfile.Name(), 0644); err != nil {
		return backoff.Permanent(errors.Wrap(err, "tempfile chmod"))
	}
	if err := tempfile.Close(); err != nil {
		return backoff.Permanent(errors.Wrap(err, "tempfile close"))
	}
	if err := os.Rename(tempfile.Name(), dest); err != nil {
		return backoff.Permanent(errors.Wrap(err, "rename into place"))
	}
	return dirSync(dir)
}

// dirSync calls fsync(2) on a directory to persist entry changes. This
// should be called after os.Create, os.Rename and so on.
func dirSync(dir string) error {
	f, err := os.OpenFile(dir, os.O_RDONLY, 0750) // #nosec G304 - dir is derived from validated config
	if err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
