package mirror

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// objectAPI is the slice of the minio client the target uses, narrowed so
// tests can substitute a fake.
type objectAPI interface {
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	PutObject(ctx context.Context, bucket, name string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// S3Target mirrors objects into an S3-compatible bucket. Its snapshot is
// the object listing under Prefix; placement streams the resolved URL's
// body straight into the bucket without spooling to disk.
type S3Target struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	Region    string `toml:"region"`
	UseSSL    bool   `toml:"use_ssl"`

	client objectAPI
}

// Check validates the backend configuration.
func (t *S3Target) Check() error {
	if t.Endpoint == "" {
		return errors.New("endpoint is not set")
	}
	if t.Bucket == "" {
		return errors.New("bucket is not set")
	}
	return nil
}

// Info implements SnapshotStorage.
func (t *S3Target) Info() string {
	return fmt.Sprintf("s3, endpoint=%s bucket=%s prefix=%s", t.Endpoint, t.Bucket, t.Prefix)
}

// connect lazily builds the minio client. The endpoint is given without a
// scheme; minio expects a bare host.
func (t *S3Target) connect() (objectAPI, error) {
	if t.client != nil {
		return t.client, nil
	}

	endpoint := strings.TrimPrefix(t.Endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(t.AccessKey, t.SecretKey, ""),
		Secure: t.UseSSL,
		Region: t.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create s3 client")
	}
	t.client = client
	return t.client, nil
}

// prefix returns the key prefix with a single trailing slash, or "".
func (t *S3Target) prefix() string {
	if t.Prefix == "" {
		return ""
	}
	return strings.TrimSuffix(t.Prefix, "/") + "/"
}

// Snapshot lists the bucket under the configured prefix. A listing error
// from the server makes the whole snapshot untrustworthy and is fatal.
func (t *S3Target) Snapshot(ctx context.Context, mission *Mission, config *SnapshotConfig) ([]SnapshotPath, error) {
	logger := mission.Logger
	logger.Info("listing bucket", "bucket", t.Bucket, "prefix", t.prefix())

	client, err := t.connect()
	if err != nil {
		return nil, err
	}

	prefix := t.prefix()
	var snapshot []SnapshotPath
	for object := range client.ListObjects(ctx, t.Bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, errors.Wrap(object.Err, "list objects")
		}
		mission.Progress.Increment()

		key := strings.TrimPrefix(object.Key, prefix)
		if key == "" || strings.HasSuffix(key, "/") {
			continue
		}
		if config.Excluded(key) {
			continue
		}
		snapshot = append(snapshot, SnapshotPath(key))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger.Info("bucket listing complete", "objects", len(snapshot))
	return snapshot, nil
}

// PutObject fetches the resolved URL and streams the body into the
// bucket. Unknown content lengths are passed through as -1; minio then
// uses multipart upload.
func (t *S3Target) PutObject(ctx context.Context, key SnapshotPath, item TransferURL, mission *Mission) error {
	client, err := t.connect()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, string(item), nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	resp, err := mission.Client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "GET %s", string(item))
	}
	defer closeBody(resp)

	if resp.StatusCode == http.StatusNotFound {
		return errors.Wrapf(ErrNotFound, "GET %s", string(item))
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Newf("GET %s: status %d", string(item), resp.StatusCode)
	}

	_, err = client.PutObject(ctx, t.Bucket, t.prefix()+string(key), resp.Body, resp.ContentLength, minio.PutObjectOptions{})
	if err != nil {
		return errors.Wrapf(err, "put %s", string(key))
	}

	mission.Logger.Debug("object stored", "key", string(key))
	return nil
}
