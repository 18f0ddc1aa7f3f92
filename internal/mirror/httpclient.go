package mirror

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	defaultSite    = "mirror.sjtu.edu.cn"
	connectTimeout = 10 * time.Second
	version        = "0.1"
)

// identityTransport stamps the descriptive User-Agent onto every request.
type identityTransport struct {
	base  http.RoundTripper
	agent string
}

func (t *identityTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(req)
}

// NewHTTPClient builds the HTTP client shared by every Mission in a run.
// Overall request deadlines come from the caller's context; only the
// connection setup is time-boxed here.
func NewHTTPClient(site string) *http.Client {
	if site == "" {
		site = defaultSite
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = (&net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	tr.MaxIdleConns = 100
	tr.MaxIdleConnsPerHost = 10
	tr.IdleConnTimeout = 90 * time.Second

	return &http.Client{
		Transport: &identityTransport{
			base:  tr,
			agent: fmt.Sprintf("mirror-clone / %s (%s)", version, site),
		},
	}
}

// fetchText GETs a URL and returns the response body as a string. Non-2xx
// statuses are errors; a 404 maps to ErrNotFound so callers can tell a
// missing page from a transport failure.
func fetchText(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrap(err, "build request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "GET %s", url)
	}
	defer closeBody(resp)

	if resp.StatusCode == http.StatusNotFound {
		return "", errors.Wrapf(ErrNotFound, "GET %s", url)
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf("GET %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrapf(err, "read body of %s", url)
	}
	return string(body), nil
}

// closeBody closes an HTTP response body.
func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", "error", err)
	}
}
