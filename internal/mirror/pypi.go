package mirror

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/skyzh/mirror-clone/internal/index"
)

// debugIndexBytes bounds the root index in debug mode, so a development
// run only crawls the first handful of packages.
const debugIndexBytes = 1000

// PyPI scans a simple-index style package repository in two levels: the
// root index enumerates packages, each package page enumerates artifacts.
// Artifact links carry checksum fragments in their URLs; those are
// stripped during canonicalization so re-scans of an unchanged artifact
// produce identical keys.
//
// PyPI produces SnapshotPath keys relative to PackageBase and resolves
// them into TransferURLs.
type PyPI struct {
	// SimpleBase is the root of the simple index.
	SimpleBase tomlURL `toml:"simple_base"`

	// PackageBase is the root under which artifacts are stored. Keys are
	// relative to it; links outside it are dropped.
	PackageBase tomlURL `toml:"package_base"`

	// Debug truncates the root index for fast local testing.
	Debug bool `toml:"debug"`
}

// Check validates the backend configuration.
func (p *PyPI) Check() error {
	if p.SimpleBase.URL == nil {
		return errors.New("simple_base is not set")
	}
	if p.PackageBase.URL == nil {
		return errors.New("package_base is not set")
	}
	return nil
}

// Info implements SnapshotStorage.
func (p *PyPI) Info() string {
	return fmt.Sprintf("pypi, simple_base=%s package_base=%s debug=%v",
		p.SimpleBase, p.PackageBase, p.Debug)
}

// Snapshot crawls the index. The root fetch is fatal; each package page
// failure only costs that package's contribution.
func (p *PyPI) Snapshot(ctx context.Context, mission *Mission, config *SnapshotConfig) ([]SnapshotPath, error) {
	logger := mission.Logger

	logger.Info("downloading package index", "url", p.SimpleBase.String())
	rootIndex, err := fetchText(ctx, mission.Client, p.SimpleBase.String())
	if err != nil {
		return nil, errors.Wrap(err, "fetch root index")
	}
	if p.Debug || config.Debug {
		if len(rootIndex) > debugIndexBytes {
			rootIndex = rootIndex[:debugIndexBytes]
		}
	}

	packages := index.ExtractLinks(rootIndex)
	logger.Info("resolving package indices",
		"packages", len(packages), "concurrent_resolve", concurrentResolve(config))
	mission.Progress.SetTotal(int64(len(packages)))

	// Bounded fan-out over the package pages: a finished fetch's slot is
	// immediately reused by the next pending one, completion order is
	// unspecified. A failed page logs a warning and contributes nothing.
	perPackage := make([][]string, len(packages))
	g := new(errgroup.Group)
	g.SetLimit(concurrentResolve(config))
	for i, pkg := range packages {
		i, pkg := i, pkg
		g.Go(func() error {
			urls, err := p.scanPackage(ctx, mission, pkg.Href)
			if err != nil {
				logger.Warn("failed to fetch package index",
					"package", pkg.Label, "error", err)
			} else {
				perPackage[i] = urls
			}
			mission.Progress.Increment()
			return nil
		})
	}
	_ = g.Wait() // per-package errors never propagate

	// Keys must live under the package base, or they could never be
	// resolved back into objects.
	packageBase := p.PackageBase.String()
	var snapshot []SnapshotPath
	for _, urls := range perPackage {
		for _, u := range urls {
			if !strings.HasPrefix(u, packageBase) {
				logger.Warn("package is not stored under the package base", "url", u)
				continue
			}
			key := u[len(packageBase):]
			if config.Excluded(key) {
				continue
			}
			snapshot = append(snapshot, SnapshotPath(key))
		}
	}

	logger.Info("index scan complete", "objects", len(snapshot))
	return snapshot, nil
}

// scanPackage fetches one package page and canonicalizes its artifact
// links into absolute URLs free of query/fragment suffixes.
func (p *PyPI) scanPackage(ctx context.Context, mission *Mission, href string) ([]string, error) {
	pageURL, err := index.Canonicalize(p.SimpleBase.String(), href)
	if err != nil {
		return nil, errors.Wrap(err, "package page URL")
	}
	page, err := fetchText(ctx, mission.Client, pageURL)
	if err != nil {
		return nil, err
	}

	links := index.ExtractLinks(page)
	urls := make([]string, 0, len(links))
	for _, link := range links {
		canonical, err := index.Canonicalize(pageURL, link.Href)
		if err != nil {
			mission.Logger.Warn("unparseable artifact link",
				"package_page", pageURL, "href", link.Href, "error", err)
			continue
		}
		urls = append(urls, canonical)
	}
	return urls, nil
}

// GetObject implements SourceStorage by joining the key back onto the
// package base.
func (p *PyPI) GetObject(_ context.Context, key SnapshotPath, _ *Mission) (TransferURL, error) {
	return TransferURL(p.PackageBase.String() + string(key)), nil
}

func concurrentResolve(config *SnapshotConfig) int {
	if config.ConcurrentResolve <= 0 {
		return defaultConcurrentResolve
	}
	return config.ConcurrentResolve
}
