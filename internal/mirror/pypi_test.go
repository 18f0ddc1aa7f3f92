package mirror

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
)

// newSimpleIndexServer serves a two-level simple index: a root page of
// package links and one page per package. Packages listed in broken
// return a 500 on their page.
func newSimpleIndexServer(t *testing.T, packages map[string][]string, broken map[string]bool) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/simple/", func(w http.ResponseWriter, _ *http.Request) {
		names := make([]string, 0, len(packages))
		for name := range packages {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			fmt.Fprintf(w, "<a href=\"%s/\">%s</a>\n", name, name)
		}
	})
	for name, artifacts := range packages {
		if broken[name] {
			mux.HandleFunc("/simple/"+name+"/", func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "internal error", http.StatusInternalServerError)
			})
			continue
		}
		hrefs := artifacts
		mux.HandleFunc("/simple/"+name+"/", func(w http.ResponseWriter, _ *http.Request) {
			for _, href := range hrefs {
				fmt.Fprintf(w, "<a href=\"%s\">%s</a>\n", href, href)
			}
		})
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newPyPI(t *testing.T, server *httptest.Server) *PyPI {
	t.Helper()
	return &PyPI{
		SimpleBase:  mustTOMLURL(t, server.URL+"/simple"),
		PackageBase: mustTOMLURL(t, server.URL+"/packages"),
	}
}

func TestPyPISnapshot(t *testing.T) {
	t.Parallel()

	server := newSimpleIndexServer(t, map[string][]string{
		"numpy": {
			"../../packages/ab/numpy-1.20.0.whl#sha256=deadbeef",
			"../../packages/ab/numpy-1.20.0.tar.gz#sha256=cafebabe",
		},
		"requests": {
			"../../packages/cd/requests-2.25.1.whl#md5=0123",
		},
	}, nil)

	pypi := newPyPI(t, server)
	snapshot, err := pypi.Snapshot(context.Background(), testMission(t), testSnapshotConfig())
	if err != nil {
		t.Fatal("snapshot failed:", err)
	}

	slices.Sort(snapshot)
	want := []SnapshotPath{
		"ab/numpy-1.20.0.tar.gz",
		"ab/numpy-1.20.0.whl",
		"cd/requests-2.25.1.whl",
	}
	if !slices.Equal(snapshot, want) {
		t.Errorf("expected keys %v, got %v", want, snapshot)
	}
}

func TestPyPISnapshotBrokenChildIsNotFatal(t *testing.T) {
	t.Parallel()

	server := newSimpleIndexServer(t, map[string][]string{
		"numpy":    {"../../packages/ab/numpy-1.20.0.whl#sha256=ff"},
		"requests": {"../../packages/cd/requests-2.25.1.whl#sha256=ee"},
	}, map[string]bool{"requests": true})

	pypi := newPyPI(t, server)
	snapshot, err := pypi.Snapshot(context.Background(), testMission(t), testSnapshotConfig())
	if err != nil {
		t.Fatal("one broken child must not fail the crawl:", err)
	}

	want := []SnapshotPath{"ab/numpy-1.20.0.whl"}
	if !slices.Equal(snapshot, want) {
		t.Errorf("expected keys from the healthy children %v, got %v", want, snapshot)
	}
}

func TestPyPISnapshotRootFailureIsFatal(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	pypi := newPyPI(t, server)
	if _, err := pypi.Snapshot(context.Background(), testMission(t), testSnapshotConfig()); err == nil {
		t.Error("expected an error when the root index fetch fails")
	}
}

func TestPyPISnapshotDropsKeysOutsideBase(t *testing.T) {
	t.Parallel()

	server := newSimpleIndexServer(t, map[string][]string{
		"numpy": {
			"../../packages/ab/numpy-1.20.0.whl#sha256=ff",
			"https://elsewhere.example.org/numpy-1.20.0.tar.gz",
		},
	}, nil)

	pypi := newPyPI(t, server)
	snapshot, err := pypi.Snapshot(context.Background(), testMission(t), testSnapshotConfig())
	if err != nil {
		t.Fatal("snapshot failed:", err)
	}

	want := []SnapshotPath{"ab/numpy-1.20.0.whl"}
	if !slices.Equal(snapshot, want) {
		t.Errorf("expected out-of-base keys to be dropped, got %v", snapshot)
	}
}

func TestPyPISnapshotExcludePatterns(t *testing.T) {
	t.Parallel()

	server := newSimpleIndexServer(t, map[string][]string{
		"numpy": {
			"../../packages/ab/numpy-1.20.0.whl#sha256=ff",
			"../../packages/ab/numpy-1.20.0.tar.gz#sha256=ee",
		},
	}, nil)

	pypi := newPyPI(t, server)
	config := &SnapshotConfig{
		ConcurrentResolve: 4,
		ExcludePatterns:   []string{"**/*.tar.gz"},
	}
	snapshot, err := pypi.Snapshot(context.Background(), testMission(t), config)
	if err != nil {
		t.Fatal("snapshot failed:", err)
	}

	want := []SnapshotPath{"ab/numpy-1.20.0.whl"}
	if !slices.Equal(snapshot, want) {
		t.Errorf("expected tarballs excluded, got %v", snapshot)
	}
}

func TestPyPIGetObject(t *testing.T) {
	t.Parallel()

	pypi := &PyPI{
		PackageBase: mustTOMLURL(t, "https://mirror.example.com/pypi/packages"),
	}
	url, err := pypi.GetObject(context.Background(), "ab/numpy-1.20.0.whl", nil)
	if err != nil {
		t.Fatal("GetObject failed:", err)
	}
	want := TransferURL("https://mirror.example.com/pypi/packages/ab/numpy-1.20.0.whl")
	if url != want {
		t.Errorf("expected %q, got %q", want, url)
	}
}
