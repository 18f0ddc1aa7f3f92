package index

import (
	"testing"
)

func TestExtractLinks(t *testing.T) {
	t.Parallel()

	page := `<html><body>
<a href="zope.interface/">zope.interface</a>
<a class="pkg" href="numpy/">numpy</a>
<a href="numpy/">numpy</a>
</body></html>`

	links := ExtractLinks(page)
	if len(links) != 3 {
		t.Fatalf("expected 3 links, got %d: %v", len(links), links)
	}

	expected := []Link{
		{Href: "zope.interface/", Label: "zope.interface"},
		{Href: "numpy/", Label: "numpy"},
		{Href: "numpy/", Label: "numpy"},
	}
	for i, want := range expected {
		if links[i] != want {
			t.Errorf("link %d: expected %v, got %v", i, want, links[i])
		}
	}
}

func TestExtractLinksSameLine(t *testing.T) {
	t.Parallel()

	page := `<a href="a.whl">a</a> <a href="b.whl">b</a>`
	links := ExtractLinks(page)
	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %d: %v", len(links), links)
	}
	if links[0].Href != "a.whl" || links[1].Href != "b.whl" {
		t.Errorf("unexpected links: %v", links)
	}
}

func TestExtractLinksEmpty(t *testing.T) {
	t.Parallel()

	if links := ExtractLinks("<html><body>no anchors here</body></html>"); len(links) != 0 {
		t.Errorf("expected no links, got %v", links)
	}
}

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		base string
		ref  string
		want string
	}{
		{
			name: "strip checksum fragment",
			base: "https://mirror.example.com/pypi/simple/numpy/",
			ref:  "../../packages/ab/cd/numpy-1.20.0.whl#sha256=deadbeef",
			want: "https://mirror.example.com/pypi/packages/ab/cd/numpy-1.20.0.whl",
		},
		{
			name: "strip query string",
			base: "https://mirror.example.com/pypi/simple/numpy/",
			ref:  "numpy-1.20.0.tar.gz?expires=12345",
			want: "https://mirror.example.com/pypi/simple/numpy/numpy-1.20.0.tar.gz",
		},
		{
			name: "absolute href wins over base",
			base: "https://mirror.example.com/pypi/simple/numpy/",
			ref:  "https://files.example.org/numpy-1.20.0.whl#md5=0123",
			want: "https://files.example.org/numpy-1.20.0.whl",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Canonicalize(tc.base, tc.ref)
			if err != nil {
				t.Fatal("Canonicalize failed:", err)
			}
			if got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	t.Parallel()

	canonical, err := Canonicalize("https://mirror.example.com/pypi/simple/numpy/", "numpy-1.20.0.whl#sha256=ff")
	if err != nil {
		t.Fatal("Canonicalize failed:", err)
	}

	again, err := Canonicalize(canonical, "")
	if err != nil {
		t.Fatal("Canonicalize failed on canonical input:", err)
	}
	if again != canonical {
		t.Errorf("canonicalizing %q again changed it to %q", canonical, again)
	}
}

func TestParseListingLine(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		line string
		want ListingEntry
	}{
		{
			name: "regular file",
			line: "-rw-r--r--          4,096 2021/01/01 00:00:00 dists/stable/Release",
			want: ListingEntry{
				Permissions: "-rw-r--r--",
				Size:        "4,096",
				Date:        "2021/01/01",
				Time:        "00:00:00",
				Path:        "dists/stable/Release",
			},
		},
		{
			name: "directory",
			line: "drwxr-xr-x 0 2021/01/01 00:00:00 dists",
			want: ListingEntry{
				Permissions: "drwxr-xr-x",
				Size:        "0",
				Date:        "2021/01/01",
				Time:        "00:00:00",
				Path:        "dists",
			},
		},
		{
			name: "path with embedded spaces",
			line: "-rw-r--r-- 12 2021/01/01 00:00:00 docs/read me first.txt",
			want: ListingEntry{
				Permissions: "-rw-r--r--",
				Size:        "12",
				Date:        "2021/01/01",
				Time:        "00:00:00",
				Path:        "docs/read me first.txt",
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseListingLine(tc.line)
			if err != nil {
				t.Fatal("ParseListingLine failed:", err)
			}
			if got != tc.want {
				t.Errorf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestParseListingLineMalformed(t *testing.T) {
	t.Parallel()

	lines := []string{
		"",
		"-rw-r--r--",
		"-rw-r--r-- 42",
		"-rw-r--r-- 42 2021/01/01",
		"-rw-r--r-- 42 2021/01/01 00:00:00",
		"sending incremental file list",
	}
	for _, line := range lines {
		if _, err := ParseListingLine(line); err == nil {
			t.Errorf("expected parse error for %q", line)
		}
	}
}

func TestIsRegularFile(t *testing.T) {
	t.Parallel()

	cases := []struct {
		permissions string
		want        bool
	}{
		{"-rw-r--r--", true},
		{"-rwxr-xr-x", true},
		{"drwxr-xr-x", false},
		{"lrwxrwxrwx", false},
		{"crw-rw-rw-", false},
	}
	for _, tc := range cases {
		entry := ListingEntry{Permissions: tc.permissions}
		if got := entry.IsRegularFile(); got != tc.want {
			t.Errorf("IsRegularFile(%q): expected %v, got %v", tc.permissions, tc.want, got)
		}
	}
}
