// Package index provides parsers for the two listing formats mirror-clone
// understands: simple-index style HTML pages and long-format recursive
// directory listings.
package index

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

// anchorPattern matches one HTML anchor tag and captures its href and
// inner text. Index pages are machine generated, so a single generic
// pattern is enough; no full HTML parser is needed.
var anchorPattern = regexp.MustCompile(`<a[^>]*href="([^"]*)"[^>]*>(.*?)</a>`)

// Link is one anchor extracted from an index page.
type Link struct {
	Href  string
	Label string
}

// ExtractLinks returns every anchor tag's (href, label) pair in document
// order. Repeated anchors yield one Link per occurrence.
func ExtractLinks(page string) []Link {
	matches := anchorPattern.FindAllStringSubmatch(page, -1)
	links := make([]Link, 0, len(matches))
	for _, m := range matches {
		links = append(links, Link{Href: m[1], Label: m[2]})
	}
	return links
}

// Canonicalize resolves ref against base and strips any query or fragment,
// yielding a stable absolute URL for the object. Checksums embedded as
// fragments ("#sha256=...") and cache-busting query strings must not leak
// into snapshot keys, or every re-scan would see a brand new object.
//
// Canonicalize is idempotent: feeding a canonical URL back in with an
// empty ref returns it unchanged.
func Canonicalize(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", errors.Wrap(err, "parse base URL")
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", errors.Wrap(err, "parse href")
	}
	resolved := baseURL.ResolveReference(refURL)
	resolved.RawQuery = ""
	resolved.Fragment = ""
	resolved.RawFragment = ""
	return resolved.String(), nil
}

// ListingEntry is one parsed line of a long-format recursive listing,
// e.g. "drwxr-xr-x 4,096 2021/01/01 00:00:00 dists/stable".
type ListingEntry struct {
	Permissions string
	Size        string
	Date        string
	Time        string
	Path        string
}

// ParseListingLine splits a listing line into its five fields. The first
// four fields are delimited by runs of spaces; the path is everything
// after the fourth delimiter, so file names with embedded spaces survive.
func ParseListingLine(line string) (ListingEntry, error) {
	var entry ListingEntry
	fields := []*string{&entry.Permissions, &entry.Size, &entry.Date, &entry.Time}

	rest := line
	for i, field := range fields {
		if i > 0 {
			rest = strings.TrimLeft(rest, " ")
		}
		value, remainder, ok := strings.Cut(rest, " ")
		if !ok {
			return ListingEntry{}, errors.Newf("listing line has fewer than five fields: %q", line)
		}
		*field = value
		rest = remainder
	}
	entry.Path = rest
	return entry, nil
}

// IsRegularFile reports whether a listing entry describes a plain file.
// Directories, symlinks and special files are not mirrorable objects.
func (e ListingEntry) IsRegularFile() bool {
	return strings.HasPrefix(e.Permissions, "-rw")
}
