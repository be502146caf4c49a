// Package davpath provides byte-exact, share-root-relative path handling
// for WebDAV resource URLs: percent-decoding, NFC normalization, and the
// ancestor/depth arithmetic the lock manager and PROPFIND walker need.
package davpath

import (
	"net/url"
	gopath "path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Clean normalizes a resource path to its canonical form: percent-decoded,
// NFC-normalized UTF-8, "/"-separated, with "." and ".." segments resolved
// and a single leading "/".
func Clean(p string) string {
	if p == "" {
		p = "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	p = gopath.Clean(p)
	return norm.NFC.String(p)
}

// HasDotDot reports whether the raw (not yet cleaned) path contains a ".."
// segment. LocalFileSystem refuses such a path with errPathEscapesRoot;
// Router.Resolve cleans request paths before they reach a provider, so a
// ".." segment in a request URL is resolved there rather than rejected.
func HasDotDot(raw string) bool {
	for _, seg := range strings.Split(raw, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// InTree reports whether path is subtree itself or a descendant of it.
func InTree(path, subtree string) bool {
	if path == subtree {
		return true
	}
	if subtree != "/" && !strings.HasSuffix(subtree, "/") {
		subtree += "/"
	}
	return strings.HasPrefix(path, subtree)
}

// Included reports whether fn lies within subtree at a depth compatible
// with the given depth restriction (0, 1, or infiniteDepth < 0). When
// included, it also returns fn's path relative to subtree.
func Included(fn, subtree string, depth int) (rel string, ok bool) {
	if fn == subtree {
		return "", true
	}
	if !InTree(fn, subtree) {
		return "", false
	}
	rel = gopath.Clean(strings.TrimPrefix(fn, subtree))
	rel = strings.TrimPrefix(rel, "/")
	segs := strings.Count(rel, "/") + 1
	if depth >= 0 && segs > depth {
		return "", false
	}
	return rel, true
}

// Parent returns the parent collection path of p ("/" for top-level
// resources and for "/" itself).
func Parent(p string) string {
	if p == "/" {
		return "/"
	}
	dir := gopath.Dir(strings.TrimSuffix(p, "/"))
	if dir == "." {
		dir = "/"
	}
	return dir
}

// EscapedPath percent-encodes p for use in an <href> element.
func EscapedPath(p string) string {
	return (&url.URL{Path: p}).EscapedPath()
}
