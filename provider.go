package webdav

import (
	"context"
	"io"
	"time"

	"github.com/tryanks/davshare/internal/davpath"
)

// ResourceInfo is the live metadata a Provider reports for a resource: the
// subset of state that PROPFIND's computed properties (getetag,
// getlastmodified, getcontentlength, resourcetype) are derived from.
type ResourceInfo struct {
	Path       string
	Size       int64
	ModTime    time.Time
	IsDir      bool
	ETag       string
	ContentType string
}

// CreateOptions carries the conditional-request state relevant to PUT/LOCK
// resource creation (RFC 4918 §9.7 / RFC 7232).
type CreateOptions struct {
	IfMatch     ConditionalMatch
	IfNoneMatch ConditionalMatch
}

// RemoveOptions carries the conditional-request state relevant to DELETE.
type RemoveOptions struct {
	IfMatch     ConditionalMatch
	IfNoneMatch ConditionalMatch
}

// CopyOptions controls COPY semantics (RFC 4918 §9.8).
type CopyOptions struct {
	NoOverwrite bool
	Depth       int // 0 or infiniteDepth
}

// MoveOptions controls MOVE semantics (RFC 4918 §9.9).
type MoveOptions struct {
	NoOverwrite bool
}

// Provider is the pluggable backend a share mounts: SPEC_FULL.md §4.1's
// generalization of the teacher's FileSystem interface (fs_local.go /
// root.go) to cover any resource tree, content-addressed stores included.
// Paths passed to every method are share-relative and already
// davpath.Clean-ed by the Router.
type Provider interface {
	// Stat returns live metadata for name, or a *DAVError wrapping 404.
	Stat(ctx context.Context, name string) (*ResourceInfo, error)
	// ReadDir lists name's children (collections only); recursive walks
	// the whole subtree when true.
	ReadDir(ctx context.Context, name string, recursive bool) ([]ResourceInfo, error)
	// Open returns a reader over name's content.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Create writes body as name's content, creating or replacing it.
	Create(ctx context.Context, name string, body io.Reader, opts *CreateOptions) (info *ResourceInfo, created bool, err error)
	// Mkcol creates an empty collection at name.
	Mkcol(ctx context.Context, name string) error
	// Remove deletes name (recursively, if a collection).
	Remove(ctx context.Context, name string, opts *RemoveOptions) error
	// Copy duplicates src to dst within this provider.
	Copy(ctx context.Context, src, dst string, opts *CopyOptions) (created bool, err error)
	// Move renames src to dst within this provider.
	Move(ctx context.Context, src, dst string, opts *MoveOptions) (created bool, err error)
	// ReadOnly reports whether mutating methods should be rejected with
	// 403 Forbidden before they are ever called.
	ReadOnly() bool
}

// BatchProvider is implemented by providers needing per-request mutation
// bundling (SPEC_FULL.md §4.5's content-addressed repository.go). The
// PUT, MKCOL and DELETE handlers open a batch around each provider
// mutation, commit it on success and abort it on error; a panic is not
// caught. Other methods (COPY, MOVE, PROPPATCH, LOCK's placeholder
// creation, and the read-only methods) call the provider without a batch.
type BatchProvider interface {
	Provider
	BeginBatch(ctx context.Context) (Batch, error)
}

// Batch is a transaction bundling the mutations of one WebDAV method
// dispatch into a single atomic publish.
type Batch interface {
	Commit(ctx context.Context) error
	Abort(ctx context.Context) error
}

// Share binds a Provider to a mount point in the URL namespace.
type Share struct {
	// Name is the share's path segment under the server root, e.g.
	// "/files" or "/archive".
	Name     string
	Provider Provider
}

// Router dispatches a share-relative path to the Provider mounted at the
// longest matching share prefix, and exposes the synthetic root collection
// (root.go) listing mounted shares when no share matches.
type Router struct {
	shares []Share
	root   Provider
}

// NewRouter creates a Router serving root at "/" and every entry in
// shares at its mount point. Longest-prefix match decides which share
// owns a given request path. root may be nil and filled in later with
// SetRoot, since RootProvider itself needs a *Router to list shares from
// and so cannot be constructed before one exists.
func NewRouter(root Provider, shares ...Share) *Router {
	return &Router{shares: shares, root: root}
}

// SetRoot assigns the Provider serving the server root "/", breaking the
// construction cycle between Router and RootProvider: build the Router
// first (root nil), construct NewRootProvider(router), then SetRoot it.
func (rt *Router) SetRoot(root Provider) {
	rt.root = root
}

// Resolve maps a request path to its owning Provider and the
// provider-relative path within it. The root provider is returned, with
// providerPath "/", when reqPath names the server root itself.
func (rt *Router) Resolve(reqPath string) (p Provider, providerPath string, mount string, err error) {
	reqPath = davpath.Clean(reqPath)
	if reqPath == "/" {
		return rt.root, "/", "/", nil
	}
	best := -1
	var bestShare Share
	for _, s := range rt.shares {
		if rel, ok := davpath.Included(reqPath, s.Name, infiniteDepth); ok {
			if len(s.Name) > best {
				best = len(s.Name)
				bestShare = s
				providerPath = "/" + rel
			}
		}
	}
	if best < 0 {
		return rt.root, reqPath, "/", nil
	}
	if providerPath == "/" || providerPath == "" {
		providerPath = "/"
	}
	return bestShare.Provider, davpath.Clean(providerPath), bestShare.Name, nil
}

// Shares returns the mounted share names, for the root provider's
// synthetic listing and for OPTIONS advertisement.
func (rt *Router) Shares() []Share {
	return rt.shares
}

// noopBatch is the Batch used for providers that don't implement
// BatchProvider, so callers can always treat a dispatch as batched.
type noopBatch struct{}

func (noopBatch) Commit(ctx context.Context) error { return nil }
func (noopBatch) Abort(ctx context.Context) error  { return nil }

// beginBatch opens a Batch on p if it implements BatchProvider.
func beginBatch(ctx context.Context, p Provider) (Batch, error) {
	if bp, ok := p.(BatchProvider); ok {
		return bp.BeginBatch(ctx)
	}
	return noopBatch{}, nil
}

// finishBatch commits b when *errp is nil, aborts it otherwise.
func finishBatch(ctx context.Context, b Batch, errp *error) {
	if *errp != nil {
		b.Abort(ctx)
		return
	}
	if cerr := b.Commit(ctx); cerr != nil {
		*errp = cerr
	}
}
