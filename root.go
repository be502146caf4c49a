package webdav

import (
	"context"
	"io"
	"time"

	"github.com/tryanks/davshare/internal/davpath"
)

// RootProvider is the synthetic collection mounted at "/": a read-only
// listing of every share name the Router exposes, with no backing content
// of its own. SPEC_FULL.md §9's resolved Open Question ("what does GET/
// PROPFIND on the server root show?") answers it this way, rather than
// exposing the first share's content or a 404.
//
// This replaces the teacher's RootFileSystem, which wrapped os.Root to
// sandbox a single local directory; os.Root's escape-proof path
// resolution is kept, but one level up, inside LocalFileSystem's
// davpath-based localPath instead (fs_local.go), since the root itself no
// longer maps onto any single directory.
type RootProvider struct {
	router  *Router
	started time.Time
}

// NewRootProvider creates the server-root Provider. router is consulted
// lazily on every call, so shares registered after construction are
// picked up automatically.
func NewRootProvider(router *Router) *RootProvider {
	return &RootProvider{router: router, started: time.Now()}
}

var _ Provider = (*RootProvider)(nil)

func (r *RootProvider) ReadOnly() bool { return true }

func (r *RootProvider) Stat(ctx context.Context, name string) (*ResourceInfo, error) {
	name = davpath.Clean(name)
	if name == "/" {
		return &ResourceInfo{Path: "/", IsDir: true, ModTime: r.started, ETag: `"root"`}, nil
	}
	for _, s := range r.router.Shares() {
		if s.Name == name {
			return &ResourceInfo{Path: name, IsDir: true, ModTime: r.started, ETag: `"share:` + s.Name + `"`}, nil
		}
	}
	return nil, errNoSuchShare
}

func (r *RootProvider) ReadDir(ctx context.Context, name string, recursive bool) ([]ResourceInfo, error) {
	name = davpath.Clean(name)
	if name != "/" {
		return nil, errNoSuchShare
	}
	out := make([]ResourceInfo, 0, len(r.router.Shares())+1)
	out = append(out, ResourceInfo{Path: "/", IsDir: true, ModTime: r.started, ETag: `"root"`})
	for _, s := range r.router.Shares() {
		out = append(out, ResourceInfo{Path: s.Name, IsDir: true, ModTime: r.started, ETag: `"share:` + s.Name + `"`})
	}
	return out, nil
}

func (r *RootProvider) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return nil, NewHTTPError(405, errUnsupportedMethod)
}

func (r *RootProvider) Create(ctx context.Context, name string, body io.Reader, opts *CreateOptions) (*ResourceInfo, bool, error) {
	return nil, false, errReadOnly
}

func (r *RootProvider) Mkcol(ctx context.Context, name string) error { return errReadOnly }

func (r *RootProvider) Remove(ctx context.Context, name string, opts *RemoveOptions) error {
	return errReadOnly
}

func (r *RootProvider) Copy(ctx context.Context, src, dst string, opts *CopyOptions) (bool, error) {
	return false, errReadOnly
}

func (r *RootProvider) Move(ctx context.Context, src, dst string, opts *MoveOptions) (bool, error) {
	return false, errReadOnly
}
