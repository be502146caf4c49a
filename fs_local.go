package webdav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	gopath "path"
	"path/filepath"
	"strings"

	"github.com/tryanks/davshare/internal/davpath"
)

// LocalFileSystem is a Provider backed by a directory on the local disk.
// Adapted from the teacher's LocalFileSystem (fs_local.go) to the Provider
// interface in provider.go; path validation now goes through
// internal/davpath instead of the teacher's missing internal package.
type LocalFileSystem struct {
	Root     string
	readOnly bool
}

// NewLocalFileSystem creates a Provider rooted at dir.
func NewLocalFileSystem(dir string, readOnly bool) *LocalFileSystem {
	return &LocalFileSystem{Root: dir, readOnly: readOnly}
}

var _ Provider = (*LocalFileSystem)(nil)

func (l *LocalFileSystem) ReadOnly() bool { return l.readOnly }

func (l *LocalFileSystem) localPath(name string) (string, error) {
	if strings.Contains(name, "\x00") {
		return "", NewHTTPError(http.StatusBadRequest, fmt.Errorf("invalid character in path"))
	}
	if davpath.HasDotDot(name) {
		return "", errPathEscapesRoot
	}
	name = davpath.Clean(name)
	return filepath.Join(l.Root, filepath.FromSlash(name)), nil
}

func (l *LocalFileSystem) externalPath(p string) (string, error) {
	rel, err := filepath.Rel(l.Root, p)
	if err != nil {
		return "", err
	}
	return "/" + filepath.ToSlash(rel), nil
}

func errFromOS(err error) error {
	var perr *fs.PathError
	if errors.As(err, &perr) {
		err = fmt.Errorf("%s: %w", perr.Op, perr.Err)
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return NewHTTPError(http.StatusNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return NewHTTPError(http.StatusForbidden, err)
	case errors.Is(err, os.ErrDeadlineExceeded):
		return NewHTTPError(http.StatusServiceUnavailable, err)
	default:
		return err
	}
}

func infoFromOS(p string, fi os.FileInfo) *ResourceInfo {
	return &ResourceInfo{
		Path:        p,
		Size:        fi.Size(),
		ModTime:     fi.ModTime(),
		IsDir:       fi.IsDir(),
		ContentType: mime.TypeByExtension(gopath.Ext(p)),
		// A strong ETag would require hashing content on every Stat; the
		// teacher uses mtime+size instead, which is cheap and good enough
		// as long as the filesystem's mtime resolution beats request rate.
		ETag: fmt.Sprintf(`"%x%x"`, fi.ModTime().UnixNano(), fi.Size()),
	}
}

func (l *LocalFileSystem) Stat(ctx context.Context, name string) (*ResourceInfo, error) {
	p, err := l.localPath(name)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		return nil, errFromOS(err)
	}
	return infoFromOS(davpath.Clean(name), fi), nil
}

func (l *LocalFileSystem) ReadDir(ctx context.Context, name string, recursive bool) ([]ResourceInfo, error) {
	root, err := l.localPath(name)
	if err != nil {
		return nil, err
	}
	var out []ResourceInfo
	walkErr := filepath.Walk(root, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		href, err := l.externalPath(p)
		if err != nil {
			return err
		}
		out = append(out, *infoFromOS(href, fi))
		if !recursive && fi.IsDir() && p != root {
			return filepath.SkipDir
		}
		return nil
	})
	if walkErr != nil {
		return nil, errFromOS(walkErr)
	}
	return out, nil
}

func (l *LocalFileSystem) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	p, err := l.localPath(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, errFromOS(err)
	}
	return f, nil
}

func checkConditionalMatches(fi *ResourceInfo, ifMatch, ifNoneMatch ConditionalMatch) error {
	etag := ""
	if fi != nil {
		etag = fi.ETag
	}
	if ifMatch.IsSet() {
		ok, err := ifMatch.MatchETag(etag)
		if err != nil {
			return NewHTTPError(http.StatusBadRequest, err)
		}
		if !ok {
			return NewHTTPError(http.StatusPreconditionFailed, fmt.Errorf("If-Match condition failed"))
		}
	}
	if ifNoneMatch.IsSet() {
		ok, err := ifNoneMatch.MatchETag(etag)
		if err != nil {
			return NewHTTPError(http.StatusBadRequest, err)
		}
		if ok {
			return NewHTTPError(http.StatusPreconditionFailed, fmt.Errorf("If-None-Match condition failed"))
		}
	}
	return nil
}

func (l *LocalFileSystem) Create(ctx context.Context, name string, body io.Reader, opts *CreateOptions) (*ResourceInfo, bool, error) {
	if l.readOnly {
		return nil, false, errReadOnly
	}
	p, err := l.localPath(name)
	if err != nil {
		return nil, false, err
	}
	existing, _ := l.Stat(ctx, name)
	created := existing == nil
	if opts != nil {
		if err := checkConditionalMatches(existing, opts.IfMatch, opts.IfNoneMatch); err != nil {
			return nil, false, err
		}
	}
	if _, err := os.Stat(filepath.Dir(p)); os.IsNotExist(err) {
		return nil, false, NewHTTPError(http.StatusConflict, fmt.Errorf("parent collection doesn't exist"))
	}
	wc, err := os.Create(p)
	if err != nil {
		return nil, false, errFromOS(err)
	}
	defer wc.Close()
	if _, err := io.Copy(wc, body); err != nil {
		os.Remove(p)
		return nil, false, err
	}
	if err := wc.Close(); err != nil {
		os.Remove(p)
		return nil, false, err
	}
	fi, err := l.Stat(ctx, name)
	if err != nil {
		return nil, false, err
	}
	return fi, created, nil
}

func (l *LocalFileSystem) Mkcol(ctx context.Context, name string) error {
	if l.readOnly {
		return errReadOnly
	}
	p, err := l.localPath(name)
	if err != nil {
		return err
	}
	fi, statErr := os.Stat(p)
	if statErr == nil {
		if fi.IsDir() {
			return NewHTTPError(http.StatusMethodNotAllowed, fmt.Errorf("collection already exists"))
		}
		return NewHTTPError(http.StatusMethodNotAllowed, fmt.Errorf("resource exists and is not a collection"))
	} else if !os.IsNotExist(statErr) {
		return errFromOS(statErr)
	}
	if _, err := os.Stat(filepath.Dir(p)); os.IsNotExist(err) {
		return NewHTTPError(http.StatusConflict, fmt.Errorf("parent collection doesn't exist"))
	}
	if err := os.Mkdir(p, 0755); err != nil {
		return errFromOS(err)
	}
	return nil
}

func (l *LocalFileSystem) Remove(ctx context.Context, name string, opts *RemoveOptions) error {
	if l.readOnly {
		return errReadOnly
	}
	p, err := l.localPath(name)
	if err != nil {
		return err
	}
	fi, err := l.Stat(ctx, name)
	if err != nil {
		return errFromOS(err)
	}
	if opts != nil {
		if err := checkConditionalMatches(fi, opts.IfMatch, opts.IfNoneMatch); err != nil {
			return err
		}
	}
	return errFromOS(os.RemoveAll(p))
}

func copyRegularFile(src, dst string, perm os.FileMode) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return errFromOS(err)
	}
	defer srcFile.Close()
	dstFile, err := os.OpenFile(dst, os.O_RDWR|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return errFromOS(err)
	}
	defer dstFile.Close()
	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return err
	}
	return dstFile.Close()
}

func (l *LocalFileSystem) Copy(ctx context.Context, src, dst string, opts *CopyOptions) (bool, error) {
	if l.readOnly {
		return false, errReadOnly
	}
	srcPath, err := l.localPath(src)
	if err != nil {
		return false, err
	}
	dstPath, err := l.localPath(dst)
	if err != nil {
		return false, err
	}
	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		return false, errFromOS(err)
	}
	srcPerm := srcInfo.Mode() & os.ModePerm
	if _, err := os.Stat(filepath.Dir(dstPath)); os.IsNotExist(err) {
		return false, NewHTTPError(http.StatusConflict, fmt.Errorf("destination parent collection doesn't exist"))
	}
	created := true
	if _, err := os.Stat(dstPath); err == nil {
		if opts != nil && opts.NoOverwrite {
			return false, NewHTTPError(http.StatusPreconditionFailed, os.ErrExist)
		}
		created = false
		if err := os.RemoveAll(dstPath); err != nil {
			return false, errFromOS(err)
		}
	} else if !os.IsNotExist(err) {
		return false, errFromOS(err)
	}

	if srcInfo.IsDir() {
		if err := os.MkdirAll(dstPath, srcPerm); err != nil {
			return false, errFromOS(err)
		}
		if opts != nil && opts.Depth == 0 {
			return created, nil
		}
		walkErr := filepath.Walk(srcPath, func(p string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if p == srcPath {
				return nil
			}
			rel, err := filepath.Rel(srcPath, p)
			if err != nil {
				return err
			}
			dstItem := filepath.Join(dstPath, rel)
			if fi.IsDir() {
				return os.MkdirAll(dstItem, fi.Mode()&os.ModePerm)
			}
			return copyRegularFile(p, dstItem, fi.Mode()&os.ModePerm)
		})
		if walkErr != nil {
			return false, errFromOS(walkErr)
		}
	} else if err := copyRegularFile(srcPath, dstPath, srcPerm); err != nil {
		return false, err
	}
	return created, nil
}

func (l *LocalFileSystem) Move(ctx context.Context, src, dst string, opts *MoveOptions) (bool, error) {
	if l.readOnly {
		return false, errReadOnly
	}
	srcPath, err := l.localPath(src)
	if err != nil {
		return false, err
	}
	dstPath, err := l.localPath(dst)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(srcPath); err != nil {
		return false, errFromOS(err)
	}
	if _, err := os.Stat(filepath.Dir(dstPath)); os.IsNotExist(err) {
		return false, NewHTTPError(http.StatusConflict, fmt.Errorf("destination parent collection doesn't exist"))
	}
	created := true
	if _, err := os.Stat(dstPath); err == nil {
		if opts != nil && opts.NoOverwrite {
			return false, NewHTTPError(http.StatusPreconditionFailed, os.ErrExist)
		}
		created = false
		if err := os.RemoveAll(dstPath); err != nil {
			return false, errFromOS(err)
		}
	} else if !os.IsNotExist(err) {
		return false, errFromOS(err)
	}

	if err := os.Rename(srcPath, dstPath); err == nil {
		return created, nil
	}

	// Cross-device rename: fall back to copy-then-delete.
	if _, err := l.Copy(ctx, src, dst, &CopyOptions{NoOverwrite: opts != nil && opts.NoOverwrite}); err != nil {
		return false, err
	}
	if err := os.RemoveAll(srcPath); err != nil {
		os.RemoveAll(dstPath)
		return false, errFromOS(err)
	}
	return created, nil
}
