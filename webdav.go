// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package webdav implements an RFC 4918 WebDAV server over a pluggable
// Provider tree, with RFC 4918 §6 locking, §10.4 conditional requests and
// §9.2 dead-property storage.
package webdav

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tryanks/davshare/internal/davpath"
)

// Handler is the RFC 4918 method engine: it dispatches each HTTP request
// to the Provider the Router resolves for its path, applies the If:/lock/
// conditional-header preconditions common to every method, and renders
// Multi-Status or single-status responses.
//
// Adapted from the teacher's Handler in webdav.go (originally a thin
// wrapper over a single FileSystem/LockSystem pair); this version routes
// through Router to support multiple mounted shares and folds in the
// dead-property manager the teacher's server.go kept separately.
type Handler struct {
	Prefix string
	Router *Router
	Locks  *LockManager
	Props  PropertyManager
	Logger func(r *http.Request, status int, err error)
}

func (h *Handler) stripPrefix(p string) (string, error) {
	if h.Prefix == "" {
		return p, nil
	}
	if r := strings.TrimPrefix(p, h.Prefix); len(r) < len(p) {
		if r == "" {
			r = "/"
		}
		return r, nil
	}
	return p, errPrefixMismatch
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var status int
	var err error

	switch {
	case h.Router == nil:
		status, err = http.StatusInternalServerError, errNoFileSystem
	case h.Locks == nil:
		status, err = http.StatusInternalServerError, errNoLockSystem
	default:
		switch r.Method {
		case http.MethodOptions:
			status, err = h.handleOptions(w, r)
		case http.MethodGet, http.MethodHead:
			status, err = h.handleGetHead(w, r)
		case http.MethodDelete:
			status, err = h.handleDelete(w, r)
		case http.MethodPut:
			status, err = h.handlePut(w, r)
		case MethodMkcol:
			status, err = h.handleMkcol(w, r)
		case MethodCopy, MethodMove:
			status, err = h.handleCopyMove(w, r)
		case MethodLock:
			status, err = h.handleLock(w, r)
		case MethodUnlock:
			status, err = h.handleUnlock(w, r)
		case MethodPropfind:
			status, err = h.handlePropfind(w, r)
		case MethodProppatch:
			status, err = h.handleProppatch(w, r)
		default:
			status, err = http.StatusNotImplemented, errUnsupportedMethod
		}
	}

	if status != 0 {
		if de, ok := err.(*DAVError); ok && de.StatusCode == status {
			writeError(w, de, false)
		} else {
			writeError(w, NewHTTPError(status, err), false)
		}
	}
	if h.Logger != nil {
		h.Logger(r, status, err)
	}
}

func (h *Handler) resolve(reqPath string) (Provider, string, error) {
	p, providerPath, _, err := h.Router.Resolve(reqPath)
	if err != nil {
		return nil, "", err
	}
	return p, providerPath, nil
}

// lock takes a short-lived exclusive lock used to guard an unlocked
// client's request against a concurrent lock from someone else, mirroring
// the teacher's confirmLocks behavior for an empty If: header.
func (h *Handler) lock(root string) (token string, err error) {
	l, err := h.Locks.Create(root, 0, ScopeExclusive, "", 30*time.Second, "", false)
	if err != nil {
		return "", err
	}
	return l.Token, nil
}

// confirmLocks enforces the If: header and the lock compatibility rules
// for a request touching src (and, for COPY/MOVE, dst). It returns a
// release func to call when the request is done, per RFC 4918 §10.4.1/§6.
func (h *Handler) confirmLocks(r *http.Request, src, dst string) (release func(), err error) {
	hdr := r.Header.Get("If")
	if hdr == "" {
		var srcToken, dstToken string
		if src != "" {
			if ok, missing := h.Locks.Confirm(src, nil); !ok {
				return nil, conflictError(missing)
			}
			srcToken, err = h.lock(src)
			if err != nil {
				return nil, err
			}
		}
		if dst != "" {
			if ok, missing := h.Locks.Confirm(dst, nil); !ok {
				if srcToken != "" {
					h.Locks.Unlock(srcToken, "")
				}
				return nil, conflictError(missing)
			}
			dstToken, err = h.lock(dst)
			if err != nil {
				if srcToken != "" {
					h.Locks.Unlock(srcToken, "")
				}
				return nil, err
			}
		}
		return func() {
			if dstToken != "" {
				h.Locks.Unlock(dstToken, "")
			}
			if srcToken != "" {
				h.Locks.Unlock(srcToken, "")
			}
		}, nil
	}

	ih, ok := parseIfHeader(hdr)
	if !ok {
		return nil, errInvalidIfHeader
	}
	env := lockEvalEnv{lm: h.Locks}
	if !ih.eval(env, src) {
		return nil, ErrConfirmationFailed
	}
	if ok, missing := h.Locks.Confirm(src, ih.submittedTokens()); !ok {
		return nil, conflictError(missing)
	}
	if dst != "" {
		if ok, missing := h.Locks.Confirm(dst, ih.submittedTokens()); !ok {
			return nil, conflictError(missing)
		}
	}
	return func() {}, nil
}

func (h *Handler) handleOptions(w http.ResponseWriter, r *http.Request) (int, error) {
	reqPath, err := h.stripPrefix(r.URL.Path)
	if err != nil {
		return http.StatusNotFound, err
	}
	allow := "OPTIONS, LOCK, PUT, MKCOL"
	if provider, providerPath, rerr := h.resolve(reqPath); rerr == nil {
		if fi, serr := provider.Stat(r.Context(), providerPath); serr == nil {
			if fi.IsDir {
				allow = "OPTIONS, LOCK, DELETE, PROPPATCH, COPY, MOVE, UNLOCK, PROPFIND"
			} else {
				allow = "OPTIONS, LOCK, GET, HEAD, DELETE, PROPPATCH, COPY, MOVE, UNLOCK, PROPFIND, PUT"
			}
		}
	}
	w.Header().Set("Allow", allow)
	w.Header().Set("DAV", "1, 2")
	w.Header().Set("MS-Author-Via", "DAV")
	return 0, nil
}

func (h *Handler) handleGetHead(w http.ResponseWriter, r *http.Request) (int, error) {
	reqPath, err := h.stripPrefix(r.URL.Path)
	if err != nil {
		return http.StatusNotFound, err
	}
	provider, providerPath, err := h.resolve(reqPath)
	if err != nil {
		return http.StatusNotFound, err
	}
	ctx := r.Context()
	fi, err := provider.Stat(ctx, providerPath)
	if err != nil {
		return http.StatusNotFound, err
	}
	if fi.IsDir {
		serveDirListing(w, r, provider, providerPath, fi)
		return 0, nil
	}

	if err := checkGetPreconditions(r, fi); err != nil {
		de := AsDAVError(err)
		return de.StatusCode, err
	}

	rc, err := provider.Open(ctx, providerPath)
	if err != nil {
		return http.StatusNotFound, err
	}
	defer rc.Close()

	w.Header().Set("ETag", fi.ETag)
	if ra, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, providerPath, fi.ModTime, ra)
		return 0, nil
	}
	if fi.ContentType != "" {
		w.Header().Set("Content-Type", fi.ContentType)
	}
	w.Header().Set("Content-Length", strconv.FormatInt(fi.Size, 10))
	if r.Method == http.MethodHead {
		return 0, nil
	}
	io.Copy(w, rc)
	return 0, nil
}

// checkGetPreconditions implements RFC 7232's If-Match/If-None-Match/
// If-Modified-Since/If-Unmodified-Since for read requests.
func checkGetPreconditions(r *http.Request, fi *ResourceInfo) error {
	if v := r.Header.Get("If-Match"); v != "" {
		ok, _ := ConditionalMatch(v).MatchETag(fi.ETag)
		if !ok {
			return NewHTTPError(http.StatusPreconditionFailed, fmt.Errorf("If-Match failed"))
		}
	}
	if v := r.Header.Get("If-Unmodified-Since"); v != "" {
		if t, terr := http.ParseTime(v); terr == nil && fi.ModTime.After(t) {
			return NewHTTPError(http.StatusPreconditionFailed, fmt.Errorf("If-Unmodified-Since failed"))
		}
	}
	if v := r.Header.Get("If-None-Match"); v != "" {
		ok, _ := ConditionalMatch(v).MatchETag(fi.ETag)
		if ok {
			return NewHTTPError(http.StatusNotModified, nil)
		}
	} else if v := r.Header.Get("If-Modified-Since"); v != "" {
		if t, terr := http.ParseTime(v); terr == nil && !fi.ModTime.After(t) {
			return NewHTTPError(http.StatusNotModified, nil)
		}
	}
	return nil
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) (int, error) {
	reqPath, err := h.stripPrefix(r.URL.Path)
	if err != nil {
		return http.StatusNotFound, err
	}
	release, err := h.confirmLocks(r, reqPath, "")
	if err != nil {
		return AsDAVError(err).StatusCode, err
	}
	defer release()

	provider, providerPath, err := h.resolve(reqPath)
	if err != nil {
		return http.StatusNotFound, err
	}
	ctx := r.Context()
	fi, err := provider.Stat(ctx, providerPath)
	if err != nil {
		return http.StatusNotFound, err
	}

	// RFC 4918 §9.6.1: Depth on DELETE must be "infinity" when given at
	// all; "0" against a collection asks for something DELETE cannot do
	// (remove the collection without its members) and is a client error.
	if hdr := r.Header.Get("Depth"); hdr != "" {
		depth := parseDepth(hdr)
		if depth == invalidDepth || (depth == 0 && fi.IsDir) {
			return http.StatusBadRequest, errInvalidDepth
		}
	}

	if !fi.IsDir {
		return h.deleteOne(ctx, provider, providerPath, reqPath, r)
	}
	return h.deleteTree(w, ctx, provider, providerPath, reqPath, r, ifSubmittedTokens(r))
}

// ifSubmittedTokens extracts every lock token named in the request's If:
// header, the same set confirmLocks matches a single resource's covering
// locks against. A malformed header yields no tokens rather than an error
// here; deleteTree only uses this to decide which descendants are
// unlockable, and confirmLocks has already rejected a malformed header for
// reqPath itself before deleteTree ever runs.
func ifSubmittedTokens(r *http.Request) []string {
	hdr := r.Header.Get("If")
	if hdr == "" {
		return nil
	}
	ih, ok := parseIfHeader(hdr)
	if !ok {
		return nil
	}
	return ih.submittedTokens()
}

func (h *Handler) deleteOne(ctx context.Context, provider Provider, providerPath, reqPath string, r *http.Request) (int, error) {
	batch, err := beginBatch(ctx, provider)
	if err != nil {
		return http.StatusInternalServerError, err
	}
	removeErr := provider.Remove(ctx, providerPath, &RemoveOptions{
		IfMatch:     ConditionalMatch(r.Header.Get("If-Match")),
		IfNoneMatch: ConditionalMatch(r.Header.Get("If-None-Match")),
	})
	finishBatch(ctx, batch, &removeErr)
	if removeErr != nil {
		return AsDAVError(removeErr).StatusCode, removeErr
	}
	h.Props.Remove(reqPath, true)
	h.Locks.RemoveUnderSubtree(reqPath)
	return http.StatusNoContent, nil
}

// deleteTree implements RFC 4918 §9.6.1's recursive DELETE: remove as
// much of the subtree as possible and report every resource that could
// not be removed in a 207 Multi-Status, rather than failing the whole
// request over one rejected descendant. A collection is only removed
// once every member beneath it is gone; a descendant left behind by a
// failure makes its ancestors 424 Failed Dependency instead of being
// silently deleted out from under the surviving child.
func (h *Handler) deleteTree(w http.ResponseWriter, ctx context.Context, provider Provider, providerPath, reqPath string, r *http.Request, tokens []string) (int, error) {
	items, err := provider.ReadDir(ctx, providerPath, true)
	if err != nil {
		return http.StatusInternalServerError, err
	}
	sort.Slice(items, func(i, j int) bool { return len(items[i].Path) > len(items[j].Path) })

	failed := make(map[string]bool, len(items))
	var responses []*responseXML

	for i := range items {
		item := items[i]
		ref := davpath.Clean(reqPath + strings.TrimPrefix(item.Path, providerPath))
		if item.Path == providerPath {
			ref = reqPath
		}

		if hasFailedDescendant(item.Path, failed) {
			failed[item.Path] = true
			responses = append(responses, makeStatusResponse(ref, StatusFailedDependency))
			continue
		}

		// confirmLocks already cleared reqPath itself; every other member
		// of the subtree still needs its own covering locks checked here,
		// since a lock rooted below the collection being deleted never
		// shows up in that single top-level check.
		if item.Path != providerPath {
			if ok, _ := h.Locks.Confirm(ref, tokens); !ok {
				failed[item.Path] = true
				responses = append(responses, makeStatusResponse(ref, StatusLocked))
				continue
			}
		}

		var opts *RemoveOptions
		if item.Path == providerPath {
			opts = &RemoveOptions{
				IfMatch:     ConditionalMatch(r.Header.Get("If-Match")),
				IfNoneMatch: ConditionalMatch(r.Header.Get("If-None-Match")),
			}
		}
		batch, err := beginBatch(ctx, provider)
		if err != nil {
			failed[item.Path] = true
			responses = append(responses, makeStatusResponse(ref, http.StatusInternalServerError))
			continue
		}
		removeErr := provider.Remove(ctx, item.Path, opts)
		finishBatch(ctx, batch, &removeErr)
		if removeErr != nil {
			failed[item.Path] = true
			responses = append(responses, makeStatusResponse(ref, AsDAVError(removeErr).StatusCode))
			continue
		}
		h.Props.Remove(ref, true)
		h.Locks.RemoveUnderSubtree(ref)
	}

	if len(responses) == 0 {
		return http.StatusNoContent, nil
	}
	mw := multistatusWriter{w: w}
	for _, resp := range responses {
		if werr := mw.write(resp); werr != nil {
			return http.StatusInternalServerError, werr
		}
	}
	if werr := mw.close(); werr != nil {
		return http.StatusInternalServerError, werr
	}
	return 0, nil
}

// hasFailedDescendant reports whether any path already recorded as
// failed lies strictly beneath path, given failed is populated
// depth-first (deepest paths processed, and so resolved, before path
// itself is reached).
func hasFailedDescendant(path string, failed map[string]bool) bool {
	prefix := path
	if prefix != "/" {
		prefix += "/"
	}
	for p := range failed {
		if p != path && strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) (int, error) {
	reqPath, err := h.stripPrefix(r.URL.Path)
	if err != nil {
		return http.StatusNotFound, err
	}
	release, err := h.confirmLocks(r, reqPath, "")
	if err != nil {
		return AsDAVError(err).StatusCode, err
	}
	defer release()

	provider, providerPath, err := h.resolve(reqPath)
	if err != nil {
		return http.StatusNotFound, err
	}
	ctx := r.Context()
	batch, err := beginBatch(ctx, provider)
	if err != nil {
		return http.StatusInternalServerError, err
	}
	fi, created, createErr := provider.Create(ctx, providerPath, r.Body, &CreateOptions{
		IfMatch:     ConditionalMatch(r.Header.Get("If-Match")),
		IfNoneMatch: ConditionalMatch(r.Header.Get("If-None-Match")),
	})
	finishBatch(ctx, batch, &createErr)
	if createErr != nil {
		return AsDAVError(createErr).StatusCode, createErr
	}
	w.Header().Set("ETag", fi.ETag)
	if created {
		return http.StatusCreated, nil
	}
	return http.StatusNoContent, nil
}

func (h *Handler) handleMkcol(w http.ResponseWriter, r *http.Request) (int, error) {
	reqPath, err := h.stripPrefix(r.URL.Path)
	if err != nil {
		return http.StatusNotFound, err
	}
	release, err := h.confirmLocks(r, reqPath, "")
	if err != nil {
		return AsDAVError(err).StatusCode, err
	}
	defer release()

	if r.ContentLength > 0 {
		return http.StatusUnsupportedMediaType, nil
	}
	provider, providerPath, err := h.resolve(reqPath)
	if err != nil {
		return http.StatusNotFound, err
	}
	ctx := r.Context()
	batch, err := beginBatch(ctx, provider)
	if err != nil {
		return http.StatusInternalServerError, err
	}
	mkErr := provider.Mkcol(ctx, providerPath)
	finishBatch(ctx, batch, &mkErr)
	if mkErr != nil {
		return AsDAVError(mkErr).StatusCode, mkErr
	}
	return http.StatusCreated, nil
}

func (h *Handler) destination(r *http.Request) (string, error) {
	hdr := r.Header.Get("Destination")
	if hdr == "" {
		return "", errInvalidDestination
	}
	u, err := url.Parse(hdr)
	if err != nil {
		return "", errInvalidDestination
	}
	if u.Host != "" && u.Host != r.Host {
		return "", errInvalidDestination
	}
	dst, err := h.stripPrefix(u.Path)
	if err != nil {
		return "", err
	}
	if dst == "" {
		return "", errInvalidDestination
	}
	return dst, nil
}

func (h *Handler) handleCopyMove(w http.ResponseWriter, r *http.Request) (int, error) {
	src, err := h.stripPrefix(r.URL.Path)
	if err != nil {
		return http.StatusNotFound, err
	}
	dst, err := h.destination(r)
	if err != nil {
		return http.StatusBadRequest, err
	}
	if dst == src {
		return http.StatusForbidden, errDestinationEqualsSource
	}

	srcProvider, srcPath, err := h.resolve(src)
	if err != nil {
		return http.StatusNotFound, err
	}
	dstProvider, dstPath, err := h.resolve(dst)
	if err != nil {
		return http.StatusNotFound, err
	}
	ctx := r.Context()

	if r.Method == MethodCopy {
		release, err := h.confirmLocks(r, "", dst)
		if err != nil {
			return AsDAVError(err).StatusCode, err
		}
		defer release()

		depth := infiniteDepth
		if hdr := r.Header.Get("Depth"); hdr != "" {
			depth = parseDepth(hdr)
			if depth != 0 && depth != infiniteDepth {
				return http.StatusBadRequest, errInvalidDepth
			}
		}
		return h.doCopy(ctx, srcProvider, srcPath, dstProvider, dstPath, src, dst, depth, r.Header.Get("Overwrite") != "F")
	}

	release, err := h.confirmLocks(r, src, dst)
	if err != nil {
		return AsDAVError(err).StatusCode, err
	}
	defer release()

	if hdr := r.Header.Get("Depth"); hdr != "" && parseDepth(hdr) != infiniteDepth {
		return http.StatusBadRequest, errInvalidDepth
	}
	status, err := h.doMove(ctx, srcProvider, srcPath, dstProvider, dstPath, src, dst, r.Header.Get("Overwrite") != "F")
	if err == nil {
		if ih, ok := parseIfHeader(r.Header.Get("If")); ok {
			for _, tok := range ih.submittedTokens() {
				h.Locks.Rebase(tok, dst)
			}
		}
	}
	return status, err
}

func (h *Handler) doCopy(ctx context.Context, srcProvider Provider, srcPath string, dstProvider Provider, dstPath string, srcRef, dstRef string, depth int, overwrite bool) (int, error) {
	if srcProvider != dstProvider {
		return h.crossProviderCopy(ctx, srcProvider, srcPath, dstProvider, dstPath, srcRef, dstRef, depth, overwrite)
	}
	created, err := srcProvider.Copy(ctx, srcPath, dstPath, &CopyOptions{NoOverwrite: !overwrite, Depth: depth})
	if err != nil {
		return AsDAVError(err).StatusCode, err
	}
	h.Props.Copy(srcRef, dstRef, depth != 0)
	if created {
		return http.StatusCreated, nil
	}
	return http.StatusNoContent, nil
}

func (h *Handler) doMove(ctx context.Context, srcProvider Provider, srcPath string, dstProvider Provider, dstPath string, srcRef, dstRef string, overwrite bool) (int, error) {
	if srcProvider != dstProvider {
		status, err := h.crossProviderCopy(ctx, srcProvider, srcPath, dstProvider, dstPath, srcRef, dstRef, infiniteDepth, overwrite)
		if err != nil {
			return status, err
		}
		if err := srcProvider.Remove(ctx, srcPath, nil); err != nil {
			return AsDAVError(err).StatusCode, err
		}
		h.Props.Remove(srcRef, true)
		return status, nil
	}
	created, err := srcProvider.Move(ctx, srcPath, dstPath, &MoveOptions{NoOverwrite: !overwrite})
	if err != nil {
		return AsDAVError(err).StatusCode, err
	}
	h.Props.Move(srcRef, dstRef, true)
	if created {
		return http.StatusCreated, nil
	}
	return http.StatusNoContent, nil
}

// crossProviderCopy streams a resource between two distinct providers
// (e.g. a local share and the content-addressed repository share), since
// a single backend Copy/Move call cannot span two Provider implementations.
func (h *Handler) crossProviderCopy(ctx context.Context, srcProvider Provider, srcPath string, dstProvider Provider, dstPath string, srcRef, dstRef string, depth int, overwrite bool) (int, error) {
	fi, err := srcProvider.Stat(ctx, srcPath)
	if err != nil {
		return http.StatusNotFound, err
	}
	_, dstExisted := dstProvider.Stat(ctx, dstPath)
	created := dstExisted != nil
	if dstExisted == nil && !overwrite {
		return http.StatusPreconditionFailed, fmt.Errorf("destination exists")
	}

	if fi.IsDir {
		if err := dstProvider.Mkcol(ctx, dstPath); err != nil {
			return AsDAVError(err).StatusCode, err
		}
		if depth == 0 {
			if created {
				return http.StatusCreated, nil
			}
			return http.StatusNoContent, nil
		}
		children, err := srcProvider.ReadDir(ctx, srcPath, false)
		if err != nil {
			return AsDAVError(err).StatusCode, err
		}
		for _, child := range children {
			if child.Path == srcPath {
				continue
			}
			rel, ok := davpath.Included(child.Path, srcPath, infiniteDepth)
			if !ok {
				continue
			}
			if _, err := h.doCopy(ctx, srcProvider, child.Path, dstProvider, dstPath+"/"+rel, srcRef+"/"+rel, dstRef+"/"+rel, infiniteDepth, overwrite); err != nil {
				_ = err
			}
		}
		if created {
			return http.StatusCreated, nil
		}
		return http.StatusNoContent, nil
	}

	rc, err := srcProvider.Open(ctx, srcPath)
	if err != nil {
		return http.StatusNotFound, err
	}
	defer rc.Close()
	if _, _, err := dstProvider.Create(ctx, dstPath, rc, &CreateOptions{}); err != nil {
		return AsDAVError(err).StatusCode, err
	}
	h.Props.Copy(srcRef, dstRef, false)
	if created {
		return http.StatusCreated, nil
	}
	return http.StatusNoContent, nil
}

func (h *Handler) handleLock(w http.ResponseWriter, r *http.Request) (int, error) {
	timeout, err := parseTimeout(r.Header.Get("Timeout"))
	if err != nil {
		return http.StatusBadRequest, err
	}
	li, status, err := readLockInfo(r.Body)
	if err != nil {
		return status, err
	}

	reqPath, err := h.stripPrefix(r.URL.Path)
	if err != nil {
		return http.StatusNotFound, err
	}

	if li.isRefresh {
		ih, ok := parseIfHeader(r.Header.Get("If"))
		if !ok || len(ih.lists) != 1 || len(ih.lists[0].conditions) != 1 {
			return http.StatusBadRequest, errInvalidLockToken
		}
		token := ih.lists[0].conditions[0].Token
		if token == "" {
			return http.StatusBadRequest, errInvalidLockToken
		}
		l, err := h.Locks.Refresh(token, timeout)
		if err != nil {
			return AsDAVError(err).StatusCode, err
		}
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		writeLockDiscovery(w, l)
		return 0, nil
	}

	depth := infiniteDepth
	if hdr := r.Header.Get("Depth"); hdr != "" {
		depth = parseDepth(hdr)
		if depth != 0 && depth != infiniteDepth {
			return http.StatusBadRequest, errInvalidDepth
		}
	}

	provider, providerPath, err := h.resolve(reqPath)
	if err != nil {
		return http.StatusNotFound, err
	}
	_, statErr := provider.Stat(r.Context(), providerPath)
	placeholder := statErr != nil

	l, err := h.Locks.Create(reqPath, depth, li.scope, li.ownerXML, timeout, "", placeholder)
	if err != nil {
		return AsDAVError(err).StatusCode, err
	}
	created := false
	if placeholder {
		if _, _, cerr := provider.Create(r.Context(), providerPath, emptyReader{}, &CreateOptions{}); cerr != nil {
			h.Locks.Unlock(l.Token, "")
			return AsDAVError(cerr).StatusCode, cerr
		}
		created = true
	}

	w.Header().Set("Lock-Token", "<"+l.Token+">")
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	if created {
		w.WriteHeader(http.StatusCreated)
	}
	writeLockDiscovery(w, l)
	return 0, nil
}

func (h *Handler) handleUnlock(w http.ResponseWriter, r *http.Request) (int, error) {
	t := r.Header.Get("Lock-Token")
	if len(t) < 2 || t[0] != '<' || t[len(t)-1] != '>' {
		return http.StatusBadRequest, errInvalidLockToken
	}
	t = t[1 : len(t)-1]
	if _, err := h.Locks.Unlock(t, ""); err != nil {
		return AsDAVError(err).StatusCode, err
	}
	return http.StatusNoContent, nil
}

func (h *Handler) handlePropfind(w http.ResponseWriter, r *http.Request) (int, error) {
	reqPath, err := h.stripPrefix(r.URL.Path)
	if err != nil {
		return http.StatusNotFound, err
	}
	provider, providerPath, err := h.resolve(reqPath)
	if err != nil {
		return http.StatusNotFound, err
	}
	ctx := r.Context()
	fi, err := provider.Stat(ctx, providerPath)
	if err != nil {
		return http.StatusNotFound, err
	}
	depth := infiniteDepth
	if hdr := r.Header.Get("Depth"); hdr != "" {
		depth = parseDepth(hdr)
		if depth == invalidDepth {
			return http.StatusBadRequest, errInvalidDepth
		}
	}
	pf, status, err := ReadPropfind(r.Body)
	if err != nil {
		return status, err
	}

	var items []ResourceInfo
	if fi.IsDir && depth != 0 {
		items, err = provider.ReadDir(ctx, providerPath, depth == infiniteDepth)
	} else {
		items = []ResourceInfo{*fi}
	}
	if err != nil {
		return http.StatusInternalServerError, err
	}

	mw := multistatusWriter{w: w}
	for i := range items {
		item := items[i]
		refURL := davpath.Clean(reqPath + strings.TrimPrefix(item.Path, providerPath))
		if item.Path == providerPath {
			refURL = reqPath
		}
		locks := h.Locks.CoveringLocks(refURL)
		pstats := buildPropstats(&item, refURL, h.Props, locks, pf)
		href := refURL
		if href != "/" && item.IsDir {
			href += "/"
		}
		if werr := mw.write(makePropstatResponse(href, pstats)); werr != nil {
			return http.StatusInternalServerError, werr
		}
	}
	if err := mw.close(); err != nil {
		return http.StatusInternalServerError, err
	}
	return 0, nil
}

func (h *Handler) handleProppatch(w http.ResponseWriter, r *http.Request) (int, error) {
	reqPath, err := h.stripPrefix(r.URL.Path)
	if err != nil {
		return http.StatusNotFound, err
	}
	release, err := h.confirmLocks(r, reqPath, "")
	if err != nil {
		return AsDAVError(err).StatusCode, err
	}
	defer release()

	provider, providerPath, err := h.resolve(reqPath)
	if err != nil {
		return http.StatusNotFound, err
	}
	if _, err := provider.Stat(r.Context(), providerPath); err != nil {
		return http.StatusNotFound, err
	}
	patches, status, err := ReadProppatch(r.Body)
	if err != nil {
		return status, err
	}
	pstats, err := h.Props.Patch(reqPath, patches)
	if err != nil {
		return http.StatusInternalServerError, err
	}
	mw := multistatusWriter{w: w}
	writeErr := mw.write(makePropstatResponse(reqPath, pstats))
	closeErr := mw.close()
	if writeErr != nil {
		return http.StatusInternalServerError, writeErr
	}
	if closeErr != nil {
		return http.StatusInternalServerError, closeErr
	}
	return 0, nil
}

type emptyReader struct{}

func (emptyReader) Read(p []byte) (int, error) { return 0, io.EOF }
