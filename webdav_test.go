package webdav

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestHandler() *Handler {
	rp := NewRepositoryProvider(false)
	router := NewRouter(nil, Share{Name: "/files", Provider: rp})
	router.SetRoot(NewRootProvider(router))
	return &Handler{
		Router: router,
		Locks:  NewLockManager(0, 0),
		Props:  NewMemPropertyManager(),
	}
}

func do(h *Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerPutGetRoundTrip(t *testing.T) {
	h := newTestHandler()

	rec := do(h, http.MethodPut, "/files/a.txt", "hello", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("PUT status = %d, want 201", rec.Code)
	}
	etag := rec.Header().Get("ETag")
	if etag == "" {
		t.Error("PUT response should set ETag")
	}

	rec = do(h, http.MethodGet, "/files/a.txt", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "hello" {
		t.Errorf("GET body = %q, want %q", rec.Body.String(), "hello")
	}

	rec = do(h, http.MethodGet, "/files/a.txt", "", map[string]string{"If-None-Match": etag})
	if rec.Code != http.StatusNotModified {
		t.Errorf("conditional GET with matching If-None-Match = %d, want 304", rec.Code)
	}
}

func TestHandlerMkcolDeleteAndPropfindDepth1(t *testing.T) {
	h := newTestHandler()

	if rec := do(h, MethodMkcol, "/files/dir", "", nil); rec.Code != http.StatusCreated {
		t.Fatalf("MKCOL /files/dir = %d, want 201", rec.Code)
	}
	if rec := do(h, http.MethodPut, "/files/dir/a.txt", "x", nil); rec.Code != http.StatusCreated {
		t.Fatalf("PUT /files/dir/a.txt = %d", rec.Code)
	}

	rec := do(h, "PROPFIND", "/files/dir", "", map[string]string{"Depth": "1"})
	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("PROPFIND status = %d, want 207", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "a.txt") {
		t.Errorf("PROPFIND Depth:1 response missing child a.txt, got %s", rec.Body.String())
	}

	rec = do(h, http.MethodDelete, "/files/dir/a.txt", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want 204", rec.Code)
	}
	rec = do(h, http.MethodGet, "/files/dir/a.txt", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET of deleted resource = %d, want 404", rec.Code)
	}
}

func TestHandlerDeleteDepthZeroOnCollectionIsBadRequest(t *testing.T) {
	h := newTestHandler()
	do(h, http.MethodPut, "/files/dir/a.txt", "x", nil)

	rec := do(h, http.MethodDelete, "/files/dir", "", map[string]string{"Depth": "0"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("DELETE Depth:0 on a collection = %d, want 400", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/files/dir/a.txt", "", nil); rec.Code != http.StatusOK {
		t.Errorf("collection should survive a rejected Depth:0 DELETE, GET = %d", rec.Code)
	}
}

func TestHandlerDeleteCollectionRemovesEverything(t *testing.T) {
	h := newTestHandler()
	do(h, http.MethodPut, "/files/dir/a.txt", "a", nil)
	do(h, http.MethodPut, "/files/dir/b.txt", "b", nil)

	rec := do(h, http.MethodDelete, "/files/dir", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE collection status = %d, want 204", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/files/dir/a.txt", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("child a.txt should be gone, GET = %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/files/dir/b.txt", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("child b.txt should be gone, GET = %d", rec.Code)
	}
}

func TestHandlerDeleteCollectionAggregatesLockedMemberAsMultiStatus(t *testing.T) {
	h := newTestHandler()
	do(h, http.MethodPut, "/files/dir/a.txt", "a", nil)
	do(h, http.MethodPut, "/files/dir/locked.txt", "locked", nil)

	lockBody := `<?xml version="1.0"?><D:lockinfo xmlns:D="DAV:">
<D:lockscope><D:exclusive/></D:lockscope>
<D:locktype><D:write/></D:locktype>
<D:owner><D:href>alice</D:href></D:owner>
</D:lockinfo>`
	lockRec := do(h, MethodLock, "/files/dir/locked.txt", lockBody, nil)
	token := strings.Trim(lockRec.Header().Get("Lock-Token"), "<>")
	if token == "" {
		t.Fatal("LOCK response missing Lock-Token")
	}

	rec := do(h, http.MethodDelete, "/files/dir", "", nil)
	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("DELETE with one locked member = %d, want 207, body=%s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "locked.txt") {
		t.Errorf("Multi-Status body should name the locked member, got %s", body)
	}
	if !strings.Contains(body, "424") && !strings.Contains(body, "Failed Dependency") {
		t.Errorf("the parent collection should be reported as 424 Failed Dependency, got %s", body)
	}

	if rec := do(h, http.MethodGet, "/files/dir/a.txt", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unlocked sibling should still be removed, GET = %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/files/dir/locked.txt", "", nil); rec.Code != http.StatusOK {
		t.Errorf("locked member should survive the partial DELETE, GET = %d", rec.Code)
	}
}

func TestHandlerLockThenPutWithoutTokenConflicts(t *testing.T) {
	h := newTestHandler()
	do(h, http.MethodPut, "/files/locked.txt", "v1", nil)

	lockBody := `<?xml version="1.0"?><D:lockinfo xmlns:D="DAV:">
<D:lockscope><D:exclusive/></D:lockscope>
<D:locktype><D:write/></D:locktype>
<D:owner><D:href>alice</D:href></D:owner>
</D:lockinfo>`
	rec := do(h, MethodLock, "/files/locked.txt", lockBody, nil)
	if rec.Code != 0 && rec.Code != http.StatusOK {
		t.Fatalf("LOCK status = %d, want 200", rec.Code)
	}
	token := strings.Trim(rec.Header().Get("Lock-Token"), "<>")
	if token == "" {
		t.Fatal("LOCK response missing Lock-Token")
	}

	rec = do(h, http.MethodPut, "/files/locked.txt", "v2", nil)
	if rec.Code != http.StatusLocked && rec.Code != http.StatusPreconditionFailed {
		t.Errorf("PUT on locked resource without token = %d, want 423/412", rec.Code)
	}

	rec = do(h, http.MethodPut, "/files/locked.txt", "v2", map[string]string{
		"If": "(<" + token + ">)",
	})
	if rec.Code != http.StatusNoContent {
		t.Errorf("PUT with the lock token = %d, want 204", rec.Code)
	}

	rec = do(h, MethodUnlock, "/files/locked.txt", "", map[string]string{"Lock-Token": "<" + token + ">"})
	if rec.Code != http.StatusNoContent {
		t.Errorf("UNLOCK status = %d, want 204", rec.Code)
	}
}

func TestHandlerCopyAndMove(t *testing.T) {
	h := newTestHandler()
	do(h, http.MethodPut, "/files/src.txt", "payload", nil)

	rec := do(h, MethodCopy, "/files/src.txt", "", map[string]string{"Destination": "/files/dst.txt"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("COPY status = %d, want 201", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/files/src.txt", "", nil); rec.Code != http.StatusOK {
		t.Errorf("source should still exist after COPY, GET = %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/files/dst.txt", "", nil); rec.Code != http.StatusOK || rec.Body.String() != "payload" {
		t.Errorf("copied resource GET = %d body=%q", rec.Code, rec.Body.String())
	}

	rec = do(h, MethodMove, "/files/src.txt", "", map[string]string{"Destination": "/files/moved.txt"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("MOVE status = %d, want 201", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/files/src.txt", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("source should be gone after MOVE, GET = %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/files/moved.txt", "", nil); rec.Code != http.StatusOK {
		t.Errorf("moved resource GET = %d", rec.Code)
	}
}

func TestHandlerOptionsAdvertisesDAV(t *testing.T) {
	h := newTestHandler()
	rec := do(h, http.MethodOptions, "/files/", "", nil)
	if rec.Header().Get("DAV") == "" {
		t.Error("OPTIONS response should set a DAV header")
	}
}
