package webdav

import (
	"strings"
	"testing"
)

func TestRouterResolveLongestPrefix(t *testing.T) {
	files := NewRepositoryProvider(false)
	archive := NewRepositoryProvider(false)
	nested := NewRepositoryProvider(false)

	router := NewRouter(nil,
		Share{Name: "/files", Provider: files},
		Share{Name: "/files/archive", Provider: nested},
		Share{Name: "/archive", Provider: archive},
	)
	router.SetRoot(NewRootProvider(router))

	testCases := []struct {
		path     string
		want     Provider
		wantPath string
	}{
		{"/files/a.txt", files, "/a.txt"},
		{"/files/archive/a.txt", nested, "/a.txt"},
		{"/archive/x", archive, "/x"},
		{"/", router.root, "/"},
	}
	for _, tc := range testCases {
		p, providerPath, _, err := router.Resolve(tc.path)
		if err != nil {
			t.Errorf("Resolve(%q): %v", tc.path, err)
			continue
		}
		if p != tc.want {
			t.Errorf("Resolve(%q) provider = %v, want %v", tc.path, p, tc.want)
		}
		if providerPath != tc.wantPath {
			t.Errorf("Resolve(%q) providerPath = %q, want %q", tc.path, providerPath, tc.wantPath)
		}
	}
}

func TestRouterResolveUnmatchedFallsBackToRoot(t *testing.T) {
	router := NewRouter(nil, Share{Name: "/files", Provider: NewRepositoryProvider(false)})
	root := NewRootProvider(router)
	router.SetRoot(root)

	p, _, _, err := router.Resolve("/nowhere")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p != root {
		t.Errorf("Resolve(%q) should fall back to the root provider, got %v", "/nowhere", p)
	}
}

func TestBeginFinishBatchWithNonBatchProvider(t *testing.T) {
	lfs := NewLocalFileSystem(t.TempDir(), false)
	batch, err := beginBatch(nil, lfs)
	if err != nil {
		t.Fatalf("beginBatch: %v", err)
	}
	if _, ok := batch.(noopBatch); !ok {
		t.Errorf("beginBatch on a non-BatchProvider should return noopBatch, got %T", batch)
	}
	var callErr error
	finishBatch(nil, batch, &callErr)
	if callErr != nil {
		t.Errorf("finishBatch on a noopBatch set error %v", callErr)
	}
}

func TestBeginFinishBatchCommitsRepositoryProvider(t *testing.T) {
	rp := NewRepositoryProvider(false)
	batch, err := beginBatch(nil, rp)
	if err != nil {
		t.Fatalf("beginBatch: %v", err)
	}
	if _, ok := batch.(*repoBatch); !ok {
		t.Errorf("beginBatch on a RepositoryProvider should return *repoBatch, got %T", batch)
	}
	if _, _, err := rp.Create(nil, "/a.txt", strings.NewReader("hello"), nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	var callErr error
	finishBatch(nil, batch, &callErr)
	if callErr != nil {
		t.Fatalf("finishBatch: %v", callErr)
	}
	if _, err := rp.Stat(nil, "/a.txt"); err != nil {
		t.Errorf("write should be visible after finishBatch commits: %v", err)
	}
}
