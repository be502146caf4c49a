package webdav

import (
	"bytes"
	"context"
	"io"
	"testing"
)

func TestRepositoryProviderCreateAndOpen(t *testing.T) {
	rp := NewRepositoryProvider(false)
	ctx := context.Background()

	ri, created, err := rp.Create(ctx, "/doc.txt", bytes.NewBufferString("hello"), nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !created {
		t.Error("Create reported created=false for a new resource")
	}
	if ri.Size != 5 {
		t.Errorf("Size = %d, want 5", ri.Size)
	}

	rc, err := rp.Open(ctx, "/doc.txt")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "hello" {
		t.Errorf("content = %q, want %q", got, "hello")
	}
}

func TestRepositoryProviderMkcolAndReadDir(t *testing.T) {
	rp := NewRepositoryProvider(false)
	ctx := context.Background()

	if err := rp.Mkcol(ctx, "/dir"); err != nil {
		t.Fatalf("Mkcol: %v", err)
	}
	if _, _, err := rp.Create(ctx, "/dir/a.txt", bytes.NewBufferString("a"), nil); err != nil {
		t.Fatalf("Create a.txt: %v", err)
	}
	if _, _, err := rp.Create(ctx, "/dir/b.txt", bytes.NewBufferString("b"), nil); err != nil {
		t.Fatalf("Create b.txt: %v", err)
	}

	entries, err := rp.ReadDir(ctx, "/dir", false)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 3 { // self + two children
		t.Errorf("ReadDir returned %d entries, want 3", len(entries))
	}
}

func TestRepositoryProviderMoveAndCopy(t *testing.T) {
	rp := NewRepositoryProvider(false)
	ctx := context.Background()

	if _, _, err := rp.Create(ctx, "/a.txt", bytes.NewBufferString("content"), nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := rp.Copy(ctx, "/a.txt", "/b.txt", &CopyOptions{Depth: infiniteDepth}); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if _, err := rp.Stat(ctx, "/b.txt"); err != nil {
		t.Fatalf("Stat /b.txt after copy: %v", err)
	}
	if _, err := rp.Stat(ctx, "/a.txt"); err != nil {
		t.Fatalf("Stat /a.txt after copy should still exist: %v", err)
	}

	if _, err := rp.Move(ctx, "/b.txt", "/c.txt", nil); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if _, err := rp.Stat(ctx, "/b.txt"); err == nil {
		t.Error("/b.txt should no longer exist after Move")
	}
	if _, err := rp.Stat(ctx, "/c.txt"); err != nil {
		t.Fatalf("Stat /c.txt after move: %v", err)
	}
}

func TestRepositoryProviderBatchCommitPublishesWrites(t *testing.T) {
	rp := NewRepositoryProvider(false)
	ctx := context.Background()

	batch, err := rp.BeginBatch(ctx)
	if err != nil {
		t.Fatalf("BeginBatch: %v", err)
	}
	if _, _, err := rp.Create(ctx, "/a.txt", bytes.NewBufferString("hello"), nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := rp.Stat(ctx, "/a.txt"); err == nil {
		t.Error("write should not be visible on root before Commit")
	}
	if err := batch.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := rp.Stat(ctx, "/a.txt"); err != nil {
		t.Fatalf("write should be visible on root after Commit: %v", err)
	}
}

func TestRepositoryProviderBatchAbortDiscardsWrites(t *testing.T) {
	rp := NewRepositoryProvider(false)
	ctx := context.Background()

	batch, err := rp.BeginBatch(ctx)
	if err != nil {
		t.Fatalf("BeginBatch: %v", err)
	}
	if _, _, err := rp.Create(ctx, "/a.txt", bytes.NewBufferString("hello"), nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := batch.Abort(ctx); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if _, err := rp.Stat(ctx, "/a.txt"); err == nil {
		t.Error("write issued inside an aborted batch should never reach root")
	}
	if _, err := rp.Stat(ctx, "/"); err != nil {
		t.Fatalf("root should still be statable after abort: %v", err)
	}
}

func TestRepositoryProviderReadOnlyRejectsWrites(t *testing.T) {
	rp := NewRepositoryProvider(true)
	ctx := context.Background()
	if _, _, err := rp.Create(ctx, "/a.txt", bytes.NewBufferString("x"), nil); err != errReadOnly {
		t.Errorf("Create on read-only provider = %v, want errReadOnly", err)
	}
	if err := rp.Mkcol(ctx, "/dir"); err != errReadOnly {
		t.Errorf("Mkcol on read-only provider = %v, want errReadOnly", err)
	}
}

func TestRepositoryProviderConditionalCreate(t *testing.T) {
	rp := NewRepositoryProvider(false)
	ctx := context.Background()

	if _, _, err := rp.Create(ctx, "/a.txt", bytes.NewBufferString("v1"), &CreateOptions{IfNoneMatch: "*"}); err != nil {
		t.Fatalf("first create with If-None-Match=* should succeed: %v", err)
	}
	if _, _, err := rp.Create(ctx, "/a.txt", bytes.NewBufferString("v2"), &CreateOptions{IfNoneMatch: "*"}); err == nil {
		t.Error("overwrite with If-None-Match=* should fail once the resource exists")
	}
}
