package webdav

import (
	"testing"
	"time"
)

func TestLockManagerExclusiveConflict(t *testing.T) {
	lm := NewLockManager(time.Minute, time.Hour)

	l1, err := lm.Create("/a/b.txt", 0, ScopeExclusive, "", 0, "alice", false)
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if l1.Token == "" {
		t.Error("lock token is empty")
	}

	if _, err := lm.Create("/a/b.txt", 0, ScopeExclusive, "", 0, "bob", false); err == nil {
		t.Error("second exclusive lock on the same resource should conflict")
	}
}

func TestLockManagerSharedLocksCoexist(t *testing.T) {
	lm := NewLockManager(time.Minute, time.Hour)

	if _, err := lm.Create("/a/b.txt", 0, ScopeShared, "", 0, "alice", false); err != nil {
		t.Fatalf("first shared Create: %v", err)
	}
	if _, err := lm.Create("/a/b.txt", 0, ScopeShared, "", 0, "bob", false); err != nil {
		t.Errorf("second shared lock should not conflict: %v", err)
	}
}

func TestLockManagerDepthInfinityConflictsWithDescendant(t *testing.T) {
	lm := NewLockManager(time.Minute, time.Hour)

	if _, err := lm.Create("/a/child.txt", 0, ScopeExclusive, "", 0, "alice", false); err != nil {
		t.Fatalf("child Create: %v", err)
	}
	if _, err := lm.Create("/a", infiniteDepth, ScopeExclusive, "", 0, "bob", false); err == nil {
		t.Error("depth-infinity lock on /a should conflict with existing lock on /a/child.txt")
	}
}

func TestLockManagerConfirmRequiresTokenForSharedLockToo(t *testing.T) {
	lm := NewLockManager(time.Minute, time.Hour)
	l, err := lm.Create("/a/b.txt", 0, ScopeShared, "", 0, "alice", false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ok, missing := lm.Confirm("/a/b.txt", nil); ok || len(missing) != 1 {
		t.Errorf("Confirm against a shared lock with no token = (%v, %v), want (false, [lock])", ok, missing)
	}
	if ok, _ := lm.Confirm("/a/b.txt", []string{l.Token}); !ok {
		t.Error("Confirm with the shared lock's own token should succeed")
	}
}

func TestLockManagerConfirm(t *testing.T) {
	lm := NewLockManager(time.Minute, time.Hour)
	l, err := lm.Create("/doc.txt", 0, ScopeExclusive, "", 0, "", false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if ok, missing := lm.Confirm("/doc.txt", nil); ok || len(missing) != 1 {
		t.Errorf("Confirm with no tokens = (%v, %v), want (false, [lock])", ok, missing)
	}
	if ok, _ := lm.Confirm("/doc.txt", []string{l.Token}); !ok {
		t.Error("Confirm with the lock's own token should succeed")
	}
}

func TestLockManagerUnlockRequiresOwnership(t *testing.T) {
	lm := NewLockManager(time.Minute, time.Hour)
	l, err := lm.Create("/doc.txt", 0, ScopeExclusive, "", 0, "alice", false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := lm.Unlock(l.Token, "bob"); err == nil {
		t.Error("Unlock by a non-owning principal should fail")
	}
	if _, err := lm.Unlock(l.Token, "alice"); err != nil {
		t.Errorf("Unlock by the owning principal should succeed: %v", err)
	}
	if _, ok := lm.ByToken(l.Token); ok {
		t.Error("lock should be gone after Unlock")
	}
}

func TestLockManagerExpiry(t *testing.T) {
	lm := NewLockManager(time.Millisecond, time.Hour)
	l, err := lm.Create("/doc.txt", 0, ScopeExclusive, "", time.Millisecond, "", false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, ok := lm.ByToken(l.Token); ok {
		t.Error("expired lock should be swept from ByToken")
	}
}

func TestLockManagerRebase(t *testing.T) {
	lm := NewLockManager(time.Minute, time.Hour)
	l, err := lm.Create("/src.txt", 0, ScopeExclusive, "", 0, "", false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	lm.Rebase(l.Token, "/dst.txt")
	if ok, _ := lm.Confirm("/dst.txt", []string{l.Token}); !ok {
		t.Error("lock should now cover /dst.txt after Rebase")
	}
	if ok, missing := lm.Confirm("/src.txt", nil); !ok || len(missing) != 0 {
		t.Error("lock should no longer cover /src.txt after Rebase")
	}
}
