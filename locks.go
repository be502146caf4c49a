package webdav

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tryanks/davshare/internal/davpath"
)

// LockScope is the scope of a write lock (RFC 4918 §14.13/§14.20).
type LockScope int

const (
	ScopeExclusive LockScope = iota
	ScopeShared
)

// Lock is a single RFC 4918 §6 write lock record.
type Lock struct {
	Token     string
	Root      string
	Depth     int // 0 or infiniteDepth
	Scope     LockScope
	OwnerXML  string
	Timeout   time.Duration
	Created   time.Time
	Principal string
	// Placeholder marks a lock taken on a URL that did not exist at LOCK
	// time; the handler creates an empty "lock-null" resource there,
	// visible to PROPFIND. UNLOCK and expiry drop only the lock record:
	// the empty resource stays in place.
	Placeholder bool
}

func (l *Lock) expired(now time.Time) bool {
	if l.Timeout <= 0 {
		return false
	}
	return now.After(l.Created.Add(l.Timeout))
}

// activeLockXML renders this lock as an <activelock> element, used by LOCK
// responses and by PROPFIND's {DAV:}lockdiscovery property.
func (l *Lock) activeLockXML() string {
	depth := "0"
	if l.Depth == infiniteDepth {
		depth = "infinity"
	}
	scope := "<exclusive/>"
	if l.Scope == ScopeShared {
		scope = "<shared/>"
	}
	timeout := "Infinite"
	if l.Timeout > 0 {
		timeout = fmt.Sprintf("Second-%d", int(l.Timeout/time.Second))
	}
	owner := "<owner/>"
	if l.OwnerXML != "" {
		owner = "<owner>" + l.OwnerXML + "</owner>"
	}
	return fmt.Sprintf(`<activelock xmlns="DAV:">`+
		`<locktype><write/></locktype>`+
		`<lockscope>%s</lockscope>`+
		`<depth>%s</depth>`+
		`%s`+
		`<timeout>%s</timeout>`+
		`<locktoken><href>%s</href></locktoken>`+
		`<lockroot><href>%s</href></lockroot>`+
		`</activelock>`, scope, depth, owner, timeout, l.Token, davpath.EscapedPath(l.Root))
}

// LockManager is the RFC 4918 §6 lock table described by SPEC_FULL.md §4.4:
// a token-indexed set of live locks, the shared/exclusive x depth
// compatibility matrix, and lazy expiry swept on every lookup.
//
// This replaces the teacher's LockSystem (a plain token/path map with no
// depth, scope, or conflict checking, and a generateToken using
// time.Now().UnixNano()) with the full model; a single mutex guards the
// whole table, matching the teacher's own single-lock discipline.
type LockManager struct {
	mu         sync.Mutex
	byToken    map[string]*Lock
	defaultTTL time.Duration
	maxTTL     time.Duration
}

// NewLockManager creates an empty, in-memory lock manager. defaultTTL and
// maxTTL fall back to 60s/1h, matching spec.md §5's timeout defaults, when
// zero is passed.
func NewLockManager(defaultTTL, maxTTL time.Duration) *LockManager {
	if defaultTTL <= 0 {
		defaultTTL = 60 * time.Second
	}
	if maxTTL <= 0 {
		maxTTL = time.Hour
	}
	return &LockManager{
		byToken:    make(map[string]*Lock),
		defaultTTL: defaultTTL,
		maxTTL:     maxTTL,
	}
}

func (lm *LockManager) clampTimeout(requested time.Duration) time.Duration {
	if requested <= 0 {
		return lm.defaultTTL
	}
	if requested > lm.maxTTL {
		return lm.maxTTL
	}
	return requested
}

// sweepExpiredLocked removes expired locks. Caller must hold lm.mu.
func (lm *LockManager) sweepExpiredLocked(now time.Time) {
	for tok, l := range lm.byToken {
		if l.expired(now) {
			delete(lm.byToken, tok)
		}
	}
}

// locksCoveringLocked returns every live lock whose [Root, Depth] scope
// covers path. Caller must hold lm.mu; expired locks are swept first.
func (lm *LockManager) locksCoveringLocked(now time.Time, path string) []*Lock {
	lm.sweepExpiredLocked(now)
	var covering []*Lock
	for _, l := range lm.byToken {
		if _, ok := davpath.Included(path, l.Root, l.Depth); ok {
			covering = append(covering, l)
		}
	}
	return covering
}

// conflictsLocked reports every existing lock incompatible with a new lock
// of the given scope rooted at [root, depth], per the §4.4 compatibility
// matrix: exclusive conflicts with anything, shared only conflicts with an
// existing exclusive. A depth-infinity request also conflicts with any
// lock rooted on a strict descendant of root.
func (lm *LockManager) conflictsLocked(now time.Time, root string, depth int, scope LockScope) []*Lock {
	lm.sweepExpiredLocked(now)
	var conflicting []*Lock
	for _, l := range lm.byToken {
		_, coversRoot := davpath.Included(root, l.Root, l.Depth)
		reachesDescendant := depth == infiniteDepth && l.Root != root && davpath.InTree(l.Root, root)
		if !coversRoot && !reachesDescendant {
			continue
		}
		if scope == ScopeShared && l.Scope == ScopeShared {
			continue
		}
		conflicting = append(conflicting, l)
	}
	return conflicting
}

// Create grants a new lock rooted at root, returning a conflict error
// (423 Locked, no-conflicting-lock) if an incompatible lock already
// covers the scope. placeholder marks a lock-null lock, taken against a
// URL that does not yet name a resource.
func (lm *LockManager) Create(root string, depth int, scope LockScope, ownerXML string, timeout time.Duration, principal string, placeholder bool) (*Lock, error) {
	root = davpath.Clean(root)
	lm.mu.Lock()
	defer lm.mu.Unlock()

	now := time.Now()
	if conf := lm.conflictsLocked(now, root, depth, scope); len(conf) > 0 {
		return nil, conflictError(conf)
	}

	l := &Lock{
		Token:       "opaquelocktoken:" + uuid.NewString(),
		Root:        root,
		Depth:       depth,
		Scope:       scope,
		OwnerXML:    ownerXML,
		Timeout:     lm.clampTimeout(timeout),
		Created:     now,
		Principal:   principal,
		Placeholder: placeholder,
	}
	lm.byToken[l.Token] = l
	return l, nil
}

// conflictError renders the §4.4 conflict response, naming every
// conflicting lock root so the client can see what blocked it.
func conflictError(conflicts []*Lock) *DAVError {
	roots := make([]string, len(conflicts))
	for i, l := range conflicts {
		roots[i] = l.Root
	}
	return &DAVError{
		StatusCode: StatusLocked,
		Condition:  "no-conflicting-lock",
		Context:    fmt.Sprintf("locked by %v", roots),
	}
}

// Refresh extends an existing lock's timeout from now, returning the
// updated lock, as a LOCK request with an If: header and no body does.
func (lm *LockManager) Refresh(token string, timeout time.Duration) (*Lock, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	now := time.Now()
	lm.sweepExpiredLocked(now)
	l, ok := lm.byToken[token]
	if !ok {
		return nil, ErrNoSuchLock
	}
	l.Timeout = lm.clampTimeout(timeout)
	l.Created = now
	return l, nil
}

// Unlock releases the lock identified by token. When principal is
// non-empty and the lock carries an owning principal, they must match.
func (lm *LockManager) Unlock(token, principal string) (*Lock, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	l, ok := lm.byToken[token]
	if !ok {
		return nil, ErrNoSuchLock
	}
	if principal != "" && l.Principal != "" && l.Principal != principal {
		return nil, ErrForbidden
	}
	delete(lm.byToken, token)
	return l, nil
}

// ByToken looks up a live lock by its token, sweeping expired locks first.
func (lm *LockManager) ByToken(token string) (*Lock, bool) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.sweepExpiredLocked(time.Now())
	l, ok := lm.byToken[token]
	return l, ok
}

// CoveringLocks returns every live lock covering path, for PROPFIND's
// {DAV:}lockdiscovery and for the If: evaluator's tokenMatches.
func (lm *LockManager) CoveringLocks(path string) []*Lock {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.locksCoveringLocked(time.Now(), davpath.Clean(path))
}

// Confirm checks that every write lock covering path - exclusive or
// shared alike - has a matching token among submitted. RFC 4918 §6
// requires the token for any write lock a request would conflict with;
// a shared lock still guards the resource against writers who never
// joined it, so its token is no less required than an exclusive lock's.
// ok is false when at least one covering lock has no matching token, in
// which case missing names the unsatisfied locks.
func (lm *LockManager) Confirm(path string, submitted []string) (ok bool, missing []*Lock) {
	covering := lm.CoveringLocks(path)
	if len(covering) == 0 {
		return true, nil
	}
	submittedSet := make(map[string]bool, len(submitted))
	for _, t := range submitted {
		submittedSet[t] = true
	}
	for _, l := range covering {
		if !submittedSet[l.Token] {
			missing = append(missing, l)
		}
	}
	return len(missing) == 0, missing
}

// RemoveUnderSubtree removes every lock rooted at or inside subtree. A
// depth-infinity DELETE calls this to drop locks on everything it erases,
// per spec.md §8's lock-cleanup scenario.
func (lm *LockManager) RemoveUnderSubtree(subtree string) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	subtree = davpath.Clean(subtree)
	for tok, l := range lm.byToken {
		if davpath.InTree(l.Root, subtree) {
			delete(lm.byToken, tok)
		}
	}
}

// Rebase moves a lock's root from its current location to dst. MOVE uses
// this to carry a lock whose token the client submitted in the If: header
// along with the moved resource, per spec.md §4.2's lock-transfer rule.
func (lm *LockManager) Rebase(token, dst string) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if l, ok := lm.byToken[token]; ok {
		l.Root = davpath.Clean(dst)
	}
}

// lockEvalEnv adapts a LockManager (plus an ETag source) to the ifEvalEnv
// interface consumed by the If: header evaluator in ifheader.go.
type lockEvalEnv struct {
	lm      *LockManager
	etagger func(path string) (string, bool)
}

func (e lockEvalEnv) etag(path string) (string, bool) {
	if e.etagger == nil {
		return "", false
	}
	return e.etagger(path)
}

func (e lockEvalEnv) tokenMatches(path, token string) bool {
	l, ok := e.lm.ByToken(token)
	if !ok {
		return false
	}
	_, covers := davpath.Included(path, l.Root, l.Depth)
	return covers
}
