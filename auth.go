package webdav

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DomainController resolves realms, users and credentials for the
// authenticator middleware, independent of any storage backend.
type DomainController interface {
	// GetDomainRealm returns the realm guarding path.
	GetDomainRealm(path string, r *http.Request) string
	// RequireAuthentication reports whether realm requires a credential
	// at all; returning false lets the request through unauthenticated.
	RequireAuthentication(realm string, r *http.Request) bool
	// IsRealmUser reports whether user is known in realm.
	IsRealmUser(realm, user string, r *http.Request) bool
	// GetRealmUserPassword returns user's plaintext password in realm, for
	// Digest's H(A1) computation. Empty string if unknown.
	GetRealmUserPassword(realm, user string, r *http.Request) string
	// AuthDomainUser validates a Basic credential directly, for domain
	// controllers backed by a hash the server never sees the preimage of.
	AuthDomainUser(realm, user, password string, r *http.Request) bool
}

// AuthScheme selects which challenge(s) an Authenticator issues.
type AuthScheme int

const (
	AuthBasic AuthScheme = 1 << iota
	AuthDigest
)

// Authenticator is HTTP Basic/Digest middleware (RFC 2617) guarding a
// Handler behind a DomainController. Digest uses MD5 with qop=auth,
// since RFC 2617 mandates MD5 for the digest algorithm; there is no
// stronger stdlib-free alternative to swap in for it. Grounded on the
// abbot/go-http-auth digest challenge/response shape referenced across
// the pack's rclone dependency closure (no full source was retrieved,
// so the nonce cache and header parsing below are written directly
// against RFC 2617 rather than copied from that package).
type Authenticator struct {
	DC           DomainController
	Scheme       AuthScheme
	AllowOptions bool // let OPTIONS through unauthenticated, for Windows interop
	nonces       *NonceCache
}

// NewAuthenticator builds an Authenticator issuing both Basic and Digest
// challenges, with Digest preferred by clients that support it.
func NewAuthenticator(dc DomainController) *Authenticator {
	return &Authenticator{DC: dc, Scheme: AuthBasic | AuthDigest, nonces: NewNonceCache(5 * time.Minute)}
}

// Wrap returns an http.Handler that authenticates every request against
// a via the DomainController before delegating to next.
func (a *Authenticator) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.AllowOptions && r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		realm := a.DC.GetDomainRealm(r.URL.Path, r)
		if !a.DC.RequireAuthentication(realm, r) {
			next.ServeHTTP(w, r)
			return
		}
		user, ok := a.authenticate(realm, r)
		if !ok {
			a.challenge(w, realm)
			writeError(w, NewHTTPError(http.StatusUnauthorized, fmt.Errorf("authentication required")), false)
			return
		}
		r.Header.Set("X-Webdav-Principal", user)
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) authenticate(realm string, r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	switch {
	case strings.HasPrefix(authz, "Digest "):
		if a.Scheme&AuthDigest == 0 {
			return "", false
		}
		return a.authenticateDigest(realm, r, authz[len("Digest "):])
	case strings.HasPrefix(authz, "Basic "):
		if a.Scheme&AuthBasic == 0 {
			return "", false
		}
		return a.authenticateBasic(realm, r)
	default:
		return "", false
	}
}

func (a *Authenticator) authenticateBasic(realm string, r *http.Request) (string, bool) {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return "", false
	}
	if !a.DC.IsRealmUser(realm, user, r) {
		return "", false
	}
	if a.DC.AuthDomainUser(realm, user, pass, r) {
		return user, true
	}
	want := a.DC.GetRealmUserPassword(realm, user, r)
	if want == "" {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(pass), []byte(want)) == 1 {
		return user, true
	}
	return "", false
}

func (a *Authenticator) authenticateDigest(realm string, r *http.Request, raw string) (string, bool) {
	params := parseDigestParams(raw)
	user := params["username"]
	if user == "" || !a.DC.IsRealmUser(realm, user, r) {
		return "", false
	}
	nonce := params["nonce"]
	ncStr := params["nc"]
	if !a.nonces.CheckAndAdvance(nonce, ncStr) {
		return "", false
	}
	password := a.DC.GetRealmUserPassword(realm, user, r)
	if password == "" {
		return "", false
	}
	ha1 := md5Hex(user + ":" + realm + ":" + password)
	ha2 := md5Hex(r.Method + ":" + params["uri"])
	var want string
	if params["qop"] == "auth" {
		want = md5Hex(strings.Join([]string{ha1, nonce, ncStr, params["cnonce"], params["qop"], ha2}, ":"))
	} else {
		want = md5Hex(strings.Join([]string{ha1, nonce, ha2}, ":"))
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(params["response"])) == 1 {
		return user, true
	}
	return "", false
}

func (a *Authenticator) challenge(w http.ResponseWriter, realm string) {
	if a.Scheme&AuthDigest != 0 {
		nonce := a.nonces.Issue()
		w.Header().Add("WWW-Authenticate", fmt.Sprintf(
			`Digest realm="%s", qop="auth", nonce="%s", opaque="%s", algorithm=MD5`,
			realm, nonce, md5Hex(nonce)))
	}
	if a.Scheme&AuthBasic != 0 {
		w.Header().Add("WWW-Authenticate", fmt.Sprintf(`Basic realm="%s"`, realm))
	}
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// parseDigestParams splits a Digest Authorization header's comma-separated
// key=value (optionally quoted) pairs.
func parseDigestParams(raw string) map[string]string {
	out := make(map[string]string)
	for _, part := range splitDigestPairs(raw) {
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(part[:eq])
		val := strings.TrimSpace(part[eq+1:])
		val = strings.Trim(val, `"`)
		out[key] = val
	}
	return out
}

// splitDigestPairs splits on commas that are not inside a quoted value.
func splitDigestPairs(raw string) []string {
	var parts []string
	inQuotes := false
	start := 0
	for i, c := range raw {
		switch c {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				parts = append(parts, raw[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, raw[start:])
	return parts
}

// NonceCache tracks issued Digest nonces and their highest-seen
// nonce-count, rejecting replays and stale nonces past ttl. Per
// spec.md's flagged Open Question on Digest replay protection, nc is
// required to strictly increase for a given nonce once qop=auth is in
// use; a client reusing an old nc value is rejected outright.
type NonceCache struct {
	mu     sync.Mutex
	ttl    time.Duration
	nonces map[string]*nonceEntry
}

type nonceEntry struct {
	issued time.Time
	lastNC uint64
}

// NewNonceCache creates a cache evicting nonces older than ttl on access.
func NewNonceCache(ttl time.Duration) *NonceCache {
	return &NonceCache{ttl: ttl, nonces: make(map[string]*nonceEntry)}
}

// Issue mints and records a fresh nonce.
func (nc *NonceCache) Issue() string {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	nc.sweepLocked()
	n := uuid.NewString()
	nc.nonces[n] = &nonceEntry{issued: time.Now()}
	return n
}

// CheckAndAdvance validates nonce is known, unexpired, and that ncHex (an
// 8-hex-digit nonce-count, or empty when qop is not in use) strictly
// increases the stored high-water mark, recording the new value on
// success.
func (nc *NonceCache) CheckAndAdvance(nonce, ncHex string) bool {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	e, ok := nc.nonces[nonce]
	if !ok {
		return false
	}
	if time.Since(e.issued) > nc.ttl {
		delete(nc.nonces, nonce)
		return false
	}
	if ncHex == "" {
		return true
	}
	n, err := strconv.ParseUint(ncHex, 16, 64)
	if err != nil || n <= e.lastNC {
		return false
	}
	e.lastNC = n
	return true
}

func (nc *NonceCache) sweepLocked() {
	now := time.Now()
	for k, e := range nc.nonces {
		if now.Sub(e.issued) > nc.ttl {
			delete(nc.nonces, k)
		}
	}
}
