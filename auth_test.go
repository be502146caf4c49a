package webdav

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type staticDomainController struct {
	realm    string
	users    map[string]string
	required bool
}

func (d *staticDomainController) GetDomainRealm(path string, r *http.Request) string { return d.realm }
func (d *staticDomainController) RequireAuthentication(realm string, r *http.Request) bool {
	return d.required
}
func (d *staticDomainController) IsRealmUser(realm, user string, r *http.Request) bool {
	_, ok := d.users[user]
	return ok
}
func (d *staticDomainController) GetRealmUserPassword(realm, user string, r *http.Request) string {
	return d.users[user]
}
func (d *staticDomainController) AuthDomainUser(realm, user, password string, r *http.Request) bool {
	return false
}

func TestAuthenticatorBasic(t *testing.T) {
	dc := &staticDomainController{realm: "test", users: map[string]string{"alice": "s3cret"}, required: true}
	auth := &Authenticator{DC: dc, Scheme: AuthBasic, nonces: NewNonceCache(time.Minute)}

	ok := httptest.NewServer(auth.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))
	defer ok.Close()

	req, _ := http.NewRequest(http.MethodGet, ok.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request without credentials: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without credentials = %d, want 401", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, ok.URL, nil)
	req.SetBasicAuth("alice", "s3cret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request with credentials: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status with correct credentials = %d, want 200", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, ok.URL, nil)
	req.SetBasicAuth("alice", "wrong")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request with wrong password: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status with wrong password = %d, want 401", resp.StatusCode)
	}
}

func TestAuthenticatorAllowOptions(t *testing.T) {
	dc := &staticDomainController{realm: "test", users: map[string]string{}, required: true}
	auth := &Authenticator{DC: dc, Scheme: AuthBasic, AllowOptions: true, nonces: NewNonceCache(time.Minute)}

	called := false
	h := auth.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if !called || rec.Code != http.StatusOK {
		t.Errorf("OPTIONS should pass through unauthenticated when AllowOptions is set, got called=%v code=%d", called, rec.Code)
	}
}

func TestNonceCacheReplayRejected(t *testing.T) {
	nc := NewNonceCache(time.Minute)
	nonce := nc.Issue()
	if !nc.CheckAndAdvance(nonce, "00000001") {
		t.Fatal("first use of nc=1 should be accepted")
	}
	if nc.CheckAndAdvance(nonce, "00000001") {
		t.Error("replaying the same nc value should be rejected")
	}
	if !nc.CheckAndAdvance(nonce, "00000002") {
		t.Error("a strictly increasing nc value should be accepted")
	}
}

func TestNonceCacheUnknownNonceRejected(t *testing.T) {
	nc := NewNonceCache(time.Minute)
	if nc.CheckAndAdvance("not-issued", "00000001") {
		t.Error("an unissued nonce should never validate")
	}
}
