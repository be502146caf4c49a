package webdav

import (
	"bytes"
	"encoding/xml"
	"io"
	"strconv"
	"strings"
	"time"
)

// lockInfoXML decodes a LOCK request's <lockinfo> body (RFC 4918 §9.10).
type lockInfoXML struct {
	XMLName   xml.Name `xml:"DAV: lockinfo"`
	Exclusive *struct{} `xml:"DAV: lockscope>exclusive"`
	Shared    *struct{} `xml:"DAV: lockscope>shared"`
	Write     *struct{} `xml:"DAV: locktype>write"`
	Owner     struct {
		InnerXML []byte `xml:",innerxml"`
	} `xml:"DAV: owner"`
}

// parsedLockInfo is the request's decoded intent: either a new lock or
// (when isRefresh is true, signaled by an empty body) a refresh of the
// lock named by the If: header.
type parsedLockInfo struct {
	isRefresh bool
	scope     LockScope
	ownerXML  string
}

// readLockInfo parses a LOCK request body. An empty body means "refresh
// the lock named in the If: header", per RFC 4918 §9.10.2.
func readLockInfo(r io.Reader) (parsedLockInfo, int, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return parsedLockInfo{}, 400, errInvalidLockInfo
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return parsedLockInfo{isRefresh: true}, 0, nil
	}
	var x lockInfoXML
	if err := xml.Unmarshal(body, &x); err != nil {
		return parsedLockInfo{}, 400, errInvalidLockInfo
	}
	if x.Write == nil {
		return parsedLockInfo{}, 400, errInvalidLockInfo
	}
	scope := ScopeExclusive
	if x.Shared != nil {
		scope = ScopeShared
	}
	return parsedLockInfo{scope: scope, ownerXML: string(x.Owner.InnerXML)}, 0, nil
}

// parseTimeout parses the Timeout request header (RFC 4918 §10.7): a
// comma-separated preference list of "Second-N" or "Infinite". Only the
// first preference is honored, matching the teacher's single-value reads
// elsewhere in this package.
func parseTimeout(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	first := strings.TrimSpace(strings.Split(v, ",")[0])
	if strings.EqualFold(first, "Infinite") {
		return 0, nil
	}
	const prefix = "Second-"
	if !strings.HasPrefix(first, prefix) {
		return 0, errInvalidTimeout
	}
	n, err := strconv.Atoi(strings.TrimPrefix(first, prefix))
	if err != nil || n < 0 {
		return 0, errInvalidTimeout
	}
	return time.Duration(n) * time.Second, nil
}

// writeLockDiscovery writes the LOCK response body: a <prop><lockdiscovery>
// wrapping the single just-created-or-refreshed lock.
func writeLockDiscovery(w io.Writer, l *Lock) {
	io.WriteString(w, xml.Header)
	io.WriteString(w, `<prop xmlns="DAV:"><lockdiscovery>`)
	io.WriteString(w, l.activeLockXML())
	io.WriteString(w, `</lockdiscovery></prop>`)
}
