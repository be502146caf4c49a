package webdav

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tryanks/davshare/internal/davpath"
)

// PropertyManager stores dead properties: name/value pairs attached to a
// resource by PROPPATCH that are not derived from the resource's content,
// so they survive independently of whatever Provider backs the resource.
// SPEC_FULL.md §4.3 grounds this on the teacher's propStore map in
// server.go, generalized from a single flat map to an interface so a
// future Provider-specific store (e.g. one persisted alongside repository
// metadata) can replace the in-memory default.
type PropertyManager interface {
	// Get returns the dead property named n on refURL, if any.
	Get(refURL string, n xml.Name) (Property, bool)
	// List returns every dead property stored for refURL.
	List(refURL string) []Property
	// Patch applies an ordered list of set/remove instructions atomically:
	// either all instructions succeed or none are applied, per RFC 4918
	// §9.2's PROPPATCH atomicity requirement. On success it returns one
	// 200 propstat per property. When a protected property is present it
	// applies nothing and returns a single 409 propstat naming that
	// property; the other properties of the request are not listed.
	Patch(refURL string, patches []Proppatch) ([]Propstat, error)
	// Move transfers refURL's dead properties to dst. When withChildren is
	// true every stored refURL inside the refURL subtree is moved too,
	// for a collection MOVE.
	Move(refURL, dst string, withChildren bool) error
	// Copy duplicates refURL's dead properties onto dst, for COPY.
	Copy(refURL, dst string, withChildren bool) error
	// Remove deletes refURL's stored properties (and, if withChildren,
	// every descendant's), for DELETE.
	Remove(refURL string, withChildren bool) error
}

// memPropertyManager is the default in-memory PropertyManager: a mutex
// guarded map keyed by canonical refURL, matching the concurrency
// discipline of the teacher's own in-memory stores.
type memPropertyManager struct {
	mu    sync.Mutex
	props map[string]map[xml.Name]Property
}

// NewMemPropertyManager creates an empty in-memory PropertyManager.
func NewMemPropertyManager() PropertyManager {
	return &memPropertyManager{props: make(map[string]map[xml.Name]Property)}
}

func (m *memPropertyManager) Get(refURL string, n xml.Name) (Property, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.props[davpath.Clean(refURL)][n]
	return p, ok
}

func (m *memPropertyManager) List(refURL string) []Property {
	m.mu.Lock()
	defer m.mu.Unlock()
	byName := m.props[davpath.Clean(refURL)]
	out := make([]Property, 0, len(byName))
	for _, p := range byName {
		out = append(out, p)
	}
	return out
}

// Patch applies patches to refURL. Live properties (computed by
// liveProperty from ResourceInfo when PROPFIND runs) are rejected here with 409 Conflict
// and the {DAV:}cannot-modify-protected-property precondition, per RFC
// 4918 §9.2.1/§12.13.1; everything else either succeeds for every
// instruction or none are applied.
func (m *memPropertyManager) Patch(refURL string, patches []Proppatch) ([]Propstat, error) {
	ref := davpath.Clean(refURL)
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, patch := range patches {
		for _, p := range patch.Props {
			if isProtectedProperty(p.XMLName) {
				return []Propstat{{
					Status:    http.StatusConflict,
					Props:     []Property{{XMLName: p.XMLName}},
					Condition: "cannot-modify-protected-property",
				}}, nil
			}
		}
	}

	byName := m.props[ref]
	if byName == nil {
		byName = make(map[xml.Name]Property)
	}
	var stats []Propstat
	for _, patch := range patches {
		for _, p := range patch.Props {
			if patch.Remove {
				delete(byName, p.XMLName)
			} else {
				byName[p.XMLName] = p
			}
			stats = append(stats, Propstat{Status: 200, Props: []Property{{XMLName: p.XMLName}}})
		}
	}
	m.props[ref] = byName
	return stats, nil
}

func (m *memPropertyManager) Move(refURL, dst string, withChildren bool) error {
	if err := m.Copy(refURL, dst, withChildren); err != nil {
		return err
	}
	return m.Remove(refURL, withChildren)
}

func (m *memPropertyManager) Copy(refURL, dst string, withChildren bool) error {
	src := davpath.Clean(refURL)
	dst = davpath.Clean(dst)
	m.mu.Lock()
	defer m.mu.Unlock()

	if byName, ok := m.props[src]; ok {
		m.props[dst] = cloneProps(byName)
	}
	if !withChildren {
		return nil
	}
	for ref, byName := range m.props {
		if rel, ok := davpath.Included(ref, src, infiniteDepth); ok && rel != "" {
			m.props[dst+"/"+rel] = cloneProps(byName)
		}
	}
	return nil
}

func (m *memPropertyManager) Remove(refURL string, withChildren bool) error {
	ref := davpath.Clean(refURL)
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.props, ref)
	if !withChildren {
		return nil
	}
	for stored := range m.props {
		if davpath.InTree(stored, ref) {
			delete(m.props, stored)
		}
	}
	return nil
}

func cloneProps(in map[xml.Name]Property) map[xml.Name]Property {
	out := make(map[xml.Name]Property, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// isProtectedProperty reports whether n is a live, server-computed
// property that PROPPATCH must refuse to touch (RFC 4918 §15).
func isProtectedProperty(n xml.Name) bool {
	if n.Space != "DAV:" {
		return false
	}
	switch n.Local {
	case "getetag", "getlastmodified", "getcontentlength", "resourcetype",
		"lockdiscovery", "supportedlock", "creationdate":
		return true
	}
	return false
}

func dname(local string) xml.Name { return xml.Name{Space: "DAV:", Local: local} }

var liveNames = []xml.Name{
	dname("resourcetype"), dname("getcontentlength"), dname("getlastmodified"),
	dname("getetag"), dname("getcontenttype"), dname("creationdate"),
	dname("lockdiscovery"), dname("supportedlock"),
}

// liveProperty renders the single live (server-computed) property n for
// ri, if n names one; ok is false for dead properties, which the caller
// falls back to the PropertyManager for.
func liveProperty(n xml.Name, ri *ResourceInfo, locks []*Lock) (Property, bool) {
	if n.Space != "DAV:" {
		return Property{}, false
	}
	switch n.Local {
	case "resourcetype":
		inner := ""
		if ri.IsDir {
			inner = "<collection xmlns=\"DAV:\"/>"
		}
		return Property{XMLName: n, InnerXML: []byte(inner)}, true
	case "getcontentlength":
		if ri.IsDir {
			return Property{}, false
		}
		return Property{XMLName: n, InnerXML: []byte(fmt.Sprintf("%d", ri.Size))}, true
	case "getlastmodified":
		return Property{XMLName: n, InnerXML: []byte(ri.ModTime.UTC().Format(time.RFC1123))}, true
	case "creationdate":
		return Property{XMLName: n, InnerXML: []byte(ri.ModTime.UTC().Format(time.RFC3339))}, true
	case "getetag":
		if ri.IsDir || ri.ETag == "" {
			return Property{}, false
		}
		return Property{XMLName: n, InnerXML: []byte(ri.ETag)}, true
	case "getcontenttype":
		if ri.IsDir || ri.ContentType == "" {
			return Property{}, false
		}
		return Property{XMLName: n, InnerXML: []byte(ri.ContentType)}, true
	case "lockdiscovery":
		var sb []byte
		for _, l := range locks {
			sb = append(sb, []byte(l.activeLockXML())...)
		}
		return Property{XMLName: n, InnerXML: sb}, true
	case "supportedlock":
		return Property{XMLName: n, InnerXML: []byte(
			`<lockentry xmlns="DAV:"><lockscope><exclusive/></lockscope><locktype><write/></locktype></lockentry>` +
				`<lockentry xmlns="DAV:"><lockscope><shared/></lockscope><locktype><write/></locktype></lockentry>`)}, true
	}
	return Property{}, false
}

// buildPropstats assembles the propstat set for one PROPFIND response
// entry: allprop returns every live and dead property, propname returns
// only the names, and an explicit prop list reports 404 for any name that
// matches neither a live nor a dead property.
func buildPropstats(ri *ResourceInfo, refURL string, pm PropertyManager, locks []*Lock, pf Propfind) []Propstat {
	if pf.Propname {
		var names []xml.Name
		names = append(names, liveNames...)
		for _, p := range pm.List(refURL) {
			names = append(names, p.XMLName)
		}
		props := make([]Property, len(names))
		for i, n := range names {
			props[i] = Property{XMLName: n}
		}
		return []Propstat{{Status: 200, Props: props}}
	}

	if pf.Allprop {
		var found []Property
		for _, n := range liveNames {
			if p, ok := liveProperty(n, ri, locks); ok {
				found = append(found, p)
			}
		}
		found = append(found, pm.List(refURL)...)
		return []Propstat{{Status: 200, Props: found}}
	}

	var found, missing []Property
	for _, n := range pf.Prop {
		if p, ok := liveProperty(n, ri, locks); ok {
			found = append(found, p)
			continue
		}
		if p, ok := pm.Get(refURL, n); ok {
			found = append(found, p)
			continue
		}
		missing = append(missing, Property{XMLName: n})
	}
	var stats []Propstat
	if len(found) > 0 {
		stats = append(stats, Propstat{Status: 200, Props: found})
	}
	if len(missing) > 0 {
		stats = append(stats, Propstat{Status: 404, Props: missing})
	}
	return stats
}
