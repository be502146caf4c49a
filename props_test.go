package webdav

import (
	"encoding/xml"
	"net/http"
	"testing"
)

func TestMemPropertyManagerSetGetList(t *testing.T) {
	pm := NewMemPropertyManager()
	name := xml.Name{Space: "http://example.com/ns", Local: "color"}
	patches := []Proppatch{{Props: []Property{{XMLName: name, InnerXML: []byte("blue")}}}}

	stats, err := pm.Patch("/doc.txt", patches)
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if len(stats) != 1 || stats[0].Status != 200 {
		t.Errorf("Patch propstats = %+v, want one 200 entry", stats)
	}

	p, ok := pm.Get("/doc.txt", name)
	if !ok {
		t.Fatal("property should be stored after Patch")
	}
	if string(p.InnerXML) != "blue" {
		t.Errorf("InnerXML = %q, want %q", p.InnerXML, "blue")
	}

	if got := pm.List("/doc.txt"); len(got) != 1 {
		t.Errorf("List returned %d properties, want 1", len(got))
	}
}

func TestMemPropertyManagerPatchRejectsProtectedProperty(t *testing.T) {
	pm := NewMemPropertyManager()
	name := xml.Name{Space: "DAV:", Local: "getetag"}
	patches := []Proppatch{{Props: []Property{{XMLName: name, InnerXML: []byte(`"x"`)}}}}

	stats, err := pm.Patch("/doc.txt", patches)
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if len(stats) != 1 || stats[0].Status != http.StatusConflict {
		t.Errorf("Patch of a protected property = %+v, want a single 409 Conflict propstat", stats)
	}
	if stats[0].Condition != "cannot-modify-protected-property" {
		t.Errorf("Condition = %q, want cannot-modify-protected-property", stats[0].Condition)
	}
}

func TestMemPropertyManagerMoveAndRemove(t *testing.T) {
	pm := NewMemPropertyManager()
	name := xml.Name{Space: "http://example.com/ns", Local: "color"}
	pm.Patch("/a.txt", []Proppatch{{Props: []Property{{XMLName: name, InnerXML: []byte("red")}}}})

	if err := pm.Move("/a.txt", "/b.txt", false); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if _, ok := pm.Get("/a.txt", name); ok {
		t.Error("source properties should be gone after Move")
	}
	if _, ok := pm.Get("/b.txt", name); !ok {
		t.Error("destination should carry the moved properties")
	}

	if err := pm.Remove("/b.txt", false); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := pm.Get("/b.txt", name); ok {
		t.Error("properties should be gone after Remove")
	}
}
