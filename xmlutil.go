// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package webdav

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/tryanks/davshare/internal/davpath"
)

// The XML types below round-trip the RFC 4918 PROPFIND/PROPPATCH/LOCK
// request and Multi-Status response bodies. Shapes follow the prop/
// multistatus/response/propstat/activelock split used throughout the
// examples pack (google-go-webdav's xml/xml.go; rewritten here to speak
// encoding/xml's struct-tag dialect directly rather than a hand lexer).

// Property represents a single DAV property, either as a request
// (name-only) or a response (name + innerxml value).
type Property struct {
	XMLName xml.Name
	Lang    string `xml:"xml:lang,attr,omitempty"`
	InnerXML []byte `xml:",innerxml"`
}

type propfindProps struct {
	InnerXML []byte `xml:",innerxml"`
}

type propfindXML struct {
	XMLName  xml.Name       `xml:"DAV: propfind"`
	Allprop  *struct{}      `xml:"DAV: allprop"`
	Propname *struct{}      `xml:"DAV: propname"`
	Prop     propfindProps  `xml:"DAV: prop"`
	Include  propfindProps  `xml:"DAV: include"`
}

// Propfind holds a parsed PROPFIND request body.
type Propfind struct {
	Allprop  bool
	Propname bool
	Prop     []xml.Name
	Include  []xml.Name
}

func readPropNames(raw []byte) ([]xml.Name, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	d := xml.NewDecoder(bytes.NewReader(raw))
	var names []xml.Name
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if se, ok := tok.(xml.StartElement); ok {
			names = append(names, se.Name)
			d.Skip()
		}
	}
	return names, nil
}

// ReadPropfind parses the request body of a PROPFIND. An empty body is
// treated as an implicit "allprop" request, as RFC 4918 §9.1 allows; a
// body that is not well-formed XML is rejected with 400.
func ReadPropfind(r io.Reader) (pf Propfind, status int, err error) {
	var x propfindXML
	if err := xml.NewDecoder(r).Decode(&x); err != nil {
		if err == io.EOF {
			return Propfind{Allprop: true}, 0, nil
		}
		return Propfind{}, 400, errInvalidPropfind
	}
	if x.Allprop != nil {
		pf.Allprop = true
	}
	if x.Propname != nil {
		pf.Propname = true
	}
	if pf.Allprop && pf.Propname {
		return Propfind{}, 400, errInvalidPropfind
	}
	if pf.Propname && len(x.Prop.InnerXML) > 0 {
		return Propfind{}, 400, errInvalidPropfind
	}
	if pf.Prop, err = readPropNames(x.Prop.InnerXML); err != nil {
		return Propfind{}, 400, errInvalidPropfind
	}
	if pf.Include, err = readPropNames(x.Include.InnerXML); err != nil {
		return Propfind{}, 400, errInvalidPropfind
	}
	if !pf.Allprop && !pf.Propname && len(pf.Prop) == 0 {
		pf.Allprop = true
	}
	return pf, 0, nil
}

// Propstat is a single <propstat> entry: a group of properties sharing a
// response status.
type Propstat struct {
	Status               int
	Props                []Property
	ResponseDescription  string
	Condition            string
}

type xmlError struct {
	InnerXML []byte `xml:",innerxml"`
}

type propstatXML struct {
	XMLName             xml.Name  `xml:"DAV: propstat"`
	RawProp             rawProp   `xml:"DAV: prop"`
	Status              string    `xml:"DAV: status"`
	Error               *xmlError `xml:"DAV: error,omitempty"`
	ResponseDescription string    `xml:"DAV: responsedescription,omitempty"`
}

type rawProp struct {
	Props []Property `xml:",any"`
}

type responseXML struct {
	XMLName             xml.Name      `xml:"DAV: response"`
	Href                []string      `xml:"DAV: href"`
	Status              string        `xml:"DAV: status,omitempty"`
	Propstat            []propstatXML `xml:"DAV: propstat,omitempty"`
	Error               *xmlError     `xml:"DAV: error,omitempty"`
	ResponseDescription string        `xml:"DAV: responsedescription,omitempty"`
}

type multistatusXML struct {
	XMLName             xml.Name      `xml:"DAV: multistatus"`
	Responses           []responseXML `xml:"DAV: response"`
	ResponseDescription string        `xml:"DAV: responsedescription,omitempty"`
}

// multistatusWriter streams <response> elements as they are produced by a
// PROPFIND tree walk, instead of buffering the whole Multi-Status body.
type multistatusWriter struct {
	w           io.Writer
	respStatus  int
	wroteHeader bool
	wroteFooter bool
}

func (mw *multistatusWriter) writeHeader() error {
	if mw.wroteHeader {
		return nil
	}
	if rw, ok := mw.w.(interface{ WriteHeader(int) }); ok {
		rw.WriteHeader(StatusMulti)
	}
	if hw, ok := mw.w.(interface{ Header() interface{ Set(string, string) } }); ok {
		hw.Header().Set("Content-Type", "application/xml; charset=utf-8")
	}
	if _, err := io.WriteString(mw.w, xml.Header); err != nil {
		return err
	}
	if _, err := io.WriteString(mw.w, `<multistatus xmlns="DAV:">`); err != nil {
		return err
	}
	mw.wroteHeader = true
	return nil
}

func (mw *multistatusWriter) write(resp *responseXML) error {
	if err := mw.writeHeader(); err != nil {
		return err
	}
	b, err := xml.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = mw.w.Write(b)
	return err
}

func (mw *multistatusWriter) close() error {
	if mw.wroteFooter {
		return nil
	}
	if err := mw.writeHeader(); err != nil {
		return err
	}
	_, err := io.WriteString(mw.w, `</multistatus>`)
	mw.wroteFooter = true
	return err
}

// makeStatusResponse builds a <response> carrying a single top-level
// <status>, used where there is no property list to report against -
// DELETE's per-resource failures in a Multi-Status body (RFC 4918
// §9.6.1), as opposed to PROPFIND/PROPPATCH's per-property propstats.
func makeStatusResponse(href string, status int) *responseXML {
	return &responseXML{
		Href:   []string{davEscapePath(href)},
		Status: fmt.Sprintf("HTTP/1.1 %d %s", status, StatusText(status)),
	}
}

func makePropstatResponse(href string, pstats []Propstat) *responseXML {
	resp := responseXML{
		Href:     []string{davEscapePath(href)},
		Propstat: make([]propstatXML, 0, len(pstats)),
	}
	for _, p := range pstats {
		ps := propstatXML{
			RawProp:             rawProp{Props: p.Props},
			Status:              fmt.Sprintf("HTTP/1.1 %d %s", p.Status, StatusText(p.Status)),
			ResponseDescription: p.ResponseDescription,
		}
		if p.Condition != "" {
			ps.Error = &xmlError{InnerXML: []byte(fmt.Sprintf("<%s xmlns=\"DAV:\"/>", p.Condition))}
		}
		resp.Propstat = append(resp.Propstat, ps)
	}
	return &resp
}

// proppatchXML decodes a PROPPATCH <propertyupdate> request.
type proppatchXML struct {
	XMLName xml.Name `xml:"DAV: propertyupdate"`
	SetRemove []setRemoveXML `xml:",any"`
}

type setRemoveXML struct {
	XMLName xml.Name
	Prop    rawProp `xml:"DAV: prop"`
}

// Proppatch is one "set" or "remove" instruction from a PROPPATCH body.
type Proppatch struct {
	Remove bool
	Props  []Property
}

// ReadProppatch parses a PROPPATCH request body into an ordered list of
// set/remove instructions, preserving client order as RFC 4918 requires
// atomic, ordered application.
func ReadProppatch(r io.Reader) (patches []Proppatch, status int, err error) {
	var x proppatchXML
	if err := xml.NewDecoder(r).Decode(&x); err != nil {
		return nil, 400, errInvalidProppatch
	}
	if len(x.SetRemove) == 0 {
		return nil, 400, errInvalidProppatch
	}
	for _, sr := range x.SetRemove {
		switch sr.XMLName.Local {
		case "set":
			patches = append(patches, Proppatch{Props: sr.Prop.Props})
		case "remove":
			patches = append(patches, Proppatch{Remove: true, Props: sr.Prop.Props})
		default:
			return nil, 400, errInvalidProppatch
		}
	}
	return patches, 0, nil
}

func davEscapePath(p string) string {
	return davpath.EscapedPath(p)
}
