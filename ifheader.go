// Copyright 2014 Google Inc. All rights reserved.
// Adapted under the Apache License, Version 2.0.

package webdav

import (
	"fmt"
	"io"
	"strings"
	"unicode"
)

// The parser below implements the RFC 4918 §10.4 "If" header grammar: a
// sequence of (possibly tagged) lists of conditions. Lexer/parser split is
// grounded on google-go-webdav's cond/lex.go + cond/cond.go, collapsed into
// one file to match the flat-package texture the rest of this repo uses.

// ifCondition is one entry inside an ifList: either a state-token
// ("<opaquelocktoken:...>") or an etag ("[\"abc\"]"), optionally negated.
type ifCondition struct {
	Not   bool
	Token string
	ETag  string
}

// ifList is a parenthesized, AND'ed group of conditions, optionally tagged
// with the resource ("<...>") it applies to.
type ifList struct {
	resourceTag string
	conditions  []ifCondition
}

// ifHeader is the full "If" header: a disjunction (OR) of ifLists.
type ifHeader struct {
	lists []ifList
}

type ifLex struct {
	input []rune
	pos   int
	last  rune
}

const (
	ifEOF = -(iota + 1)
	ifNot
)

func newIfLex(s string) *ifLex { return &ifLex{input: []rune(s), pos: -1} }

func (l *ifLex) at(n int) rune {
	p := l.pos + n
	if p < 0 || p >= len(l.input) {
		return ifEOF
	}
	return l.input[p]
}

func (l *ifLex) skipSpace() {
	for unicode.IsSpace(l.at(1)) {
		l.pos++
	}
}

func (l *ifLex) peek() rune {
	l.skipSpace()
	r := l.at(1)
	if r == 'N' && l.at(2) == 'o' && l.at(3) == 't' {
		r = ifNot
	}
	l.last = r
	return r
}

func (l *ifLex) consume() {
	if l.last == ifNot {
		l.pos += 3
	} else if l.last != ifEOF {
		l.pos++
	}
}

func (l *ifLex) consumeUntil(stop rune) (string, error) {
	var sb strings.Builder
	for {
		v := l.at(1)
		if v == ifEOF {
			return sb.String(), io.ErrUnexpectedEOF
		}
		if v == stop {
			l.consume()
			return sb.String(), nil
		}
		l.consume()
		sb.WriteRune(v)
	}
}

func parseIfCondition(l *ifLex) (ifCondition, error) {
	var c ifCondition
	if l.peek() == ifNot {
		c.Not = true
		l.consume()
	}
	switch l.peek() {
	case '<':
		l.consume()
		tok, err := l.consumeUntil('>')
		if err != nil || tok == "" {
			return c, errInvalidIfHeader
		}
		c.Token = tok
	case '[':
		l.consume()
		et, err := l.consumeUntil(']')
		if err != nil || et == "" {
			return c, errInvalidIfHeader
		}
		c.ETag = et
	default:
		return c, errInvalidIfHeader
	}
	return c, nil
}

func parseIfList(l *ifLex) (ifList, error) {
	var res ifList
	if l.peek() == '<' {
		l.consume()
		tag, err := l.consumeUntil('>')
		if err != nil || tag == "" {
			return res, errInvalidIfHeader
		}
		res.resourceTag = tag
	}
	if l.peek() != '(' {
		return res, errInvalidIfHeader
	}
	l.consume()
	for l.peek() != ')' {
		if l.peek() == ifEOF {
			return res, errInvalidIfHeader
		}
		c, err := parseIfCondition(l)
		if err != nil {
			return res, err
		}
		res.conditions = append(res.conditions, c)
	}
	l.consume()
	return res, nil
}

// parseIfHeader parses the full If header value into a disjunction of
// tagged condition lists. ok is false when the header is malformed.
func parseIfHeader(s string) (h ifHeader, ok bool) {
	if s == "" {
		return ifHeader{}, true
	}
	l := newIfLex(s)
	for l.peek() != ifEOF {
		list, err := parseIfList(l)
		if err != nil {
			return ifHeader{}, false
		}
		h.lists = append(h.lists, list)
	}
	return h, true
}

// ifEvalEnv supplies the ETag/lock facts the If: evaluator needs without
// coupling it to a specific provider.
type ifEvalEnv interface {
	etag(resourcePath string) (string, bool)
	tokenMatches(resourcePath, token string) bool
}

// evalList evaluates one AND'ed condition list against the request's
// default resource (used when the list carries no resource tag).
func evalList(l ifList, env ifEvalEnv, defaultResource string) bool {
	resource := defaultResource
	if l.resourceTag != "" {
		resource = l.resourceTag
	}
	for _, c := range l.conditions {
		var ok bool
		if c.Token != "" {
			ok = env.tokenMatches(resource, c.Token)
		} else {
			etag, has := env.etag(resource)
			ok = has && etag == c.ETag
		}
		if c.Not {
			ok = !ok
		}
		if !ok {
			return false
		}
	}
	return true
}

// eval evaluates the full disjunction (logical OR of lists).
func (h ifHeader) eval(env ifEvalEnv, defaultResource string) bool {
	if len(h.lists) == 0 {
		return true
	}
	for _, l := range h.lists {
		if evalList(l, env, defaultResource) {
			return true
		}
	}
	return false
}

// submittedTokens returns every lock token named in the header that is not
// negated with Not, so that a recursive MOVE can decide whether the client "submitted their
// tokens" for source-lock transfer per spec.md §4.2.
func (h ifHeader) submittedTokens() []string {
	var toks []string
	for _, l := range h.lists {
		for _, c := range l.conditions {
			if c.Token != "" && !c.Not {
				toks = append(toks, c.Token)
			}
		}
	}
	return toks
}

func (c ifCondition) String() string {
	prefix := ""
	if c.Not {
		prefix = "Not "
	}
	if c.Token != "" {
		return prefix + "<" + c.Token + ">"
	}
	return prefix + "[" + c.ETag + "]"
}

func (l ifList) String() string {
	parts := make([]string, len(l.conditions))
	for i, c := range l.conditions {
		parts[i] = c.String()
	}
	prefix := ""
	if l.resourceTag != "" {
		prefix = "<" + l.resourceTag + "> "
	}
	return fmt.Sprintf("%s(%s)", prefix, strings.Join(parts, " "))
}
