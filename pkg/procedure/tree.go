// Copyright 2026 © The Avatar Authors
// SPDX-License-Identifier: Apache-2.0

// Package procedure holds named procedure expression trees, the repository
// that stores them and a small interpreter that runs them.
//
// Trees are written as literals: a label optionally followed by a
// parenthesised list of children separated by spaces or commas.
//
//	and_seq(goto_obj(ball) grab(ball) $1)
//
// Leaves are identifiers, numbers, quoted strings or argument references
// ($1, $2, ...). A procedure's arity is the highest argument it references.
package procedure

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ErrEmpty is returned when a tree literal contains no expression.
var ErrEmpty = errors.New("procedure: empty expression")

// Tree is a procedure expression tree node.
type Tree struct {
	Label    string
	Children []*Tree
}

// Leaf builds a childless node.
func Leaf(label string) *Tree {
	return &Tree{Label: label}
}

// Node builds a node with children.
func Node(label string, children ...*Tree) *Tree {
	return &Tree{Label: label, Children: children}
}

// IsLeaf reports whether t has no children.
func (t *Tree) IsLeaf() bool {
	return len(t.Children) == 0
}

// Argument returns the 1-based argument index for "$N" leaves.
func (t *Tree) Argument() (int, bool) {
	if !t.IsLeaf() || len(t.Label) < 2 || t.Label[0] != '$' {
		return 0, false
	}
	n, err := strconv.Atoi(t.Label[1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// String renders t back into literal form.
func (t *Tree) String() string {
	if t == nil {
		return ""
	}
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t *Tree) write(b *strings.Builder) {
	b.WriteString(t.Label)
	if t.IsLeaf() {
		return
	}
	b.WriteByte('(')
	for i, c := range t.Children {
		if i > 0 {
			b.WriteByte(' ')
		}
		c.write(b)
	}
	b.WriteByte(')')
}

// Equal reports whether two trees have the same shape and labels.
func (t *Tree) Equal(o *Tree) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.Label != o.Label || len(t.Children) != len(o.Children) {
		return false
	}
	for i := range t.Children {
		if !t.Children[i].Equal(o.Children[i]) {
			return false
		}
	}
	return true
}

// InferArity returns the highest argument index referenced by t.
func InferArity(t *Tree) int {
	if t == nil {
		return 0
	}
	if n, ok := t.Argument(); ok {
		return n
	}
	arity := 0
	for _, c := range t.Children {
		if a := InferArity(c); a > arity {
			arity = a
		}
	}
	return arity
}

// Parse reads a single tree literal.
func Parse(src string) (*Tree, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	if len(p.tokens) == 0 {
		return nil, ErrEmpty
	}
	t, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, fmt.Errorf("procedure: unexpected %q after expression", p.tokens[p.pos])
	}
	return t, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// static definitions.
func MustParse(src string) *Tree {
	t, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return t
}

type parser struct {
	tokens []string
	pos    int
}

func (p *parser) peek() string {
	if p.pos >= len(p.tokens) {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *parser) expr() (*Tree, error) {
	tok := p.peek()
	switch tok {
	case "":
		return nil, errors.New("procedure: unexpected end of expression")
	case "(", ")":
		return nil, fmt.Errorf("procedure: unexpected %q", tok)
	}
	p.pos++
	t := Leaf(tok)
	if p.peek() != "(" {
		return t, nil
	}
	p.pos++
	for {
		switch p.peek() {
		case "":
			return nil, fmt.Errorf("procedure: missing ')' for %q", t.Label)
		case ")":
			p.pos++
			return t, nil
		}
		child, err := p.expr()
		if err != nil {
			return nil, err
		}
		t.Children = append(t.Children, child)
	}
}

func tokenize(src string) ([]string, error) {
	var tokens []string
	runes := []rune(src)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r) || r == ',':
			i++
		case r == '(' || r == ')':
			tokens = append(tokens, string(r))
			i++
		case r == '"':
			j := i + 1
			for j < len(runes) && runes[j] != '"' {
				if runes[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(runes) {
				return nil, errors.New("procedure: unterminated string literal")
			}
			tokens = append(tokens, string(runes[i:j+1]))
			i = j + 1
		default:
			j := i
			for j < len(runes) && !unicode.IsSpace(runes[j]) && !strings.ContainsRune("(),\"", runes[j]) {
				j++
			}
			tokens = append(tokens, string(runes[i:j]))
			i = j
		}
	}
	return tokens, nil
}
