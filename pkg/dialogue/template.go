package dialogue

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jwebster45206/dialogue-engine/pkg/conditionals"
	"github.com/jwebster45206/dialogue-engine/pkg/state"
)

// RenderContext is what a Template needs to render.
type RenderContext interface {
	conditionals.StateView
	OrbBalance() int
}

// Template is a parsed content text. Supported actions:
//
//	{{trust}}                 trust of the current character
//	{{orbs}}                  orb balance
//	{{pattern:helping}}       a pattern score
//	{{if <cond>}}..{{else}}..{{end}}
//
// where <cond> is flag:X, !flag:X, knows:X, seen:X, !seen:X, trust>=N or
// <pattern>>=N.
// Blocks nest.
type Template struct {
	src  string
	root []tnode
}

type tnode interface {
	render(b *strings.Builder, ctx RenderContext)
}

type textNode string

func (n textNode) render(b *strings.Builder, _ RenderContext) { b.WriteString(string(n)) }

type varKind int

const (
	varTrust varKind = iota
	varOrbs
	varPattern
)

type varNode struct {
	kind    varKind
	pattern string
}

func (n varNode) render(b *strings.Builder, ctx RenderContext) {
	switch n.kind {
	case varTrust:
		b.WriteString(strconv.Itoa(ctx.TrustOf(ctx.CurrentCharacter())))
	case varOrbs:
		b.WriteString(strconv.Itoa(ctx.OrbBalance()))
	case varPattern:
		b.WriteString(strconv.Itoa(ctx.PatternScore(n.pattern)))
	}
}

type condNode struct {
	cond conditionals.Predicate
	then []tnode
	els  []tnode
}

func (n condNode) render(b *strings.Builder, ctx RenderContext) {
	branch := n.els
	if conditionals.Evaluate(&n.cond, ctx) {
		branch = n.then
	}
	for _, child := range branch {
		child.render(b, ctx)
	}
}

// ParseTemplate parses src once so it can be rendered many times.
func ParseTemplate(src string) (*Template, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, stop, err := p.parseList()
	if err != nil {
		return nil, err
	}
	if stop != "" {
		return nil, fmt.Errorf("unexpected {{%s}}", stop)
	}
	return &Template{src: src, root: root}, nil
}

// Render evaluates the template against ctx.
func (t *Template) Render(ctx RenderContext) string {
	var b strings.Builder
	for _, n := range t.root {
		n.render(&b, ctx)
	}
	return b.String()
}

func (t *Template) String() string { return t.src }

type token struct {
	text   string
	action bool
}

func lex(src string) ([]token, error) {
	var toks []token
	rest := src
	offset := 0
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			if rest != "" {
				toks = append(toks, token{text: rest})
			}
			return toks, nil
		}
		if open > 0 {
			toks = append(toks, token{text: rest[:open]})
		}
		end := strings.Index(rest[open:], "}}")
		if end < 0 {
			return nil, fmt.Errorf("unclosed action at offset %d", offset+open)
		}
		inner := strings.TrimSpace(rest[open+2 : open+end])
		if inner == "" {
			return nil, fmt.Errorf("empty action at offset %d", offset+open)
		}
		toks = append(toks, token{text: inner, action: true})
		consumed := open + end + 2
		rest = rest[consumed:]
		offset += consumed
	}
}

type parser struct {
	toks []token
	i    int
}

// parseList parses nodes until an {{else}} or {{end}} (returned as stop) or
// the end of input (stop is empty).
func (p *parser) parseList() (nodes []tnode, stop string, err error) {
	for p.i < len(p.toks) {
		tok := p.toks[p.i]
		p.i++
		if !tok.action {
			nodes = append(nodes, textNode(tok.text))
			continue
		}

		switch {
		case tok.text == "else" || tok.text == "end":
			return nodes, tok.text, nil

		case strings.HasPrefix(tok.text, "if "):
			cond, err := parseCondition(strings.TrimSpace(strings.TrimPrefix(tok.text, "if ")))
			if err != nil {
				return nil, "", err
			}
			n := condNode{cond: cond}
			var stop string
			n.then, stop, err = p.parseList()
			if err != nil {
				return nil, "", err
			}
			if stop == "else" {
				n.els, stop, err = p.parseList()
				if err != nil {
					return nil, "", err
				}
			}
			if stop != "end" {
				return nil, "", fmt.Errorf("{{%s}} is missing {{end}}", tok.text)
			}
			nodes = append(nodes, n)

		case tok.text == "trust":
			nodes = append(nodes, varNode{kind: varTrust})

		case tok.text == "orbs":
			nodes = append(nodes, varNode{kind: varOrbs})

		case strings.HasPrefix(tok.text, "pattern:"):
			pattern, err := state.ParsePattern(strings.TrimPrefix(tok.text, "pattern:"))
			if err != nil {
				return nil, "", err
			}
			nodes = append(nodes, varNode{kind: varPattern, pattern: string(pattern)})

		default:
			return nil, "", fmt.Errorf("unknown action {{%s}}", tok.text)
		}
	}
	return nodes, "", nil
}

func parseCondition(expr string) (conditionals.Predicate, error) {
	switch {
	case strings.HasPrefix(expr, "!flag:"):
		return requireName(conditionals.FlagUnset, strings.TrimPrefix(expr, "!flag:"), expr)
	case strings.HasPrefix(expr, "flag:"):
		return requireName(conditionals.FlagSet, strings.TrimPrefix(expr, "flag:"), expr)
	case strings.HasPrefix(expr, "!seen:"):
		return requireName(conditionals.NotVisited, strings.TrimPrefix(expr, "!seen:"), expr)
	case strings.HasPrefix(expr, "seen:"):
		return requireName(conditionals.Visited, strings.TrimPrefix(expr, "seen:"), expr)
	case strings.HasPrefix(expr, "knows:"):
		knows := func(flag string) conditionals.Predicate { return conditionals.Knows(conditionals.CurrentCharacter, flag) }
		return requireName(knows, strings.TrimPrefix(expr, "knows:"), expr)
	}

	name, value, ok := strings.Cut(expr, ">=")
	if !ok {
		return conditionals.Predicate{}, fmt.Errorf("unknown condition %q", expr)
	}
	name = strings.TrimSpace(name)
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return conditionals.Predicate{}, fmt.Errorf("condition %q: threshold must be an integer", expr)
	}
	if name == "trust" {
		return conditionals.TrustAtLeast(conditionals.CurrentCharacter, n), nil
	}
	pattern, err := state.ParsePattern(name)
	if err != nil {
		return conditionals.Predicate{}, fmt.Errorf("condition %q: %w", expr, err)
	}
	return conditionals.PatternAtLeast(string(pattern), n), nil
}

func requireName(build func(string) conditionals.Predicate, name, expr string) (conditionals.Predicate, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return conditionals.Predicate{}, fmt.Errorf("condition %q has no name", expr)
	}
	return build(name), nil
}
